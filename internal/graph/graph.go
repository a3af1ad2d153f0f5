// Package graph provides dependency-graph cycle detection and topological
// layering over ticket dependency edges.
package graph

import (
	"fmt"
	"sort"
)

// ErrCycle reports a dependency cycle discovered during edge validation.
type ErrCycle struct {
	Path []string // starts and ends at the same ticket id
}

func (e *ErrCycle) Error() string {
	return fmt.Sprintf("dependency cycle detected: %v", e.Path)
}

// ErrCrossProject reports an edge whose endpoints belong to different projects.
type ErrCrossProject struct {
	TicketID          string
	DependsOnTicketID string
}

func (e *ErrCrossProject) Error() string {
	return fmt.Sprintf("tickets %s and %s belong to different projects", e.TicketID, e.DependsOnTicketID)
}

// DetectCycle returns nil if the graph is acyclic. Otherwise it returns one
// discovered cycle as an ordered id sequence that starts and ends at the same
// node. A self-dependency yields the two-element path [id, id].
//
// The graph maps each ticket id to the ids it depends on. Nodes are visited
// in sorted order so the reported cycle is deterministic for a given input.
func DetectCycle(graph map[string][]string) []string {
	visited := make(map[string]bool, len(graph))
	onPath := make(map[string]bool, len(graph))

	nodes := make([]string, 0, len(graph))
	for id := range graph {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		onPath[id] = true
		path = append(path, id)

		for _, dep := range graph[id] {
			if onPath[dep] {
				// Back-edge: slice the current path from the repeated node.
				start := 0
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, path[start:]...), dep)
				return true
			}
			if !visited[dep] {
				if visit(dep) {
					return true
				}
			}
		}

		onPath[id] = false
		path = path[:len(path)-1]
		return false
	}

	for _, id := range nodes {
		if !visited[id] {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// TopoLayers computes a layered topological ordering of ids using repeated
// zero-in-degree extraction. Each layer contains tickets whose dependencies
// are all placed in earlier layers; tickets within a layer carry no ordering
// guarantee and are safe to execute concurrently. Dependencies outside the
// given id set are ignored.
//
// Behavior on cyclic input is undefined; callers must validate with
// DetectCycle first.
func TopoLayers(ids []string, deps map[string][]string) [][]string {
	inSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		inSet[id] = true
	}

	// Unresolved in-subset dependency count per ticket.
	remaining := make(map[string]int, len(ids))
	dependents := make(map[string][]string)
	for _, id := range ids {
		remaining[id] = 0
		for _, dep := range deps[id] {
			if inSet[dep] {
				remaining[id]++
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}

	placed := make(map[string]bool, len(ids))
	var layers [][]string

	for len(placed) < len(ids) {
		var layer []string
		for _, id := range ids {
			if !placed[id] && remaining[id] == 0 {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			// Cyclic remainder; return what was layered so far.
			break
		}
		sort.Strings(layer)
		for _, id := range layer {
			placed[id] = true
			for _, dep := range dependents[id] {
				remaining[dep]--
			}
		}
		layers = append(layers, layer)
	}

	return layers
}
