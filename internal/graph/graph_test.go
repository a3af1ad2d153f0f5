package graph

import (
	"reflect"
	"testing"
)

func TestDetectCycle(t *testing.T) {
	tests := []struct {
		name      string
		graph     map[string][]string
		wantCycle bool
	}{
		{
			name:      "empty graph",
			graph:     map[string][]string{},
			wantCycle: false,
		},
		{
			name: "acyclic chain",
			graph: map[string][]string{
				"a": {"b"},
				"b": {"c"},
				"c": {},
			},
			wantCycle: false,
		},
		{
			name: "diamond",
			graph: map[string][]string{
				"a": {"b", "c"},
				"b": {"d"},
				"c": {"d"},
				"d": {},
			},
			wantCycle: false,
		},
		{
			name: "two node cycle",
			graph: map[string][]string{
				"a": {"b"},
				"b": {"a"},
			},
			wantCycle: true,
		},
		{
			name: "cycle deep in graph",
			graph: map[string][]string{
				"a": {"b"},
				"b": {"c"},
				"c": {"d"},
				"d": {"b"},
			},
			wantCycle: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycle := DetectCycle(tt.graph)
			if !tt.wantCycle {
				if cycle != nil {
					t.Fatalf("DetectCycle = %v, want nil", cycle)
				}
				return
			}
			if cycle == nil {
				t.Fatal("DetectCycle = nil, want a cycle")
			}
			if len(cycle) < 2 {
				t.Fatalf("cycle too short: %v", cycle)
			}
			if cycle[0] != cycle[len(cycle)-1] {
				t.Errorf("cycle does not start and end at the same node: %v", cycle)
			}
			// Every consecutive pair must be an actual edge.
			for i := 0; i < len(cycle)-1; i++ {
				found := false
				for _, dep := range tt.graph[cycle[i]] {
					if dep == cycle[i+1] {
						found = true
					}
				}
				if !found {
					t.Errorf("cycle step %s -> %s is not an edge", cycle[i], cycle[i+1])
				}
			}
		})
	}
}

func TestDetectCycleSelfDependency(t *testing.T) {
	cycle := DetectCycle(map[string][]string{"a": {"a"}})
	want := []string{"a", "a"}
	if !reflect.DeepEqual(cycle, want) {
		t.Errorf("DetectCycle self-loop = %v, want %v", cycle, want)
	}
}

func TestTopoLayersLinearChain(t *testing.T) {
	// A depends on B, B depends on C.
	layers := TopoLayers([]string{"A", "B", "C"}, map[string][]string{
		"A": {"B"},
		"B": {"C"},
	})
	want := [][]string{{"C"}, {"B"}, {"A"}}
	if !reflect.DeepEqual(layers, want) {
		t.Errorf("TopoLayers = %v, want %v", layers, want)
	}
}

func TestTopoLayersDiamond(t *testing.T) {
	layers := TopoLayers([]string{"a", "b", "c", "d"}, map[string][]string{
		"a": {"b", "c"},
		"b": {"d"},
		"c": {"d"},
	})
	want := [][]string{{"d"}, {"b", "c"}, {"a"}}
	if !reflect.DeepEqual(layers, want) {
		t.Errorf("TopoLayers = %v, want %v", layers, want)
	}
}

func TestTopoLayersIgnoresOutsideDeps(t *testing.T) {
	// b depends on x, which is not part of the scheduled subset.
	layers := TopoLayers([]string{"a", "b"}, map[string][]string{
		"a": {"b"},
		"b": {"x"},
	})
	want := [][]string{{"b"}, {"a"}}
	if !reflect.DeepEqual(layers, want) {
		t.Errorf("TopoLayers = %v, want %v", layers, want)
	}
}

func TestTopoLayersIsPermutation(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	deps := map[string][]string{
		"a": {"c"},
		"b": {"c", "d"},
		"c": {"e"},
		"d": {"e"},
	}

	layers := TopoLayers(ids, deps)

	layerIndex := make(map[string]int)
	count := 0
	for i, layer := range layers {
		for _, id := range layer {
			if _, dup := layerIndex[id]; dup {
				t.Fatalf("ticket %s appears in more than one layer", id)
			}
			layerIndex[id] = i
			count++
		}
	}
	if count != len(ids) {
		t.Fatalf("layers contain %d tickets, want %d", count, len(ids))
	}

	for id, ds := range deps {
		for _, dep := range ds {
			if layerIndex[dep] >= layerIndex[id] {
				t.Errorf("dependency %s (layer %d) not before %s (layer %d)",
					dep, layerIndex[dep], id, layerIndex[id])
			}
		}
	}
}
