package session

import (
	"fmt"

	"github.com/forgeline-io/forgeline/internal/models"
)

// CodeAgentAlreadyRunning identifies a scope conflict in API responses.
const CodeAgentAlreadyRunning = "AGENT_ALREADY_RUNNING"

// ConflictPayload is the structured conflict description surfaced to callers
// when a contention scope is already occupied. The HTTP layer translates it
// into a 409 response.
type ConflictPayload struct {
	Code string       `json:"code"`
	Data ConflictData `json:"data"`
}

// ConflictData carries the conflicting session and a navigable location.
type ConflictData struct {
	ActiveSessionID string `json:"activeSessionId"`
	SessionURL      string `json:"sessionUrl"`
}

// AlreadyRunningPayload builds the conflict payload for an occupied scope.
func AlreadyRunningPayload(scope models.Scope, conflicting *models.Session) ConflictPayload {
	return ConflictPayload{
		Code: CodeAgentAlreadyRunning,
		Data: ConflictData{
			ActiveSessionID: conflicting.ID,
			SessionURL:      fmt.Sprintf("/projects/%s/sessions/%s", scope.ProjectID, conflicting.ID),
		},
	}
}
