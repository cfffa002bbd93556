// Package agent defines the boundary to the external AI collaborators
// and the coordinator that drives worker and reviewer sub-agents for the
// workflow engine. The collaborators themselves are opaque: the engine
// only observes prompts in and text out.
package agent

import "context"

// StreamResult is the outcome of a top-level streaming call.
type StreamResult struct {
	Content        string
	WasInterrupted bool
	WasCancelled   bool
}

// Streamer issues a prompt to the primary agent and waits for the full
// streamed response.
type Streamer interface {
	StreamAndWait(ctx context.Context, prompt string) (StreamResult, error)
}

// SpawnRequest names and prompts a sub-agent.
type SpawnRequest struct {
	// Name selects the sub-agent identity, e.g. "worker" or "reviewer".
	Name   string
	Prompt string
}

// SpawnResult is the outcome of a sub-agent run.
type SpawnResult struct {
	Success bool
	Output  string
}

// Spawner runs a named sub-agent to completion.
type Spawner interface {
	SpawnSubagent(ctx context.Context, req SpawnRequest) (SpawnResult, error)
}

// Sub-agent identities used by the coordinator.
const (
	WorkerName   = "worker"
	ReviewerName = "reviewer"
)

// Event kinds the coordinator emits through its sink. These line up with
// the phase event taxonomy recorded by the workflow engine.
const (
	KindAgentSpawn    = "agent_spawn"
	KindAgentComplete = "agent_complete"
	KindError         = "error"
)

// EmitFunc receives coordinator events. The workflow engine passes an
// appender so spawn/complete/error occurrences land in the phase log in
// invocation order.
type EmitFunc func(kind, content string)
