package orchestrator

import "context"

// AgentEvent is one increment of a streaming agent response.
type AgentEvent struct {
	Delta string
	Err   error
	Done  bool
}

// AgentEngine is the boundary to the language model that actually answers
// a message. Its implementation is out of scope here — callers wire in
// whatever model client they use; the orchestrator only needs the shape.
type AgentEngine interface {
	GenerateResponse(ctx context.Context, sessionID, content string) (string, error)
	GenerateResponseStreaming(ctx context.Context, sessionID, content string) (<-chan AgentEvent, error)
}
