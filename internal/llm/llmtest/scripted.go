// Package llmtest provides a scripted model client for tests and offline runs.
package llmtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/voicecommerce-backend/internal/llm"
)

// Step is one scripted reply. Delay blocks the call until it elapses or the
// context is cancelled.
type Step struct {
	Response *llm.Response
	Err      error
	Delay    time.Duration
}

type Call struct {
	Messages []llm.Message
	Tools    []llm.ToolDefinition
}

type ScriptedClient struct {
	mu    sync.Mutex
	steps []Step
	calls []Call
	// Fallback answers once the script is exhausted; nil means an error.
	Fallback *llm.Response
}

func NewScriptedClient(steps ...Step) *ScriptedClient {
	return &ScriptedClient{steps: steps}
}

func (c *ScriptedClient) Push(steps ...Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, steps...)
}

func (c *ScriptedClient) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, _ *llm.SamplingOptions) (*llm.Response, error) {
	c.mu.Lock()
	snapshot := append([]llm.Message(nil), messages...)
	c.calls = append(c.calls, Call{Messages: snapshot, Tools: tools})
	var step Step
	var ok bool
	if len(c.steps) > 0 {
		step, c.steps, ok = c.steps[0], c.steps[1:], true
	}
	fallback := c.Fallback
	c.mu.Unlock()

	if !ok {
		if fallback != nil {
			return fallback, nil
		}
		return nil, fmt.Errorf("llmtest: script exhausted")
	}

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Response, nil
}

func (c *ScriptedClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

func (c *ScriptedClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Text is a convenience reply carrying only assistant text.
func Text(content string) Step {
	return Step{Response: &llm.Response{Content: content}}
}

// ToolCalls is a convenience reply carrying function calls.
func ToolCalls(calls ...llm.ToolCall) Step {
	return Step{Response: &llm.Response{ToolCalls: calls}}
}
