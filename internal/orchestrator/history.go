package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/angelmondragon/voicecommerce-backend/internal/llm"
)

// SummaryPrefix marks the synthetic turn holding collapsed history.
const SummaryPrefix = "Summary of the earlier conversation: "

const maxSummaryAttempts = 2

// Summarizer condenses older turns into a short text.
type Summarizer func(ctx context.Context, turns []llm.Message) (string, error)

type CompactionResult string

const (
	CompactionNone       CompactionResult = "none"
	CompactionSummarized CompactionResult = "summarized"
	CompactionCleared    CompactionResult = "cleared"
)

// ContextTracker owns one session's conversation history and keeps its
// estimated size under the configured budget.
type ContextTracker struct {
	mu        sync.Mutex
	history   []llm.Message
	threshold int
	hardLimit int
	keepTurns int
}

func NewContextTracker(threshold, hardLimit, keepTurns int) *ContextTracker {
	if keepTurns < 1 {
		keepTurns = 1
	}
	return &ContextTracker{threshold: threshold, hardLimit: hardLimit, keepTurns: keepTurns}
}

func (c *ContextTracker) Append(msgs ...llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, msgs...)
}

// Messages returns a copy of the history.
func (c *ContextTracker) Messages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Message(nil), c.history...)
}

func (c *ContextTracker) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return llm.EstimateMessageTokens(c.history)
}

func (c *ContextTracker) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

func (c *ContextTracker) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// Fit compacts the history so that it plus incoming tokens stays in budget.
// Above the hard limit the history is dropped; above the threshold older
// turns are summarized.
func (c *ContextTracker) Fit(ctx context.Context, incoming int, summarize Summarizer) (CompactionResult, error) {
	size := c.Size() + incoming
	switch {
	case c.hardLimit > 0 && size > c.hardLimit:
		c.Clear()
		return CompactionCleared, nil
	case c.threshold > 0 && size > c.threshold:
		return c.Compact(ctx, summarize)
	}
	return CompactionNone, nil
}

// Compact collapses every turn but the most recent ones into a single
// system turn. When the summarizer fails twice the history is cleared.
func (c *ContextTracker) Compact(ctx context.Context, summarize Summarizer) (CompactionResult, error) {
	older, recent := c.split()
	if len(older) == 0 {
		// nothing old enough to summarize; only dropping frees space
		c.Clear()
		return CompactionCleared, nil
	}

	var lastErr error
	for attempt := 0; attempt < maxSummaryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return CompactionNone, err
		}
		summary, err := summarize(ctx, older)
		if err != nil {
			lastErr = err
			continue
		}
		summary = strings.TrimSpace(summary)
		if summary == "" {
			lastErr = fmt.Errorf("empty summary")
			continue
		}
		c.mu.Lock()
		c.history = append([]llm.Message{llm.SystemMessage(SummaryPrefix + summary)}, recent...)
		c.mu.Unlock()
		return CompactionSummarized, nil
	}

	c.Clear()
	return CompactionCleared, lastErr
}

// split cuts the history at the start of the keepTurns-th most recent user
// turn, so tool results always stay with the call that produced them.
func (c *ContextTracker) split() (older, recent []llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	turns := 0
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].Role != llm.RoleUser {
			continue
		}
		turns++
		if turns == c.keepTurns {
			older = append([]llm.Message(nil), c.history[:i]...)
			recent = append([]llm.Message(nil), c.history[i:]...)
			return older, recent
		}
	}
	return nil, append([]llm.Message(nil), c.history...)
}

// transcript renders turns as plain lines for the summarizer.
func transcript(turns []llm.Message) string {
	var b strings.Builder
	for _, m := range turns {
		switch {
		case m.Role == llm.RoleTool:
			fmt.Fprintf(&b, "tool %s: %s\n", m.Name, m.Content)
		case len(m.ToolCalls) > 0:
			for _, call := range m.ToolCalls {
				fmt.Fprintf(&b, "assistant called %s(%s)\n", call.Name, string(call.Arguments))
			}
			if m.Content != "" {
				fmt.Fprintf(&b, "assistant: %s\n", m.Content)
			}
		default:
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	return b.String()
}
