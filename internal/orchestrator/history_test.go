package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/angelmondragon/voicecommerce-backend/internal/llm"
)

func conversation(turns int) []llm.Message {
	var msgs []llm.Message
	for i := 0; i < turns; i++ {
		msgs = append(msgs,
			llm.UserMessage("질문 "+string(rune('A'+i))),
			llm.AssistantMessage("", []llm.ToolCall{{ID: "c", Name: "view_cart", Arguments: []byte(`{}`)}}),
			llm.ToolMessage("c", "view_cart", `{"success":true}`),
			llm.AssistantMessage("답변 "+string(rune('A'+i)), nil),
		)
	}
	return msgs
}

func TestCompactKeepsRecentTurnsWhole(t *testing.T) {
	c := NewContextTracker(0, 0, 2)
	c.Append(conversation(4)...)

	var seen []llm.Message
	result, err := c.Compact(context.Background(), func(_ context.Context, turns []llm.Message) (string, error) {
		seen = turns
		return "고객이 질문 두 개를 했다", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != CompactionSummarized {
		t.Fatalf("expected summarized, got %s", result)
	}
	if len(seen) != 8 {
		t.Fatalf("expected two older turns (8 messages) summarized, got %d", len(seen))
	}

	msgs := c.Messages()
	if len(msgs) != 9 {
		t.Fatalf("expected summary plus two turns, got %d messages", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem || !strings.HasPrefix(msgs[0].Content, SummaryPrefix) {
		t.Fatalf("expected synthetic summary turn, got %+v", msgs[0])
	}
	if msgs[1].Role != llm.RoleUser || msgs[1].Content != "질문 C" {
		t.Fatalf("expected recent turns to start at 질문 C, got %+v", msgs[1])
	}
}

func TestCompactClearsAfterRepeatedSummaryFailure(t *testing.T) {
	c := NewContextTracker(0, 0, 1)
	c.Append(conversation(3)...)

	calls := 0
	result, err := c.Compact(context.Background(), func(context.Context, []llm.Message) (string, error) {
		calls++
		return "", errors.New("model unavailable")
	})
	if err == nil {
		t.Fatalf("expected the summarizer error")
	}
	if calls != maxSummaryAttempts {
		t.Fatalf("expected %d attempts, got %d", maxSummaryAttempts, calls)
	}
	if result != CompactionCleared || c.Len() != 0 {
		t.Fatalf("expected cleared history, got %s with %d messages", result, c.Len())
	}
}

func TestFitThresholds(t *testing.T) {
	summarize := func(context.Context, []llm.Message) (string, error) { return "요약", nil }

	c := NewContextTracker(1_000_000, 2_000_000, 1)
	c.Append(conversation(2)...)
	if result, _ := c.Fit(context.Background(), 10, summarize); result != CompactionNone {
		t.Fatalf("expected no compaction under threshold, got %s", result)
	}

	size := c.Size()
	c = NewContextTracker(size, size*10, 1)
	c.Append(conversation(2)...)
	if result, _ := c.Fit(context.Background(), 10, summarize); result != CompactionSummarized {
		t.Fatalf("expected summary over threshold, got %s", result)
	}

	c = NewContextTracker(size/2, size, 1)
	c.Append(conversation(2)...)
	if result, _ := c.Fit(context.Background(), 10, summarize); result != CompactionCleared {
		t.Fatalf("expected clear over hard limit, got %s", result)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty history, got %d", c.Len())
	}
}

func TestTranscriptRendersToolTraffic(t *testing.T) {
	out := transcript(conversation(1))
	for _, want := range []string{"user: 질문 A", "assistant called view_cart({})", "tool view_cart:", "assistant: 답변 A"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in transcript:\n%s", want, out)
		}
	}
}
