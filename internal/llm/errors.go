package llm

import (
	"context"
	stdErrors "errors"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

const defaultRateLimitDelay = 60 * time.Second

type heuristic struct {
	code     pkgerrors.Code
	patterns []string
}

// Checked in order; quota wins over rate limit since providers report both as 429.
var heuristics = []heuristic{
	{pkgerrors.CodeQuotaExceeded, []string{"quota", "insufficient_quota", "billing"}},
	{pkgerrors.CodeRateLimit, []string{"rate limit", "rate_limit", "too many requests", "429"}},
	{pkgerrors.CodeContextLength, []string{"context length", "context_length", "maximum context", "too many tokens", "token limit"}},
	{pkgerrors.CodeTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{pkgerrors.CodeFunctionCall, []string{"function", "tool call", "tool_call"}},
}

// ClassifyError folds any model-call failure into one of the llm codes.
// Errors already carrying an llm code pass through unchanged.
func ClassifyError(err error) *pkgerrors.Error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil && pkgerrors.MetadataFor(typed.Code()).Category == pkgerrors.CategoryLLM {
		return withDefaultDelay(typed)
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "model call timed out")
	}

	msg := strings.ToLower(err.Error())
	for _, h := range heuristics {
		for _, p := range h.patterns {
			if strings.Contains(msg, p) {
				return withDefaultDelay(pkgerrors.Wrap(h.code, err, err.Error()))
			}
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeLLMAPI, err, err.Error())
}

func withDefaultDelay(e *pkgerrors.Error) *pkgerrors.Error {
	if e.Code() == pkgerrors.CodeRateLimit && e.RetryAfter() <= 0 {
		return e.WithRetryAfter(defaultRateLimitDelay)
	}
	return e
}
