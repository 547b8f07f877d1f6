package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsSweepOrder(t *testing.T) {
	registry := NewRegistry()
	payments := &stubJob{name: paymentExpiryJobName}
	sessions := &stubJob{name: sessionExpiryJobName}
	registry.Register(payments)
	registry.Register(sessions)
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != payments || jobs[1] != sessions {
		t.Fatalf("jobs returned out of order")
	}
	// ensure caller cannot mutate internal slice
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryDropsDuplicateNames(t *testing.T) {
	first := &stubJob{name: sessionExpiryJobName}
	registry := NewRegistry(first, nil, &stubJob{name: sessionExpiryJobName})
	if got := registry.Jobs(); len(got) != 1 || got[0] != first {
		t.Fatalf("expected only the first session sweep, got %v", got)
	}
	if registry.Register(&stubJob{name: sessionExpiryJobName}) {
		t.Fatalf("duplicate name registered")
	}
	if !registry.Register(&stubJob{name: paymentExpiryJobName}) {
		t.Fatalf("payment sweep rejected")
	}
}
