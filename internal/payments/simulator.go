package payments

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// Outcome is the simulated gateway answer.
type Outcome string

const (
	OutcomeRandom  Outcome = ""
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

func ParseOutcome(raw string) Outcome {
	switch Outcome(strings.ToLower(strings.TrimSpace(raw))) {
	case OutcomeSuccess:
		return OutcomeSuccess
	case OutcomeFailure:
		return OutcomeFailure
	}
	return OutcomeRandom
}

// Simulator decides payment outcomes with a fixed success probability
// unless an outcome is forced.
type Simulator struct {
	mu          sync.Mutex
	successRate float64
	forced      Outcome
	rng         *rand.Rand
}

func NewSimulator(successRate float64, forced Outcome, seed uint64) *Simulator {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return &Simulator{
		successRate: successRate,
		forced:      forced,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Force pins every following decision; OutcomeRandom restores the dice.
func (s *Simulator) Force(o Outcome) {
	s.mu.Lock()
	s.forced = o
	s.mu.Unlock()
}

func (s *Simulator) Succeeds() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.forced {
	case OutcomeSuccess:
		return true
	case OutcomeFailure:
		return false
	}
	return s.rng.Float64() < s.successRate
}
