package advisor

import (
	"context"
	"log"
)

// Service composes the remote analyst with the local heuristic. Remote
// failures degrade to the heuristic and are never surfaced as errors; the
// signal's Model field reports which analyst actually answered.
type Service struct {
	remote   Analyzer // nil when no endpoint is configured
	fallback Heuristic
}

// NewService wires the analyzers. Pass nil remote for offline mode.
func NewService(remote Analyzer) *Service {
	return &Service{remote: remote}
}

func (s *Service) Analyze(ctx context.Context, req Request) (Signal, error) {
	if s.remote == nil {
		sig, _ := s.fallback.Analyze(ctx, req)
		sig.Reasoning = "Demo Mode: " + sig.Reasoning
		return sig, nil
	}

	sig, err := s.remote.Analyze(ctx, req)
	if err == nil {
		return sig, nil
	}
	log.Printf("[ADVISOR] remote analysis for %s failed, using local fallback: %v", req.Symbol, err)

	sig, _ = s.fallback.Analyze(ctx, req)
	sig.Reasoning = "Offline Fallback: " + sig.Reasoning
	return sig, nil
}
