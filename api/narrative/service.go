package narrative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

type ServiceConfig struct {
	Logger    *slog.Logger
	Generator Generator
}

func (cfg *ServiceConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Generator == nil {
		return errors.New("generator is required")
	}
	return nil
}

// Service memoizes generated narratives per key for the life of the process.
// Failures are not memoized.
type Service struct {
	log *slog.Logger
	gen Generator

	mu   sync.RWMutex
	memo map[string]string

	group singleflight.Group
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Service{
		log:  cfg.Logger,
		gen:  cfg.Generator,
		memo: make(map[string]string),
	}, nil
}

// Key identifies one day's analysis. The record count is part of the key so new
// calls on the same day produce a fresh narrative.
func Key(date string, records int) string {
	return fmt.Sprintf("date:%s:%d", date, records)
}

// Analyze returns the narrative for key and whether it was already memoized,
// generating it from prompt on a miss.
// Errors are always *Error.
func (s *Service) Analyze(ctx context.Context, key, prompt string) (string, bool, error) {
	s.mu.RLock()
	text, ok := s.memo[key]
	s.mu.RUnlock()
	if ok {
		return text, true, nil
	}

	// Shared by every caller waiting on key, so one disconnect must not fail the rest.
	genCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(key, func() (any, error) {
		text, err := s.gen.Generate(genCtx, prompt)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.memo[key] = text
		s.mu.Unlock()
		return text, nil
	})
	if err != nil {
		ne := Classify(err)
		s.log.Error("narrative: generation failed", "key", key, "insufficient_credit", ne.InsufficientCredit, "error", err)
		return "", false, ne
	}
	return v.(string), false, nil
}
