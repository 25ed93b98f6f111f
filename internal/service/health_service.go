package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tradedesk/internal/domain"
)

// Health statuses
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusUnknown   = "unknown"
)

// ProbeResult is the last observed state of one upstream
type ProbeResult struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Latency   string    `json:"latency,omitempty"`
	CheckedAt time.Time `json:"checked_at,omitempty"`
}

// HealthService probes upstream dependencies and keeps the latest results
type HealthService struct {
	checkers []domain.HealthChecker
	timeout  time.Duration
	logger   *logrus.Logger

	mu      sync.RWMutex
	results map[string]ProbeResult
}

// NewHealthService creates a new HealthService
func NewHealthService(timeout time.Duration, logger *logrus.Logger, checkers ...domain.HealthChecker) *HealthService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	results := make(map[string]ProbeResult, len(checkers))
	for _, c := range checkers {
		results[c.Name()] = ProbeResult{Name: c.Name(), Status: StatusUnknown}
	}
	return &HealthService{
		checkers: checkers,
		timeout:  timeout,
		logger:   logger,
		results:  results,
	}
}

// ProbeAll runs every checker concurrently and records the outcome
func (s *HealthService) ProbeAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.checkers {
		c := c
		g.Go(func() error {
			s.record(c.Name(), s.probe(gctx, c))
			return nil
		})
	}
	_ = g.Wait()
}

func (s *HealthService) probe(ctx context.Context, c domain.HealthChecker) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := c.HealthCheck(ctx)
	result := ProbeResult{
		Name:      c.Name(),
		Status:    StatusHealthy,
		Latency:   time.Since(start).Round(time.Millisecond).String(),
		CheckedAt: time.Now().UTC(),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	}
	return result
}

func (s *HealthService) record(name string, result ProbeResult) {
	s.mu.Lock()
	previous := s.results[name]
	s.results[name] = result
	s.mu.Unlock()

	if previous.Status != result.Status {
		entry := s.logger.WithFields(logrus.Fields{"upstream": name, "status": result.Status})
		if result.Status == StatusUnhealthy {
			entry.WithField("error", result.Error).Warn("upstream became unhealthy")
		} else {
			entry.Info("upstream status changed")
		}
	}
}

// Results returns the latest probe results sorted by name
func (s *HealthService) Results() []ProbeResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ProbeResult, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy reports whether no upstream is known to be unhealthy
func (s *HealthService) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.results {
		if r.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}
