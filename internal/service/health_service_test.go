package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	name string
	err  error
}

func (f *fakeChecker) Name() string { return f.name }

func (f *fakeChecker) HealthCheck(ctx context.Context) error { return f.err }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestHealthServiceProbeAll(t *testing.T) {
	chat := &fakeChecker{name: "ai-chat"}
	backend := &fakeChecker{name: "backend-api", err: errors.New("connection refused")}
	svc := NewHealthService(time.Second, quietLogger(), chat, backend)

	// Nothing probed yet
	for _, r := range svc.Results() {
		assert.Equal(t, StatusUnknown, r.Status)
	}
	assert.True(t, svc.Healthy())

	svc.ProbeAll(context.Background())

	results := svc.Results()
	require.Len(t, results, 2)
	assert.Equal(t, "ai-chat", results[0].Name)
	assert.Equal(t, StatusHealthy, results[0].Status)
	assert.Equal(t, "backend-api", results[1].Name)
	assert.Equal(t, StatusUnhealthy, results[1].Status)
	assert.Equal(t, "connection refused", results[1].Error)
	assert.False(t, svc.Healthy())

	backend.err = nil
	svc.ProbeAll(context.Background())
	assert.True(t, svc.Healthy())
}
