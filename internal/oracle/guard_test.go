package oracle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
)

type stubInvoker struct {
	calls atomic.Int32
	err   error
}

func (s *stubInvoker) Invoke(_ context.Context, _ domain.FeatureRecord, _ bool) (*domain.OracleResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.OracleResult{Prediction: "0", KeyFactors: []string{}}, nil
}

func TestGuard_OpensOnSpawnFailures(t *testing.T) {
	stub := &stubInvoker{err: &Error{Kind: KindSpawn, Message: "no python"}}
	g := NewGuard(stub, GuardConfig{BreakerFailures: 2, BreakerTimeout: time.Minute}, nil, zaptest.NewLogger(t))

	for i := 0; i < 2; i++ {
		_, err := g.Invoke(context.Background(), domain.FeatureRecord{}, false)
		assert.Equal(t, "no python", errorMessage(err))
	}

	_, err := g.Invoke(context.Background(), domain.FeatureRecord{}, false)
	require.Error(t, err)
	assert.Equal(t, KindSpawn, KindOf(err))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), stub.calls.Load(), "open breaker does not spawn")
	assert.Equal(t, gobreaker.StateOpen, g.State())
}

func TestGuard_ModelErrorsDoNotTrip(t *testing.T) {
	stub := &stubInvoker{err: &Error{Kind: KindModel, Message: "bad input"}}
	g := NewGuard(stub, GuardConfig{BreakerFailures: 2}, nil, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		_, err := g.Invoke(context.Background(), domain.FeatureRecord{}, false)
		assert.Equal(t, KindModel, KindOf(err))
	}
	assert.Equal(t, int32(5), stub.calls.Load())
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestGuard_PassesResultThrough(t *testing.T) {
	g := NewGuard(&stubInvoker{}, GuardConfig{Rate: 100, Burst: 1}, nil, zaptest.NewLogger(t))

	res, err := g.Invoke(context.Background(), domain.FeatureRecord{}, false)
	require.NoError(t, err)
	assert.Equal(t, domain.Label("0"), res.Prediction)
}

func TestGuard_LimiterHonoursContext(t *testing.T) {
	g := NewGuard(&stubInvoker{}, GuardConfig{Rate: 0.001, Burst: 1}, nil, zaptest.NewLogger(t))

	_, err := g.Invoke(context.Background(), domain.FeatureRecord{}, false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Invoke(ctx, domain.FeatureRecord{}, false)
	assert.Equal(t, KindTimeout, KindOf(err))

	gone, stop := context.WithCancel(context.Background())
	stop()
	_, err = g.Invoke(gone, domain.FeatureRecord{}, false)
	assert.Equal(t, KindCanceled, KindOf(err))
	assert.False(t, Unavailable(err))
}

func TestGuard_CancelledCallsDoNotTrip(t *testing.T) {
	stub := &stubInvoker{err: &Error{Kind: KindCanceled, Message: "oracle call cancelled by caller", Err: context.Canceled}}
	g := NewGuard(stub, GuardConfig{BreakerFailures: 2, BreakerTimeout: time.Minute}, nil, zaptest.NewLogger(t))

	for i := 0; i < 2; i++ {
		_, err := g.Invoke(context.Background(), domain.FeatureRecord{}, false)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())

	stub.err = nil
	res, err := g.Invoke(context.Background(), domain.FeatureRecord{}, false)
	require.NoError(t, err)
	assert.Equal(t, domain.Label("0"), res.Prediction)
	assert.Equal(t, int32(3), stub.calls.Load())
}

func errorMessage(err error) string {
	var oErr *Error
	if errors.As(err, &oErr) {
		return oErr.Message
	}
	return ""
}
