package realtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
)

type fakeLive struct {
	calls atomic.Int32
	rows  []map[string]any
	err   error
}

func (f *fakeLive) LatestRows(_ context.Context, limit int) ([]map[string]any, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func TestLatest_ArchiveWhenStoreDisabled(t *testing.T) {
	r := NewReader(nil, Config{ArchivePath: writeArchive(t, 25)}, nil, zaptest.NewLogger(t))

	records, source := r.LatestWithSource(context.Background(), 10)
	assert.Equal(t, SourceArchive, source)
	require.Len(t, records, 10)

	assert.Equal(t, "S25", records[0].Fields["Account"])
	assert.Equal(t, "S16", records[9].Fields["Account"])
	// 25 нечетная -> Is Laundering = 1
	assert.Equal(t, domain.StatusSuspicious, records[0].Status)
	assert.Equal(t, []any{"f25"}, records[0].KeyFactors)
	for i := 1; i < len(records); i++ {
		assert.True(t, records[i-1].SavedAt.After(*records[i].SavedAt), "newest first")
	}
}

func TestLatest_LiveStore(t *testing.T) {
	live := &fakeLive{rows: []map[string]any{
		{"timestamp": "2024-01-02 00:00:00", "prediction": "0", "confidence": 0.9},
		{"timestamp": "2024-01-01 00:00:00", "prediction": "1", "confidence": 0.2},
	}}
	r := NewReader(live, Config{}, nil, zaptest.NewLogger(t))

	records, source := r.LatestWithSource(context.Background(), 5)
	assert.Equal(t, SourceLive, source)
	require.Len(t, records, 2)
	assert.Equal(t, domain.StatusUnderReview, records[0].Status)
	assert.Equal(t, domain.StatusSuspicious, records[1].Status)
}

func TestLatest_FallsBackOnStoreError(t *testing.T) {
	live := &fakeLive{err: errors.New("connection refused")}
	r := NewReader(live, Config{ArchivePath: writeArchive(t, 4)}, nil, zaptest.NewLogger(t))

	records, source := r.LatestWithSource(context.Background(), 10)
	assert.Equal(t, SourceArchive, source)
	assert.Len(t, records, 4)
}

func TestLatest_NeverFails(t *testing.T) {
	live := &fakeLive{err: errors.New("boom")}
	r := NewReader(live, Config{ArchivePath: filepath.Join(t.TempDir(), "missing.csv")}, nil, zaptest.NewLogger(t))

	records := r.Latest(context.Background(), 10)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	// каталог вместо файла: ошибка чтения тоже превращается в пустую ленту
	r = NewReader(nil, Config{ArchivePath: t.TempDir()}, nil, zaptest.NewLogger(t))
	records, source := r.LatestWithSource(context.Background(), 10)
	assert.Empty(t, records)
	assert.Equal(t, SourceEmpty, source)
}

func TestLatest_DefaultAndMaxLimit(t *testing.T) {
	rows := make([]map[string]any, 0, 1500)
	for i := 0; i < 1500; i++ {
		rows = append(rows, map[string]any{"timestamp": fmt.Sprintf("2024-01-01 00:00:%02d", i%60)})
	}
	r := NewReader(&fakeLive{rows: rows}, Config{}, nil, zaptest.NewLogger(t))

	assert.Len(t, r.Latest(context.Background(), 0), DefaultLimit)
	assert.Len(t, r.Latest(context.Background(), -3), DefaultLimit)
	assert.Len(t, r.Latest(context.Background(), 5000), MaxLimit)
}

func TestLatest_BreakerSkipsFailingStore(t *testing.T) {
	live := &fakeLive{err: errors.New("timeout")}
	r := NewReader(live, Config{
		ArchivePath:     writeArchive(t, 2),
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}, nil, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		assert.Len(t, r.Latest(context.Background(), 10), 2)
	}
	assert.Equal(t, int32(2), live.calls.Load())
	assert.Equal(t, gobreaker.StateOpen, r.State())
}

func TestLatest_CancelledReadsDoNotTrip(t *testing.T) {
	live := &fakeLive{err: fmt.Errorf("query latest: %w", context.Canceled)}
	r := NewReader(live, Config{
		ArchivePath:     writeArchive(t, 2),
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}, nil, zaptest.NewLogger(t))

	for i := 0; i < 4; i++ {
		assert.Len(t, r.Latest(context.Background(), 10), 2)
	}
	assert.Equal(t, int32(4), live.calls.Load(), "store is still asked on every call")
	assert.Equal(t, gobreaker.StateClosed, r.State())
}
