package stats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
)

type stubStore struct {
	mu sync.Mutex

	total, suspicious, highRisk int64
	totalErr, subErr, loadErr   error
	saveErr                     error

	saved *domain.SummaryAggregate

	countCalls, loadCalls, saveCalls int
}

func (s *stubStore) CountTotal(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countCalls++
	return s.total, s.totalErr
}

func (s *stubStore) CountSuspicious(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspicious, s.subErr
}

func (s *stubStore) CountHighRisk(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highRisk, s.subErr
}

func (s *stubStore) LoadSummary(context.Context) (*domain.SummaryAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadCalls++
	if s.loadErr != nil || s.saved == nil {
		return nil, s.loadErr
	}
	agg := *s.saved
	return &agg, nil
}

func (s *stubStore) SaveSummary(_ context.Context, agg domain.SummaryAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	agg.Cached = false
	agg.Source = ""
	s.saved = &agg
	return nil
}

type stubMirror struct {
	value     *domain.SummaryAggregate
	loadErr   error
	saves     int
	publishes int
}

func (m *stubMirror) Load(context.Context) (*domain.SummaryAggregate, error) {
	if m.value == nil {
		return nil, m.loadErr
	}
	v := *m.value
	return &v, nil
}

func (m *stubMirror) Save(_ context.Context, agg domain.SummaryAggregate) error {
	m.saves++
	m.value = &agg
	return nil
}

func (m *stubMirror) Publish(context.Context) error {
	m.publishes++
	return nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, store Store, mirror Mirror) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCache(store, mirror, time.Minute, nil, zaptest.NewLogger(t))
	c.now = clock.Now
	return c, clock
}

func TestCurrent_FreshWindowAvoidsStore(t *testing.T) {
	store := &stubStore{total: 100, suspicious: 7, highRisk: 3}
	c, clock := newTestCache(t, store, nil)
	ctx := context.Background()

	first := c.Current(ctx)
	assert.Equal(t, int64(100), first.Total)
	assert.Equal(t, int64(7), first.Suspicious)
	assert.Equal(t, int64(3), first.HighRisk)
	assert.True(t, first.Cached)
	assert.Equal(t, 1, store.countCalls)
	assert.Equal(t, 1, store.loadCalls)

	clock.Advance(30 * time.Second)
	second := c.Current(ctx)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, 1, store.countCalls, "no second store round-trip inside the window")
	assert.Equal(t, 1, store.loadCalls)

	clock.Advance(31 * time.Second)
	third := c.Current(ctx)
	assert.Equal(t, 2, store.loadCalls, "expired window reads the persisted row")
	assert.Equal(t, 1, store.countCalls)
	assert.Equal(t, domain.SourceStore, third.Source)
	assert.Equal(t, int64(100), third.Total)
}

func TestRecompute_FallbackWhenStoreFails(t *testing.T) {
	boom := errors.New("connection reset")
	store := &stubStore{totalErr: boom, subErr: boom, loadErr: boom}
	c, _ := newTestCache(t, store, nil)

	agg, err := c.Recompute(context.Background())
	require.NoError(t, err)
	assert.True(t, agg.IsFallback())

	raw, err := json.Marshal(agg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":0,"suspicious":0,"highRisk":0,"cached":false,"source":"fallback"}`, string(raw))

	// Current тоже не падает и ничего не кладет в кэш
	assert.True(t, c.Current(context.Background()).IsFallback())
	_, ok := c.last()
	assert.False(t, ok)
}

func TestRecompute_ServesLastValueOnFailure(t *testing.T) {
	store := &stubStore{total: 10, suspicious: 1}
	c, _ := newTestCache(t, store, nil)

	_, err := c.Recompute(context.Background())
	require.NoError(t, err)

	store.totalErr = errors.New("down")
	agg, err := c.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), agg.Total)
	assert.True(t, agg.Cached)
}

func TestRecompute_SubQueriesDegradeToZero(t *testing.T) {
	store := &stubStore{total: 42, suspicious: 5, highRisk: 5, subErr: errors.New("no such column"), saveErr: errors.New("read only")}
	c, clock := newTestCache(t, store, nil)

	agg, err := c.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), agg.Total)
	assert.Zero(t, agg.Suspicious)
	assert.Zero(t, agg.HighRisk)
	assert.False(t, agg.Cached)
	assert.Equal(t, domain.SourceLive, agg.Source)
	require.NotNil(t, agg.LastUpdated)
	assert.True(t, clock.Now().Equal(*agg.LastUpdated))
	assert.Equal(t, 1, store.saveCalls, "persist attempted even though it fails")
}

func TestRecompute_DisabledStore(t *testing.T) {
	c, _ := newTestCache(t, nil, nil)

	_, err := c.Recompute(context.Background())
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	agg := c.Current(context.Background())
	assert.True(t, agg.IsFallback())
}

func TestCurrent_MirrorTier(t *testing.T) {
	mirror := &stubMirror{value: &domain.SummaryAggregate{Total: 9, Suspicious: 2, Cached: true}}
	store := &stubStore{total: 1}
	c, _ := newTestCache(t, store, mirror)

	agg := c.Current(context.Background())
	assert.Equal(t, int64(9), agg.Total)
	assert.Equal(t, domain.SourceMirror, agg.Source)
	assert.Zero(t, store.loadCalls)
	assert.Zero(t, store.countCalls)
}

func TestRecompute_UpdatesMirrorAndPublishes(t *testing.T) {
	mirror := &stubMirror{}
	c, _ := newTestCache(t, &stubStore{total: 3}, mirror)

	_, err := c.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, mirror.saves)
	assert.Equal(t, 1, mirror.publishes)
	require.NotNil(t, mirror.value)
	assert.Equal(t, int64(3), mirror.value.Total)
}

func TestInvalidate(t *testing.T) {
	store := &stubStore{total: 5}
	c, _ := newTestCache(t, store, nil)

	c.Current(context.Background())
	c.Invalidate()
	store.total = 6
	store.saved = nil

	agg := c.Current(context.Background())
	assert.Equal(t, int64(6), agg.Total)
	assert.Equal(t, 2, store.countCalls)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache(&stubStore{total: 1}, nil, time.Millisecond, nil, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if i%4 == 0 {
					c.Invalidate()
				}
				if i%2 == 0 {
					_, _ = c.Recompute(context.Background())
				}
				assert.Equal(t, int64(1), c.Current(context.Background()).Total)
			}
		}(i)
	}
	wg.Wait()
}

func TestRefresher_TickWithoutRedis(t *testing.T) {
	store := &stubStore{total: 11}
	c, _ := newTestCache(t, store, nil)
	r := NewRefresher(c, time.Second, nil, zaptest.NewLogger(t))

	assert.True(t, r.tick(context.Background()))
	assert.Equal(t, 1, store.countCalls)

	agg, ok := c.last()
	require.True(t, ok)
	assert.Equal(t, int64(11), agg.Total)
}

func TestRefresher_TickRefreshesPersistedSummary(t *testing.T) {
	store := &stubStore{total: 100, suspicious: 4}
	c, clock := newTestCache(t, store, nil)
	ctx := context.Background()
	r := NewRefresher(c, time.Minute, nil, zaptest.NewLogger(t))

	assert.Equal(t, int64(100), c.Current(ctx).Total)

	store.mu.Lock()
	store.total, store.suspicious = 150, 9
	store.mu.Unlock()

	// без пересчета после окна свежести отдается сохраненная строка
	clock.Advance(61 * time.Second)
	assert.Equal(t, int64(100), c.Current(ctx).Total)

	require.True(t, r.tick(ctx))
	got := c.Current(ctx)
	assert.Equal(t, int64(150), got.Total)
	assert.Equal(t, int64(9), got.Suspicious)

	clock.Advance(61 * time.Second)
	assert.Equal(t, int64(150), c.Current(ctx).Total, "persisted row follows the refresh")
}

func TestRefresher_DisabledReturnsImmediately(t *testing.T) {
	c, _ := newTestCache(t, &stubStore{}, nil)
	done := make(chan struct{})
	go func() {
		NewRefresher(c, 0, nil, zaptest.NewLogger(t)).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresher with zero interval must not block")
	}
}
