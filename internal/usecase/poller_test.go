package usecase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingMetrics struct {
	cycles, fetchOK, fetchFailed, storeErrors, notifyOK, notifyFailed, rearms atomic.Int64
}

func (m *countingMetrics) CycleDone(time.Duration) { m.cycles.Add(1) }
func (m *countingMetrics) Fetch(ok bool) {
	if ok {
		m.fetchOK.Add(1)
	} else {
		m.fetchFailed.Add(1)
	}
}
func (m *countingMetrics) StoreError() { m.storeErrors.Add(1) }
func (m *countingMetrics) Notification(ok bool) {
	if ok {
		m.notifyOK.Add(1)
	} else {
		m.notifyFailed.Add(1)
	}
}
func (m *countingMetrics) Rearm() { m.rearms.Add(1) }

func newTestPoller(watches *fakeWatches, prices *fakePrices, notifier *fakeNotifier, cfg PollerConfig) *Poller {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 5
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	return NewPoller(watches, prices, notifier, nil, cfg, zap.NewNop())
}

func TestPollerHysteresisAcrossCycles(t *testing.T) {
	ctx := context.Background()
	watches := newFakeWatches(watch(1, "100", "1000"))
	prices := newFakePrices()
	prices.set("100", ok("1200"), ok("900"), ok("900"), ok("1100"))
	notifier := &fakeNotifier{}
	p := newTestPoller(watches, prices, notifier, PollerConfig{})

	var flags []bool
	var sentAfter []int
	for i := 0; i < 4; i++ {
		_, err := p.RunCycle(ctx)
		require.NoError(t, err)
		flags = append(flags, watches.get(2).Notified)
		sentAfter = append(sentAfter, len(notifier.messages()))
	}

	assert.Equal(t, []bool{false, true, true, false}, flags)
	assert.Equal(t, []int{0, 1, 1, 1}, sentAfter)
	require.NotNil(t, watches.get(2).LastPrice)
	assert.Equal(t, "1100", watches.get(2).LastPrice.String())
}

func TestPollerFetchFailureKeepsTriggeredState(t *testing.T) {
	ctx := context.Background()
	watches := newFakeWatches(watch(1, "100", "1000"))
	prices := newFakePrices()
	prices.set("100", ok("900"), fail(), ok("900"))
	notifier := &fakeNotifier{}
	p := newTestPoller(watches, prices, notifier, PollerConfig{})

	_, err := p.RunCycle(ctx)
	require.NoError(t, err)
	require.True(t, watches.get(2).Notified)

	report, err := p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FetchFailed)
	assert.True(t, watches.get(2).Notified)

	_, err = p.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, watches.get(2).Notified)
	assert.Len(t, notifier.messages(), 1)
}

func TestPollerNotifiesOnlyCrossingWatch(t *testing.T) {
	watches := newFakeWatches(watch(7, "100", "1000"), watch(7, "200", "500"))
	prices := newFakePrices()
	prices.set("100", ok("950"))
	prices.set("200", ok("650"))
	notifier := &fakeNotifier{}
	p := newTestPoller(watches, prices, notifier, PollerConfig{})

	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	sent := notifier.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(7), sent[0].to)
	assert.Contains(t, sent[0].text, "100")
	assert.Contains(t, sent[0].text, "950")
	assert.Equal(t, 1, report.Notified)
	assert.True(t, watches.get(2).Notified)
	assert.False(t, watches.get(3).Notified)
}

func TestPollerFetchFailureIsIsolated(t *testing.T) {
	watches := newFakeWatches(watch(1, "100", "1000"), watch(2, "200", "1000"))
	prices := newFakePrices()
	prices.set("100", fail())
	prices.set("200", ok("800"))
	notifier := &fakeNotifier{}
	p := newTestPoller(watches, prices, notifier, PollerConfig{})

	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	failed := watches.get(2)
	assert.Nil(t, failed.LastPrice)
	assert.Nil(t, failed.CheckedAt)
	assert.False(t, failed.Notified)

	healthy := watches.get(3)
	require.NotNil(t, healthy.LastPrice)
	assert.True(t, healthy.Notified)

	sent := notifier.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(2), sent[0].to)
	assert.Equal(t, CycleReport{
		CycleID: report.CycleID, Records: 2, Fetched: 1, FetchFailed: 1, Notified: 1, Duration: report.Duration,
	}, report)
}

func TestPollerStoreFailureSkipsEvaluation(t *testing.T) {
	watches := newFakeWatches(watch(1, "100", "1000"), watch(2, "200", "1000"))
	watches.priceErr[2] = errors.New("sheet quota exceeded")
	prices := newFakePrices()
	prices.set("100", ok("500"))
	prices.set("200", ok("500"))
	notifier := &fakeNotifier{}
	p := newTestPoller(watches, prices, notifier, PollerConfig{})

	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.StoreFailed)
	assert.False(t, watches.get(2).Notified)
	assert.True(t, watches.get(3).Notified)
	sent := notifier.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(2), sent[0].to)
}

func TestPollerCommitFirstDoesNotRetryFailedSend(t *testing.T) {
	ctx := context.Background()
	watches := newFakeWatches(watch(1, "100", "1000"))
	prices := newFakePrices()
	prices.set("100", ok("900"))
	notifier := &fakeNotifier{err: errors.New("chat not found"), failures: 1}
	p := newTestPoller(watches, prices, notifier, PollerConfig{Policy: CommitFirst})

	report, err := p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.NotifyFailed)
	assert.Equal(t, 0, report.Notified)
	assert.True(t, watches.get(2).Notified)

	_, err = p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Empty(t, notifier.messages())
}

func TestPollerCommitFirstSkipsSendWhenFlagWriteFails(t *testing.T) {
	watches := newFakeWatches(watch(1, "100", "1000"))
	watches.flagErr[2] = errors.New("write conflict")
	prices := newFakePrices()
	prices.set("100", ok("900"))
	notifier := &fakeNotifier{}
	p := newTestPoller(watches, prices, notifier, PollerConfig{Policy: CommitFirst})

	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.StoreFailed)
	assert.Empty(t, notifier.messages())
	assert.False(t, watches.get(2).Notified)
}

func TestPollerNotifyFirstRetriesFailedSend(t *testing.T) {
	ctx := context.Background()
	watches := newFakeWatches(watch(1, "100", "1000"))
	prices := newFakePrices()
	prices.set("100", ok("900"))
	notifier := &fakeNotifier{err: errors.New("Too Many Requests"), failures: 1}
	p := newTestPoller(watches, prices, notifier, PollerConfig{Policy: NotifyFirst})

	report, err := p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.NotifyFailed)
	assert.False(t, watches.get(2).Notified)

	report, err = p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Notified)
	assert.True(t, watches.get(2).Notified)
	assert.Len(t, notifier.messages(), 1)
}

func TestPollerRearmIsSilent(t *testing.T) {
	w := watch(1, "100", "1000")
	w.Notified = true
	watches := newFakeWatches(w)
	prices := newFakePrices()
	prices.set("100", ok("1500"))
	notifier := &fakeNotifier{}
	metrics := &countingMetrics{}
	p := NewPoller(watches, prices, notifier, metrics, PollerConfig{Concurrency: 1, Interval: time.Hour}, zap.NewNop())

	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rearmed)
	assert.False(t, watches.get(2).Notified)
	assert.Empty(t, notifier.messages())
	assert.Equal(t, int64(1), metrics.rearms.Load())
	assert.Equal(t, int64(1), metrics.fetchOK.Load())
	assert.Equal(t, int64(1), metrics.cycles.Load())
}

func TestPollerHonoursConcurrencyLimit(t *testing.T) {
	var seed []domain.Watch
	prices := newFakePrices()
	for i := 0; i < 20; i++ {
		item := strings.Repeat("1", i+1)
		seed = append(seed, watch(1, item, "1"))
		prices.set(item, ok("5"))
	}
	watches := newFakeWatches(seed...)

	var inFlight, peak atomic.Int64
	prices.hook = func(ctx context.Context, itemID string) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
	}

	p := newTestPoller(watches, prices, &fakeNotifier{}, PollerConfig{Concurrency: 3})
	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 20, report.Fetched)
	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.GreaterOrEqual(t, peak.Load(), int64(1))
}

func TestPollerFinishesWritesAfterCancel(t *testing.T) {
	watches := newFakeWatches(watch(1, "100", "1000"))
	prices := newFakePrices()
	prices.set("100", ok("900"))

	ctx, cancel := context.WithCancel(context.Background())
	prices.hook = func(context.Context, string) { cancel() }
	notifier := &fakeNotifier{}
	p := newTestPoller(watches, prices, notifier, PollerConfig{WriteTimeout: time.Second})

	report, err := p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.StoreFailed)

	got := watches.get(2)
	require.NotNil(t, got.LastPrice)
	assert.Equal(t, "900", got.LastPrice.String())
	assert.True(t, got.Notified)
	assert.Len(t, notifier.messages(), 1)
}

func TestPollerCancelledCycleStartsNothing(t *testing.T) {
	watches := newFakeWatches(watch(1, "100", "1000"), watch(1, "200", "1000"))
	prices := newFakePrices()
	prices.set("100", ok("900"))
	prices.set("200", ok("900"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestPoller(watches, prices, &fakeNotifier{}, PollerConfig{})

	report, err := p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Records)
	assert.Equal(t, 0, report.Fetched+report.FetchFailed)
	assert.Nil(t, watches.get(2).LastPrice)
}

func TestPollerListFailureReturnsError(t *testing.T) {
	watches := newFakeWatches()
	watches.listErr = errors.New("spreadsheet unavailable")
	p := newTestPoller(watches, newFakePrices(), &fakeNotifier{}, PollerConfig{})

	_, err := p.RunCycle(context.Background())
	assert.True(t, domain.IsStoreError(err))
}

func TestPollerLoopSurvivesPanicAndStops(t *testing.T) {
	watches := newFakeWatches(watch(1, "100", "1000"))
	var panicked atomic.Bool
	watches.onList = func() {
		if panicked.CompareAndSwap(false, true) {
			panic("boom")
		}
	}
	prices := newFakePrices()
	prices.set("100", ok("1200"))

	p := newTestPoller(watches, prices, &fakeNotifier{}, PollerConfig{Interval: 5 * time.Millisecond})
	p.Start(context.Background())

	require.Eventually(t, func() bool { return watches.listCalls() >= 3 }, 2*time.Second, 5*time.Millisecond)
	p.Stop(time.Second)

	calls := watches.listCalls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, watches.listCalls())
	assert.NotNil(t, watches.get(2).LastPrice)
}

func TestPollerStartDelay(t *testing.T) {
	watches := newFakeWatches()
	p := newTestPoller(watches, newFakePrices(), &fakeNotifier{}, PollerConfig{StartDelay: time.Hour})

	p.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	p.Stop(time.Second)
	assert.Equal(t, 0, watches.listCalls())
}

func TestCheckNow(t *testing.T) {
	ctx := context.Background()
	watches := newFakeWatches(watch(5, "100", "1000"))
	prices := newFakePrices()
	prices.set("100", ok("999"), fail())
	notifier := &fakeNotifier{}
	p := newTestPoller(watches, prices, notifier, PollerConfig{})

	result, err := p.CheckNow(ctx, 5, "100")
	require.NoError(t, err)
	assert.Equal(t, ActionNotify, result.Action)
	assert.Equal(t, "999", result.Price.Effective().String())
	assert.Len(t, notifier.messages(), 1)
	assert.True(t, watches.get(2).Notified)

	_, err = p.CheckNow(ctx, 5, "100")
	assert.True(t, errors.Is(err, domain.ErrProductNotFound) || domain.IsFetchError(err))

	_, err = p.CheckNow(ctx, 6, "100")
	assert.True(t, errors.Is(err, ErrWatchNotFound))
}
