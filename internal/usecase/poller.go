package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type NotifyPolicy string

const (
	// CommitFirst persists notified=true before sending. A failed send is not
	// retried.
	CommitFirst NotifyPolicy = "commit-first"
	// NotifyFirst sends first and persists only after delivery. A failed send
	// leaves the watch armed for the next cycle.
	NotifyFirst NotifyPolicy = "notify-first"
)

type Notifier interface {
	Notify(telegramUserID int64, text string) error
}

type PollerMetrics interface {
	CycleDone(d time.Duration)
	Fetch(ok bool)
	StoreError()
	Notification(ok bool)
	Rearm()
}

type PollerConfig struct {
	Interval     time.Duration
	StartDelay   time.Duration
	Concurrency  int64
	WriteTimeout time.Duration
	Policy       NotifyPolicy
}

type CycleReport struct {
	CycleID      string
	Records      int
	Fetched      int
	FetchFailed  int
	StoreFailed  int
	Notified     int
	NotifyFailed int
	Rearmed      int
	Duration     time.Duration
}

// CheckResult is the outcome of an on-demand check of one watch.
type CheckResult struct {
	Watch  domain.Watch
	Price  *domain.PriceResult
	Action Action
}

type Poller struct {
	watches  domain.WatchRepository
	prices   domain.PriceFetcher
	notifier Notifier
	metrics  PollerMetrics
	logger   *zap.Logger
	cfg      PollerConfig

	sem   *semaphore.Weighted
	rows  keyedLocks[int] // serialises a row between cycles and CheckNow
	now   func() time.Time
	newID func() string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(watches domain.WatchRepository, prices domain.PriceFetcher, notifier Notifier, metrics PollerMetrics, cfg PollerConfig, logger *zap.Logger) *Poller {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Policy == "" {
		cfg.Policy = CommitFirst
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Poller{
		watches:  watches,
		prices:   prices,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.Concurrency),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Start runs the poll loop in the background until Stop or ctx is done.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		p.Run(runCtx)
	}(p.done)
}

// Stop cancels the loop and waits for in-flight record tasks to finish their
// writes.
func (p *Poller) Stop(timeout time.Duration) {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(timeout):
		p.logger.Warn("timeout stopping poller")
	}
}

// Run blocks until ctx is done. A failing or panicking cycle is logged and the
// next one runs on schedule.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Duration("start_delay", p.cfg.StartDelay),
		zap.Int64("concurrency", p.cfg.Concurrency),
		zap.String("notify_policy", string(p.cfg.Policy)),
	)
	defer p.logger.Info("poller stopped")

	delay := time.NewTimer(p.cfg.StartDelay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
		return
	case <-delay.C:
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		p.safeCycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("poll cycle panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	_, _ = p.RunCycle(ctx)
}

// RunCycle processes every watch in one snapshot. Each watch is handled by a
// single goroutine; at most Concurrency of them run at once. Cancelling ctx
// stops new watches from starting but lets started ones finish.
func (p *Poller) RunCycle(ctx context.Context) (CycleReport, error) {
	start := p.now()
	report := CycleReport{CycleID: p.newID()}
	logger := p.logger.With(zap.String("cycle_id", report.CycleID))

	watches, err := p.watches.ListAll(ctx)
	if err != nil {
		logger.Error("failed to load watches", zap.Error(err))
		return report, err
	}
	report.Records = len(watches)

	var (
		wg       sync.WaitGroup
		reportMu sync.Mutex
		started  int
	)
	for _, watch := range watches {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			logger.Info("poll cycle interrupted", zap.Int("pending", len(watches)-started))
			break
		}
		started++
		wg.Add(1)
		go func(watch domain.Watch) {
			defer wg.Done()
			defer p.sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					logger.Error("watch check panicked", zap.Int("row", watch.Row), zap.Any("panic", r), zap.Stack("stack"))
				}
			}()

			out := p.checkWatch(ctx, watch, logger)
			reportMu.Lock()
			report.add(out)
			reportMu.Unlock()
		}(watch)
	}
	wg.Wait()

	report.Duration = p.now().Sub(start)
	p.metrics.CycleDone(report.Duration)
	logger.Info("poll cycle finished",
		zap.Int("records", report.Records),
		zap.Int("fetched", report.Fetched),
		zap.Int("fetch_failed", report.FetchFailed),
		zap.Int("store_failed", report.StoreFailed),
		zap.Int("notified", report.Notified),
		zap.Int("notify_failed", report.NotifyFailed),
		zap.Int("rearmed", report.Rearmed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// CheckNow runs the per-watch step for one owner's item outside the schedule.
func (p *Poller) CheckNow(ctx context.Context, ownerID int64, itemID string) (*CheckResult, error) {
	watch, err := p.watches.Find(ctx, ownerID, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrWatchNotFound
		}
		return nil, err
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	logger := p.logger.With(zap.String("cycle_id", "manual"))
	out := p.checkWatch(ctx, *watch, logger)
	switch {
	case out.fetchErr != nil:
		return nil, out.fetchErr
	case out.storeErr != nil:
		return nil, out.storeErr
	}
	return &CheckResult{Watch: *watch, Price: out.price, Action: out.action}, nil
}

type checkOutcome struct {
	price     *domain.PriceResult
	action    Action
	fetchErr  error
	storeErr  error
	notifyErr error
	notified  bool
	rearmed   bool
}

func (r *CycleReport) add(out checkOutcome) {
	if out.fetchErr != nil {
		r.FetchFailed++
		return
	}
	r.Fetched++
	if out.storeErr != nil {
		r.StoreFailed++
	}
	if out.notifyErr != nil {
		r.NotifyFailed++
	}
	if out.notified {
		r.Notified++
	}
	if out.rearmed {
		r.Rearmed++
	}
}

// checkWatch is fetch, persist price, then evaluate. Writes run on a context
// detached from cancellation so shutdown never leaves a step half applied.
func (p *Poller) checkWatch(ctx context.Context, watch domain.Watch, logger *zap.Logger) checkOutcome {
	unlock := p.rows.lock(watch.Row)
	defer unlock()

	logger = logger.With(
		zap.Int("row", watch.Row),
		zap.Int64("telegram_user_id", watch.OwnerID),
		zap.String("item_id", watch.ItemID),
	)

	price, err := p.prices.FetchPrice(ctx, watch.ItemID)
	if err != nil {
		p.metrics.Fetch(false)
		logger.Warn("failed to fetch price", zap.Error(err))
		return checkOutcome{fetchErr: err}
	}
	p.metrics.Fetch(true)

	out := checkOutcome{price: price}
	current := price.Effective()

	err = p.write(ctx, func(ctx context.Context) error {
		return p.watches.UpdateObservedPrice(ctx, watch.Row, current, p.now())
	})
	if err != nil {
		p.metrics.StoreError()
		logger.Error("failed to store observed price", zap.Error(err))
		out.storeErr = err
		return out
	}

	out.action = Evaluate(watch.Notified, current, watch.TargetPrice)
	switch out.action {
	case ActionNotify:
		p.notify(ctx, watch, price, logger, &out)
	case ActionRearm:
		err := p.write(ctx, func(ctx context.Context) error {
			return p.watches.SetNotified(ctx, watch.Row, false)
		})
		if err != nil {
			p.metrics.StoreError()
			logger.Error("failed to re-arm watch", zap.Error(err))
			out.storeErr = err
			return out
		}
		p.metrics.Rearm()
		out.rearmed = true
		logger.Debug("watch re-armed", zap.String("price", current.String()))
	}
	return out
}

func (p *Poller) notify(ctx context.Context, watch domain.Watch, price *domain.PriceResult, logger *zap.Logger, out *checkOutcome) {
	commit := func() bool {
		err := p.write(ctx, func(ctx context.Context) error {
			return p.watches.SetNotified(ctx, watch.Row, true)
		})
		if err != nil {
			p.metrics.StoreError()
			logger.Error("failed to mark watch notified", zap.Error(err))
			out.storeErr = err
			return false
		}
		return true
	}
	send := func() bool {
		if err := p.notifier.Notify(watch.OwnerID, notificationText(watch, price)); err != nil {
			p.metrics.Notification(false)
			out.notifyErr = &domain.NotifyError{OwnerID: watch.OwnerID, Err: err}
			logger.Warn("failed to send price notification", zap.Error(err))
			return false
		}
		p.metrics.Notification(true)
		return true
	}

	switch p.cfg.Policy {
	case NotifyFirst:
		if !send() {
			return
		}
		out.notified = true
		commit()
	default:
		if !commit() {
			return
		}
		out.notified = send()
	}
}

func (p *Poller) write(ctx context.Context, fn func(ctx context.Context) error) error {
	writeCtx := context.WithoutCancel(ctx)
	if p.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(writeCtx, p.cfg.WriteTimeout)
		defer cancel()
	}
	return fn(writeCtx)
}

func notificationText(watch domain.Watch, price *domain.PriceResult) string {
	current := price.Effective()
	item := watch.ItemID
	if price.Name != "" {
		item = fmt.Sprintf("%s (%s)", price.Name, watch.ItemID)
	}
	return fmt.Sprintf("Price drop: %s is now %s ₽ (target %s ₽)", item, domain.FormatPrice(current), domain.FormatPrice(watch.TargetPrice))
}

type nopMetrics struct{}

func (nopMetrics) CycleDone(time.Duration) {}
func (nopMetrics) Fetch(bool)              {}
func (nopMetrics) StoreError()             {}
func (nopMetrics) Notification(bool)       {}
func (nopMetrics) Rearm()                  {}
