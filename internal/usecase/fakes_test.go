package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/shopspring/decimal"
)

type fakeWatches struct {
	mu       sync.Mutex
	next     int
	rows     map[int]domain.Watch
	listErr  error
	priceErr map[int]error
	flagErr  map[int]error
	onList   func()
	lists    int
}

func newFakeWatches(watches ...domain.Watch) *fakeWatches {
	f := &fakeWatches{next: 2, rows: make(map[int]domain.Watch), priceErr: map[int]error{}, flagErr: map[int]error{}}
	for _, w := range watches {
		w := w
		_ = f.Add(context.Background(), &w)
	}
	return f
}

func (f *fakeWatches) ListAll(ctx context.Context) ([]domain.Watch, error) {
	f.mu.Lock()
	f.lists++
	onList := f.onList
	f.mu.Unlock()
	if onList != nil {
		onList()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, &domain.StoreError{Op: "list", Err: f.listErr}
	}
	out := make([]domain.Watch, 0, len(f.rows))
	for _, w := range f.rows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out, nil
}

func (f *fakeWatches) UpdateObservedPrice(ctx context.Context, row int, price decimal.Decimal, checkedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.priceErr[row]; err != nil {
		return &domain.StoreError{Op: "update price", Row: row, Err: err}
	}
	w, ok := f.rows[row]
	if !ok {
		return domain.ErrNotFound
	}
	w.LastPrice = &price
	w.CheckedAt = &checkedAt
	f.rows[row] = w
	return nil
}

func (f *fakeWatches) SetNotified(ctx context.Context, row int, notified bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.flagErr[row]; err != nil {
		return &domain.StoreError{Op: "set notified", Row: row, Err: err}
	}
	w, ok := f.rows[row]
	if !ok {
		return domain.ErrNotFound
	}
	w.Notified = notified
	f.rows[row] = w
	return nil
}

func (f *fakeWatches) Add(ctx context.Context, watch *domain.Watch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	watch.Row = f.next
	f.next++
	f.rows[watch.Row] = *watch
	return nil
}

func (f *fakeWatches) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Watch, error) {
	all, err := f.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var owned []domain.Watch
	for _, w := range all {
		if w.OwnerID == ownerID {
			owned = append(owned, w)
		}
	}
	return owned, nil
}

func (f *fakeWatches) Find(ctx context.Context, ownerID int64, itemID string) (*domain.Watch, error) {
	owned, err := f.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, w := range owned {
		if w.ItemID == itemID {
			return &w, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeWatches) UpdateTarget(ctx context.Context, row int, target decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.rows[row]
	if !ok {
		return domain.ErrNotFound
	}
	w.TargetPrice = target
	w.Notified = false
	f.rows[row] = w
	return nil
}

func (f *fakeWatches) Remove(ctx context.Context, row int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[row]; !ok {
		return domain.ErrNotFound
	}
	delete(f.rows, row)
	return nil
}

func (f *fakeWatches) OwnerIDs(ctx context.Context) ([]int64, error) {
	all, err := f.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{}
	var ids []int64
	for _, w := range all {
		if !seen[w.OwnerID] {
			seen[w.OwnerID] = true
			ids = append(ids, w.OwnerID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeWatches) get(row int) domain.Watch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[row]
}

func (f *fakeWatches) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

// fakePrices answers each item from a script, one entry per call. The last
// entry repeats once the script runs out.
type fakePrices struct {
	mu     sync.Mutex
	script map[string][]priceStep
	calls  map[string]int
	hook   func(ctx context.Context, itemID string)
}

type priceStep struct {
	price string
	err   error
}

func newFakePrices() *fakePrices {
	return &fakePrices{script: map[string][]priceStep{}, calls: map[string]int{}}
}

func (f *fakePrices) set(itemID string, steps ...priceStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[itemID] = steps
	f.calls[itemID] = 0
}

func (f *fakePrices) FetchPrice(ctx context.Context, itemID string) (*domain.PriceResult, error) {
	if f.hook != nil {
		f.hook(ctx, itemID)
	}
	f.mu.Lock()
	steps := f.script[itemID]
	n := f.calls[itemID]
	f.calls[itemID]++
	f.mu.Unlock()

	if len(steps) == 0 {
		return nil, &domain.FetchError{ItemID: itemID, Err: domain.ErrProductNotFound}
	}
	if n >= len(steps) {
		n = len(steps) - 1
	}
	step := steps[n]
	if step.err != nil {
		return nil, &domain.FetchError{ItemID: itemID, Err: step.err}
	}
	return &domain.PriceResult{ItemID: itemID, Price: decimal.RequireFromString(step.price)}, nil
}

func ok(price string) priceStep { return priceStep{price: price} }

func fail() priceStep { return priceStep{err: errors.New("upstream 503")} }

type sentMessage struct {
	to   int64
	text string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
	// failures is the number of upcoming sends that fail with err
	failures int
}

func (f *fakeNotifier) Notify(telegramUserID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: telegramUserID, text: text})
	return nil
}

func (f *fakeNotifier) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	failTo map[int64]bool
	got    map[int64]BroadcastMessage
}

func (f *fakeBroadcaster) Broadcast(telegramUserID int64, msg BroadcastMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[telegramUserID] {
		return errors.New("Forbidden: bot was blocked by the user")
	}
	if f.got == nil {
		f.got = map[int64]BroadcastMessage{}
	}
	f.got[telegramUserID] = msg
	return nil
}

func watch(owner int64, item, target string) domain.Watch {
	return domain.Watch{OwnerID: owner, ItemID: item, TargetPrice: decimal.RequireFromString(target)}
}
