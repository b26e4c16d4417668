// Package watchstore maps row-store rows to watch records.
package watchstore

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Repository struct {
	rows   domain.RowStore
	logger *zap.Logger
}

func NewRepository(rows domain.RowStore, logger *zap.Logger) *Repository {
	return &Repository{rows: rows, logger: logger}
}

func (r *Repository) ListAll(ctx context.Context) ([]domain.Watch, error) {
	rows, err := r.rows.List(ctx)
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}
	return r.mapRowsToDomain(rows), nil
}

func (r *Repository) UpdateObservedPrice(ctx context.Context, row int, price decimal.Decimal, checkedAt time.Time) error {
	return r.update(ctx, "update price", row, map[string]string{
		domain.ColLastPrice: price.String(),
		domain.ColCheckedAt: checkedAt.UTC().Format(time.RFC3339),
	})
}

func (r *Repository) SetNotified(ctx context.Context, row int, notified bool) error {
	return r.update(ctx, "set notified", row, map[string]string{
		domain.ColNotified: formatBool(notified),
	})
}

func (r *Repository) Add(ctx context.Context, watch *domain.Watch) error {
	values := mapWatchToValues(*watch)
	index, err := r.rows.Append(ctx, values)
	if err != nil {
		return &domain.StoreError{Op: "append", Err: err}
	}
	watch.Row = index
	return nil
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Watch, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	owned := make([]domain.Watch, 0)
	for _, watch := range all {
		if watch.OwnerID == ownerID {
			owned = append(owned, watch)
		}
	}
	return owned, nil
}

func (r *Repository) Find(ctx context.Context, ownerID int64, itemID string) (*domain.Watch, error) {
	owned, err := r.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	itemID = strings.TrimSpace(itemID)
	for _, watch := range owned {
		if watch.ItemID == itemID {
			found := watch
			return &found, nil
		}
	}
	return nil, domain.ErrNotFound
}

// UpdateTarget replaces the target and re-arms the watch.
func (r *Repository) UpdateTarget(ctx context.Context, row int, target decimal.Decimal) error {
	return r.update(ctx, "update target", row, map[string]string{
		domain.ColTargetPrice: target.String(),
		domain.ColNotified:    formatBool(false),
	})
}

func (r *Repository) Remove(ctx context.Context, row int) error {
	if err := r.rows.Delete(ctx, row); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return &domain.StoreError{Op: "delete", Row: row, Err: err}
	}
	return nil
}

func (r *Repository) OwnerIDs(ctx context.Context) ([]int64, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{}, len(all))
	ids := make([]int64, 0, len(all))
	for _, watch := range all {
		if _, ok := seen[watch.OwnerID]; ok {
			continue
		}
		seen[watch.OwnerID] = struct{}{}
		ids = append(ids, watch.OwnerID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *Repository) update(ctx context.Context, op string, row int, values map[string]string) error {
	if err := r.rows.Update(ctx, row, values); err != nil {
		return &domain.StoreError{Op: op, Row: row, Err: err}
	}
	return nil
}

func (r *Repository) mapRowsToDomain(rows []domain.Row) []domain.Watch {
	watches := make([]domain.Watch, 0, len(rows))
	for _, row := range rows {
		watch, err := mapRowToDomain(row)
		if err != nil {
			r.logger.Warn("skipping unreadable row", zap.Int("row", row.Index), zap.Error(err))
			continue
		}
		watches = append(watches, watch)
	}
	return watches
}

var (
	errBadOwner  = errors.New("invalid user_id")
	errNoArticle = errors.New("empty article")
	errBadTarget = errors.New("invalid target_price")
)

func mapRowToDomain(row domain.Row) (domain.Watch, error) {
	ownerID, err := parseOwnerID(row.Values[domain.ColUserID])
	if err != nil {
		return domain.Watch{}, errBadOwner
	}
	itemID := strings.TrimSpace(row.Values[domain.ColArticle])
	if itemID == "" {
		return domain.Watch{}, errNoArticle
	}
	target, err := parseDecimal(row.Values[domain.ColTargetPrice])
	if err != nil {
		return domain.Watch{}, errBadTarget
	}

	watch := domain.Watch{
		Row:         row.Index,
		OwnerID:     ownerID,
		ItemID:      itemID,
		TargetPrice: target,
		Notified:    parseBool(row.Values[domain.ColNotified]),
	}
	if raw := strings.TrimSpace(row.Values[domain.ColLastPrice]); raw != "" {
		if last, err := parseDecimal(raw); err == nil {
			watch.LastPrice = &last
		}
	}
	if raw := strings.TrimSpace(row.Values[domain.ColCheckedAt]); raw != "" {
		if checked, err := time.Parse(time.RFC3339, raw); err == nil {
			watch.CheckedAt = &checked
		}
	}
	return watch, nil
}

func mapWatchToValues(watch domain.Watch) map[string]string {
	values := map[string]string{
		domain.ColUserID:      strconv.FormatInt(watch.OwnerID, 10),
		domain.ColArticle:     watch.ItemID,
		domain.ColTargetPrice: watch.TargetPrice.String(),
		domain.ColLastPrice:   "",
		domain.ColNotified:    formatBool(watch.Notified),
		domain.ColCheckedAt:   "",
	}
	if watch.LastPrice != nil {
		values[domain.ColLastPrice] = watch.LastPrice.String()
	}
	if watch.CheckedAt != nil {
		values[domain.ColCheckedAt] = watch.CheckedAt.UTC().Format(time.RFC3339)
	}
	return values
}

func parseOwnerID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id, nil
	}
	// spreadsheets sometimes hand back integral numbers as "123.0"
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsInteger() {
		return 0, errBadOwner
	}
	return d.IntPart(), nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	return decimal.NewFromString(raw)
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

func formatBool(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}
