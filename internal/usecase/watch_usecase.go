package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type watchInput struct {
	ItemID string `validate:"required,number,max=15"`
	Target string `validate:"required,max=20"`
}

type WatchUsecase struct {
	watches  domain.WatchRepository
	validate *validator.Validate
	adds     keyedLocks[int64] // one add at a time per owner
}

func NewWatchUsecase(watches domain.WatchRepository) *WatchUsecase {
	return &WatchUsecase{watches: watches, validate: validator.New()}
}

func (u *WatchUsecase) AddWatch(ctx context.Context, telegramUserID int64, itemID, target string) (*domain.Watch, error) {
	itemID, decTarget, err := u.parseInput(itemID, target)
	if err != nil {
		return nil, err
	}

	// the duplicate check and the append must not interleave for one owner
	unlock := u.adds.lock(telegramUserID)
	defer unlock()

	_, err = u.watches.Find(ctx, telegramUserID, itemID)
	if err == nil {
		return nil, ErrWatchExists
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	watch := &domain.Watch{
		OwnerID:     telegramUserID,
		ItemID:      itemID,
		TargetPrice: decTarget,
	}
	if err := u.watches.Add(ctx, watch); err != nil {
		return nil, err
	}
	return watch, nil
}

func (u *WatchUsecase) ListWatches(ctx context.Context, telegramUserID int64) ([]domain.Watch, error) {
	return u.watches.ListByOwner(ctx, telegramUserID)
}

// EditWatch replaces the target price and re-arms the watch, so a price
// already below the new target notifies on the next check.
func (u *WatchUsecase) EditWatch(ctx context.Context, telegramUserID int64, itemID, target string) (*domain.Watch, error) {
	itemID, decTarget, err := u.parseInput(itemID, target)
	if err != nil {
		return nil, err
	}

	watch, err := u.findWatch(ctx, telegramUserID, itemID)
	if err != nil {
		return nil, err
	}
	if err := u.watches.UpdateTarget(ctx, watch.Row, decTarget); err != nil {
		return nil, err
	}

	watch.TargetPrice = decTarget
	watch.Notified = false
	return watch, nil
}

func (u *WatchUsecase) RemoveWatch(ctx context.Context, telegramUserID int64, itemID string) error {
	itemID, err := u.ValidateItemID(itemID)
	if err != nil {
		return err
	}

	watch, err := u.findWatch(ctx, telegramUserID, itemID)
	if err != nil {
		return err
	}
	if err := u.watches.Remove(ctx, watch.Row); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrWatchNotFound
		}
		return err
	}
	return nil
}

// OwnsWatch reports ErrWatchNotFound unless the user already watches itemID.
func (u *WatchUsecase) OwnsWatch(ctx context.Context, telegramUserID int64, itemID string) error {
	itemID, err := u.ValidateItemID(itemID)
	if err != nil {
		return err
	}
	_, err = u.findWatch(ctx, telegramUserID, itemID)
	return err
}

func (u *WatchUsecase) ValidateItemID(itemID string) (string, error) {
	itemID = strings.TrimSpace(itemID)
	if err := u.validate.Var(itemID, "required,number,max=15"); err != nil {
		return "", ErrInvalidItemID
	}
	return itemID, nil
}

func (u *WatchUsecase) findWatch(ctx context.Context, telegramUserID int64, itemID string) (*domain.Watch, error) {
	watch, err := u.watches.Find(ctx, telegramUserID, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrWatchNotFound
		}
		return nil, err
	}
	return watch, nil
}

func (u *WatchUsecase) parseInput(itemID, target string) (string, decimal.Decimal, error) {
	in := watchInput{ItemID: strings.TrimSpace(itemID), Target: strings.TrimSpace(target)}
	if err := u.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "ItemID" {
			return "", decimal.Zero, ErrInvalidItemID
		}
		return "", decimal.Zero, ErrInvalidTarget
	}

	decTarget, err := ParseTarget(in.Target)
	if err != nil {
		return "", decimal.Zero, err
	}
	return in.ItemID, decTarget, nil
}

// ParseTarget accepts "1000", "999.90" and "999,90". Targets must be positive.
func ParseTarget(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	raw = strings.TrimSpace(strings.TrimSuffix(raw, "₽"))
	target, err := decimal.NewFromString(raw)
	if err != nil || !target.IsPositive() {
		return decimal.Zero, ErrInvalidTarget
	}
	return target, nil
}
