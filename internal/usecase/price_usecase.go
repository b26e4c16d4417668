package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/NasaVasa/pricewatch/internal/domain"
)

type PriceUsecase struct {
	prices domain.PriceFetcher
}

func NewPriceUsecase(prices domain.PriceFetcher) *PriceUsecase {
	return &PriceUsecase{prices: prices}
}

func (u *PriceUsecase) LookupPrice(ctx context.Context, itemID string) (*domain.PriceResult, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, ErrInvalidItemID
	}
	price, err := u.prices.FetchPrice(ctx, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return price, nil
}
