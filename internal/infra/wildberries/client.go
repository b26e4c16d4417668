package wildberries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	errEmptyItemID = errors.New("empty item id")
	errNoPrice     = errors.New("product has no price")
)

type Client struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient builds a price client for the product detail endpoint. A
// ratePerSecond of zero disables client-side rate limiting.
func NewClient(baseURL string, timeout time.Duration, ratePerSecond float64, logger *zap.Logger) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
	if ratePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return c
}

func (c *Client) FetchPrice(ctx context.Context, itemID string) (*domain.PriceResult, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, &domain.FetchError{ItemID: itemID, Err: errEmptyItemID}
	}
	result, err := c.fetch(ctx, itemID)
	if err != nil {
		return nil, &domain.FetchError{ItemID: itemID, Err: err}
	}
	return result, nil
}

func (c *Client) fetch(ctx context.Context, itemID string) (*domain.PriceResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("appType", "1")
	query.Set("curr", "rub")
	query.Set("dest", "-1257786")
	query.Set("nm", itemID)
	endpoint := c.baseURL + "?" + query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")

	start := time.Now()
	c.logger.Debug("wildberries request start", zap.String("item_id", itemID))
	response, err := c.client.Do(request)
	if err != nil {
		c.logger.Warn("wildberries request failed", zap.String("item_id", itemID), zap.Error(err))
		return nil, err
	}
	defer response.Body.Close()

	c.logger.Debug(
		"wildberries request complete",
		zap.String("item_id", itemID),
		zap.Int("status", response.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if response.StatusCode == http.StatusNotFound {
		return nil, domain.ErrProductNotFound
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wildberries error: status %d", response.StatusCode)
	}

	var payload detailResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode product detail: %w", err)
	}

	selected, ok := pickProduct(itemID, payload.Data.Products)
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return toPriceResult(itemID, selected)
}

func pickProduct(itemID string, products []product) (product, bool) {
	if len(products) == 0 {
		return product{}, false
	}
	for _, p := range products {
		if strconv.FormatInt(p.ID, 10) == itemID {
			return p, true
		}
	}
	return products[0], true
}

func toPriceResult(itemID string, p product) (*domain.PriceResult, error) {
	result := &domain.PriceResult{ItemID: itemID, Name: p.Name}

	switch {
	case p.PriceU.positive():
		result.Price = p.PriceU.Decimal()
		if p.SalePriceU.positive() {
			sale := p.SalePriceU.Decimal()
			result.SalePrice = &sale
		}
	default:
		size, ok := firstPricedSize(p.Sizes)
		if !ok {
			return nil, errNoPrice
		}
		result.Price = size.Basic.Decimal()
		if !size.Basic.positive() {
			result.Price = size.Product.Decimal()
		}
		if size.Product.positive() {
			sale := size.Product.Decimal()
			result.SalePrice = &sale
		}
	}
	return result, nil
}

func firstPricedSize(sizes []productSize) (sizePrice, bool) {
	for _, size := range sizes {
		if size.Price == nil {
			continue
		}
		if size.Price.Basic.positive() || size.Price.Product.positive() {
			return *size.Price, true
		}
	}
	return sizePrice{}, false
}
