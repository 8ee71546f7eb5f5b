// Package catalog serves unit prices per item type and category, caching each
// item type's table in the cross-session tier.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/currency"

	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/kv"
	"github.com/Travelintrips/travelpage-sub004/internal/port"
)

var ErrPriceNotFound = errors.New("price not found")

type cachedTable struct {
	Prices []cachedPrice `cbor:"prices"`
}

type cachedPrice struct {
	Category string `cbor:"category"`
	Amount   string `cbor:"amount"`
	Currency string `cbor:"currency"`
}

type Catalog struct {
	repo   port.PriceRepository
	cache  kv.Store
	ttl    time.Duration
	logger *zap.Logger

	group singleflight.Group
}

func New(repo port.PriceRepository, cache kv.Store, ttl time.Duration, logger *zap.Logger) *Catalog {
	return &Catalog{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		logger: logger.Named("catalog"),
	}
}

func (c *Catalog) UnitPrice(ctx context.Context, itemType domain.ItemType, category string) (domain.Money, error) {
	prices, err := c.Table(ctx, itemType)
	if err != nil {
		return domain.Money{}, fmt.Errorf("c.Table: %w", err)
	}

	for _, price := range prices {
		if price.Category == category {
			return price.Amount, nil
		}
	}

	return domain.Money{}, fmt.Errorf("item type[%s] category[%s]: %w", itemType, category, ErrPriceNotFound)
}

// Table returns every price of itemType, from cache when present.
func (c *Catalog) Table(ctx context.Context, itemType domain.ItemType) ([]domain.Price, error) {
	key := kv.Key(kv.NamespaceCatalog, string(itemType), kv.NamePrices)

	if prices, ok := c.readCache(ctx, key, itemType); ok {
		return prices, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		prices, err := c.repo.ListPrices(ctx, itemType)
		if err != nil {
			return nil, fmt.Errorf("repo.ListPrices: %w", err)
		}

		if err := kv.SetRecord(ctx, c.cache, key, mapPricesToCache(prices), c.ttl); err != nil {
			c.logger.Warn("write price cache", zap.String("key", key), zap.Error(err))
		}
		return prices, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]domain.Price), nil
}

func (c *Catalog) readCache(ctx context.Context, key string, itemType domain.ItemType) ([]domain.Price, bool) {
	var table cachedTable
	ok, err := kv.GetRecord(ctx, c.cache, key, &table)
	if err == nil && !ok {
		return nil, false
	}

	var prices []domain.Price
	if err == nil {
		prices, err = mapCacheToPrices(itemType, table)
	}
	if err != nil {
		c.logger.Debug("dropping unreadable price cache", zap.String("key", key), zap.Error(err))
		if delErr := c.cache.Delete(ctx, key); delErr != nil {
			c.logger.Warn("delete price cache", zap.String("key", key), zap.Error(delErr))
		}
		return nil, false
	}

	return prices, true
}

func mapPricesToCache(prices []domain.Price) cachedTable {
	table := cachedTable{Prices: make([]cachedPrice, 0, len(prices))}
	for _, p := range prices {
		table.Prices = append(table.Prices, cachedPrice{
			Category: p.Category,
			Amount:   p.Amount.Amount.String(),
			Currency: p.Amount.Currency.String(),
		})
	}
	return table
}

func mapCacheToPrices(itemType domain.ItemType, table cachedTable) ([]domain.Price, error) {
	prices := make([]domain.Price, 0, len(table.Prices))
	for _, p := range table.Prices {
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return nil, fmt.Errorf("decimal.NewFromString: %w", err)
		}

		unit, err := currency.ParseISO(p.Currency)
		if err != nil {
			return nil, fmt.Errorf("currency.ParseISO: %w", err)
		}

		prices = append(prices, domain.Price{
			ItemType: itemType,
			Category: p.Category,
			Amount:   domain.Money{Amount: amount, Currency: unit},
		})
	}
	return prices, nil
}
