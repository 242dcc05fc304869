// Package catalog serves sale orders and products to production planning
// through a versioned Redis read-through cache.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/vnglass/glassflow/internal/platform/cache"
	"github.com/vnglass/glassflow/internal/production"
)

// Catalog implements production.SaleOrderProvider and production.ProductCatalog.
type Catalog struct {
	store  Store
	cache  *cache.JSONCache
	group  singleflight.Group
	logger *slog.Logger
}

var (
	_ production.SaleOrderProvider = (*Catalog)(nil)
	_ production.ProductCatalog    = (*Catalog)(nil)
)

// New wires the catalog. A nil cache reads straight from the store.
func New(store Store, jsonCache *cache.JSONCache, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{store: store, cache: jsonCache, logger: logger}
}

// GetSaleOrder returns a sale order, cached per id.
func (c *Catalog) GetSaleOrder(ctx context.Context, id int64) (production.SaleOrder, error) {
	return fetch(ctx, c, c.store.LoadSaleOrder, id, "sale_order")
}

// GetProduct returns a product, cached per id.
func (c *Catalog) GetProduct(ctx context.Context, id int64) (production.Product, error) {
	return fetch(ctx, c, c.store.LoadProduct, id, "product")
}

// Invalidate drops every cached catalog entry.
func (c *Catalog) Invalidate(ctx context.Context) error {
	return c.cache.Bump(ctx)
}

// storeError marks failures that came from the store rather than redis.
type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

func fetch[T any](ctx context.Context, c *Catalog, load func(context.Context, int64) (T, error), id int64, kind string) (T, error) {
	var out T
	loader := func(ctx context.Context) (any, error) {
		return load(ctx, id)
	}
	parts := []string{kind, strconv.FormatInt(id, 10)}

	key, err := c.cache.BuildKey(ctx, parts...)
	if err != nil {
		c.logger.Warn("catalog cache unavailable", slog.Any("error", err))
		return direct[T](ctx, c, strings.Join(parts, ":"), loader)
	}
	err = c.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return c.shared(ctx, key, loader)
	})
	var se *storeError
	switch {
	case err == nil:
		return out, nil
	case errors.As(err, &se):
		return out, se.err
	case ctx.Err() != nil:
		return out, ctx.Err()
	}
	c.logger.Warn("catalog cache read failed", slog.String("key", key), slog.Any("error", err))
	return direct[T](ctx, c, key, loader)
}

func direct[T any](ctx context.Context, c *Catalog, key string, loader func(context.Context) (any, error)) (T, error) {
	var zero T
	v, err := c.shared(ctx, key, loader)
	if err != nil {
		var se *storeError
		if errors.As(err, &se) {
			return zero, se.err
		}
		return zero, err
	}
	return v.(T), nil
}

// shared collapses concurrent loads of the same key into one store call.
func (c *Catalog) shared(ctx context.Context, key string, loader func(context.Context) (any, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		return loader(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, &storeError{err: res.Err}
		}
		return res.Val, nil
	}
}
