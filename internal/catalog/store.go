package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vnglass/glassflow/internal/bom"
	"github.com/vnglass/glassflow/internal/production"
)

// Store loads catalog rows from the system of record.
type Store interface {
	LoadSaleOrder(ctx context.Context, id int64) (production.SaleOrder, error)
	LoadProduct(ctx context.Context, id int64) (production.Product, error)
}

// PGStore reads sale orders and products from Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore builds a Postgres-backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// LoadSaleOrder returns the sale order header, its customer and lines.
func (s *PGStore) LoadSaleOrder(ctx context.Context, id int64) (production.SaleOrder, error) {
	var so production.SaleOrder
	err := s.pool.QueryRow(ctx, `
		SELECT so.id, so.order_code, so.order_date, so.delivery_status,
		       COALESCE(c.id, 0), COALESCE(c.name, ''), COALESCE(c.address, ''), COALESCE(c.phone, '')
		FROM sale_orders so
		LEFT JOIN customers c ON c.id = so.customer_id
		WHERE so.id = $1`, id).
		Scan(&so.ID, &so.OrderCode, &so.OrderDate, &so.DeliveryStatus,
			&so.Customer.ID, &so.Customer.Name, &so.Customer.Address, &so.Customer.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return production.SaleOrder{}, production.ErrSaleOrderNotFound
	}
	if err != nil {
		return production.SaleOrder{}, fmt.Errorf("catalog: load sale order %d: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT product_id, quantity, unit_price
		FROM sale_order_lines
		WHERE sale_order_id = $1
		ORDER BY id`, id)
	if err != nil {
		return production.SaleOrder{}, fmt.Errorf("catalog: load sale order lines %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var line production.SaleOrderLine
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.UnitPrice); err != nil {
			return production.SaleOrder{}, err
		}
		so.Lines = append(so.Lines, line)
	}
	return so, rows.Err()
}

// LoadProduct returns a product; GlassStructure is nil when no layers are recorded.
func (s *PGStore) LoadProduct(ctx context.Context, id int64) (production.Product, error) {
	var (
		p         production.Product
		layers    *int
		adhesive  *string
		thickness decimal.NullDecimal
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, name, uom, width, height, glass_layers, adhesive_type, adhesive_thickness
		FROM products
		WHERE id = $1`, id).
		Scan(&p.ID, &p.Code, &p.Name, &p.UOM, &p.Width, &p.Height, &layers, &adhesive, &thickness)
	if errors.Is(err, pgx.ErrNoRows) {
		return production.Product{}, production.ErrProductNotFound
	}
	if err != nil {
		return production.Product{}, fmt.Errorf("catalog: load product %d: %w", id, err)
	}
	if layers != nil {
		gs := &bom.GlassStructure{GlassLayers: *layers}
		if adhesive != nil {
			gs.AdhesiveType = *adhesive
		}
		if thickness.Valid {
			gs.AdhesiveThickness = thickness.Decimal
		}
		p.GlassStructure = gs
	}
	return p, nil
}
