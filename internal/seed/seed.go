// Package seed loads demo catalog data and simulates order dispatch for local
// environments.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/vnglass/glassflow/internal/platform/db"
)

// Material product codes referenced by dispatched orders.
const (
	MaterialNano   = "KEO-NANO"
	MaterialSoft   = "KEO-MEM"
	MaterialOther  = "KEO-KHAC"
	MaterialButyl  = "BUTYL"
	MaterialGlass4 = "KINH-4MM"
	MaterialGlass5 = "KINH-5MM"
)

type customer struct {
	name    string
	address string
	phone   string
}

type product struct {
	code      string
	name      string
	uom       string
	width     string
	height    string
	layers    int
	adhesive  string
	thickness string
}

type saleOrder struct {
	code     string
	customer int
	lines    []saleLine
}

type saleLine struct {
	product  string
	quantity string
	price    string
}

var customers = []customer{
	{"Công ty TNHH Xây dựng Minh Phát", "12 Nguyễn Trãi, Hà Nội", "024-3555-0101"},
	{"Công ty CP Nội thất An Khang", "88 Lê Lợi, Đà Nẵng", "0236-355-0102"},
	{"Chủ đầu tư Tòa nhà Sao Mai", "5 Phạm Văn Đồng, TP.HCM", "028-3555-0103"},
}

var products = []product{
	{code: "KCL-EI60-1020", name: "Kính chống cháy EI60 1000x2000", uom: "tấm", width: "1000", height: "2000", layers: 4, adhesive: "nano", thickness: "6"},
	{code: "KCL-EI30-0808", name: "Kính chống cháy EI30 800x800", uom: "tấm", width: "800", height: "800", layers: 3, adhesive: "nano", thickness: "4"},
	{code: "KDL-MEM-0505", name: "Kính dán an toàn 500x500", uom: "tấm", width: "500", height: "500", layers: 2, adhesive: "Mềm", thickness: "1"},
	{code: "KDL-PVB-1212", name: "Kính dán PVB 1200x1200", uom: "tấm", width: "1200", height: "1200", layers: 2, adhesive: "PVB", thickness: "0.76"},
	{code: MaterialNano, name: "Keo nano", uom: "kg"},
	{code: MaterialSoft, name: "Keo mềm", uom: "kg"},
	{code: MaterialOther, name: "Keo khác", uom: "kg"},
	{code: MaterialButyl, name: "Băng butyl", uom: "m"},
	{code: MaterialGlass4, name: "Kính phôi 4mm", uom: "tấm"},
	{code: MaterialGlass5, name: "Kính phôi 5mm", uom: "tấm"},
}

var saleOrders = []saleOrder{
	{code: "DH-2026-0001", customer: 0, lines: []saleLine{
		{"KCL-EI60-1020", "10", "4250000"},
		{"KCL-EI30-0808", "6", "2100000"},
	}},
	{code: "DH-2026-0002", customer: 1, lines: []saleLine{
		{"KDL-MEM-0505", "16", "650000"},
		{"KDL-PVB-1212", "4", "1850000"},
	}},
	{code: "DH-2026-0003", customer: 2, lines: []saleLine{
		{"KCL-EI60-1020", "24", "4100000"},
	}},
}

// Summary counts what a seed run wrote.
type Summary struct {
	Customers  int
	Products   int
	SaleOrders int
}

// Run upserts the demo catalog inside one transaction. Re-running is safe.
func Run(ctx context.Context, conn db.Beginner, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var summary Summary
	err := db.WithTx(ctx, conn, func(tx pgx.Tx) error {
		customerIDs := make([]int64, len(customers))
		for i, c := range customers {
			err := tx.QueryRow(ctx, `
				INSERT INTO customers (name, address, phone)
				SELECT $1::text, $2::text, $3::text
				WHERE NOT EXISTS (SELECT 1 FROM customers WHERE name = $1)
				RETURNING id`, c.name, c.address, c.phone).Scan(&customerIDs[i])
			if errors.Is(err, pgx.ErrNoRows) {
				err = tx.QueryRow(ctx, `SELECT id FROM customers WHERE name = $1`, c.name).Scan(&customerIDs[i])
			}
			if err != nil {
				return fmt.Errorf("seed customer %q: %w", c.name, err)
			}
			summary.Customers++
		}

		productIDs := make(map[string]int64, len(products))
		for _, p := range products {
			var layers *int
			var adhesive *string
			var thickness decimal.NullDecimal
			if p.layers > 0 {
				layers = &p.layers
				adhesive = &p.adhesive
				thickness = decimal.NewNullDecimal(decimal.RequireFromString(p.thickness))
			}
			var id int64
			err := tx.QueryRow(ctx, `
				INSERT INTO products (code, name, uom, width, height, glass_layers, adhesive_type, adhesive_thickness)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (code) DO UPDATE SET
					name = EXCLUDED.name, uom = EXCLUDED.uom, width = EXCLUDED.width, height = EXCLUDED.height,
					glass_layers = EXCLUDED.glass_layers, adhesive_type = EXCLUDED.adhesive_type,
					adhesive_thickness = EXCLUDED.adhesive_thickness
				RETURNING id`,
				p.code, p.name, p.uom, p.width, p.height, layers, adhesive, thickness).Scan(&id)
			if err != nil {
				return fmt.Errorf("seed product %s: %w", p.code, err)
			}
			productIDs[p.code] = id
			summary.Products++
		}

		for _, so := range saleOrders {
			var id int64
			err := tx.QueryRow(ctx, `
				INSERT INTO sale_orders (order_code, customer_id, order_date, delivery_status)
				VALUES ($1, $2, CURRENT_DATE, 'PENDING')
				ON CONFLICT (order_code) DO UPDATE SET customer_id = EXCLUDED.customer_id
				RETURNING id`, so.code, customerIDs[so.customer]).Scan(&id)
			if err != nil {
				return fmt.Errorf("seed sale order %s: %w", so.code, err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM sale_order_lines WHERE sale_order_id = $1`, id); err != nil {
				return err
			}
			for _, line := range so.lines {
				_, err := tx.Exec(ctx, `
					INSERT INTO sale_order_lines (sale_order_id, product_id, quantity, unit_price)
					VALUES ($1, $2, $3, $4)`,
					id, productIDs[line.product], decimal.RequireFromString(line.quantity), decimal.RequireFromString(line.price))
				if err != nil {
					return fmt.Errorf("seed sale order %s line %s: %w", so.code, line.product, err)
				}
			}
			summary.SaleOrders++
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	logger.Info("seed complete",
		slog.Int("customers", summary.Customers),
		slog.Int("products", summary.Products),
		slog.Int("sale_orders", summary.SaleOrders))
	return summary, nil
}
