package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/vnglass/glassflow/internal/platform/db"
	"github.com/vnglass/glassflow/internal/production"
)

// ErrEmptyPlan is returned when a plan has no lines to dispatch.
var ErrEmptyPlan = errors.New("seed: plan has no details")

// DispatchLine is one output a dispatched order must produce.
type DispatchLine struct {
	PlanDetailID int64
	ProductID    int64
	ProductName  string
	Quantity     decimal.Decimal
	Materials    []DispatchMaterial
}

// DispatchMaterial is the planned consumption of one material product.
type DispatchMaterial struct {
	Code   string
	UOM    string
	Amount decimal.Decimal
}

// DispatchLines derives the outputs and planned materials of an order of the
// given category from the plan lines.
func DispatchLines(details []production.PlanDetail, category production.OrderCategory) []DispatchLine {
	lines := make([]DispatchLine, 0, len(details))
	for _, d := range details {
		line := DispatchLine{
			PlanDetailID: d.ID,
			ProductID:    d.ProductID,
			ProductName:  d.ProductName,
			Quantity:     d.Quantity,
		}
		var mats []DispatchMaterial
		switch category {
		case production.OrderCategoryGluePouring:
			mats = []DispatchMaterial{
				{MaterialNano, "kg", d.TotalAdhesiveNano},
				{MaterialSoft, "kg", d.TotalAdhesiveSoft},
				{MaterialOther, "kg", d.TotalAdhesiveOther},
			}
		case production.OrderCategoryGlueGlass:
			mats = []DispatchMaterial{{MaterialButyl, "m", d.ButylLength}}
		case production.OrderCategoryCutGlass:
			mats = []DispatchMaterial{
				{MaterialGlass4, "tấm", d.Quantity.Mul(decimal.NewFromInt(int64(d.Glass4mm)))},
				{MaterialGlass5, "tấm", d.Quantity.Mul(decimal.NewFromInt(int64(d.Glass5mm)))},
			}
		}
		for _, m := range mats {
			if m.Amount.IsPositive() {
				line.Materials = append(line.Materials, m)
			}
		}
		lines = append(lines, line)
	}
	return lines
}

// Dispatch creates a production order for every line of the plan, standing in
// for the dispatch service that owns order creation in production.
func Dispatch(ctx context.Context, conn db.Beginner, planID int64, category production.OrderCategory, logger *slog.Logger) (int64, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var orderID int64
	err := db.WithTx(ctx, conn, func(tx pgx.Tx) error {
		details, err := loadPlanDetails(ctx, tx, planID)
		if err != nil {
			return err
		}
		if len(details) == 0 {
			return ErrEmptyPlan
		}

		var seq int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) + 1 FROM production_orders WHERE plan_id = $1`, planID).Scan(&seq); err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO production_orders (plan_id, code, category, description, status, order_date)
			VALUES ($1, $2, $3, $4, $5, NOW())
			RETURNING id`,
			planID, fmt.Sprintf("LSX-%d-%02d", planID, seq), string(category),
			fmt.Sprintf("dispatched from plan %d", planID), string(production.OrderStatusPending),
		).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, line := range DispatchLines(details, category) {
			if _, err := tx.Exec(ctx, `
				INSERT INTO production_order_details (order_id, plan_detail_id, product_id, quantity)
				VALUES ($1, $2, $3, $4)`, orderID, line.PlanDetailID, line.ProductID, line.Quantity); err != nil {
				return fmt.Errorf("insert order detail: %w", err)
			}
			var outputID int64
			err := tx.QueryRow(ctx, `
				INSERT INTO production_outputs (order_id, product_id, product_name, uom, amount, finished, defected)
				VALUES ($1, $2, $3, 'tấm', $4, 0, 0)
				RETURNING id`, orderID, line.ProductID, line.ProductName, line.Quantity).Scan(&outputID)
			if err != nil {
				return fmt.Errorf("insert output: %w", err)
			}
			for _, m := range line.Materials {
				if _, err := tx.Exec(ctx, `
					INSERT INTO production_materials (output_id, product_id, uom, amount)
					SELECT $1, id, $3, $4 FROM products WHERE code = $2`,
					outputID, m.Code, m.UOM, m.Amount); err != nil {
					return fmt.Errorf("insert material %s: %w", m.Code, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.Info("order dispatched",
		slog.Int64("plan_id", planID),
		slog.Int64("order_id", orderID),
		slog.String("category", string(category)))
	return orderID, nil
}

func loadPlanDetails(ctx context.Context, tx pgx.Tx, planID int64) ([]production.PlanDetail, error) {
	rows, err := tx.Query(ctx, `
		SELECT d.id, d.product_id, COALESCE(p.name, ''), d.quantity, d.glass_4mm, d.glass_5mm,
		       d.total_adhesive_nano, d.total_adhesive_soft, d.total_adhesive_other, d.butyl_length
		FROM production_plan_details d
		LEFT JOIN products p ON p.id = d.product_id
		WHERE d.plan_id = $1
		ORDER BY d.id`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var details []production.PlanDetail
	for rows.Next() {
		d := production.PlanDetail{PlanID: planID}
		if err := rows.Scan(&d.ID, &d.ProductID, &d.ProductName, &d.Quantity, &d.Glass4mm, &d.Glass5mm,
			&d.TotalAdhesiveNano, &d.TotalAdhesiveSoft, &d.TotalAdhesiveOther, &d.ButylLength); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}
