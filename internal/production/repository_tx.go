package production

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// InsertPlan stores the plan header.
func (t *txRepository) InsertPlan(ctx context.Context, plan Plan) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO production_plans (sale_order_id, customer_id, plan_date, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		plan.SaleOrderID, nullableID(plan.CustomerID), plan.PlanDate, string(plan.Status),
	).Scan(&id)
	return id, err
}

// InsertPlanDetail stores one plan line.
func (t *txRepository) InsertPlanDetail(ctx context.Context, d PlanDetail) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO production_plan_details (
			plan_id, product_id, quantity, thickness, glue_layers, glass_layers,
			glass_4mm, glass_5mm, butyl_type, tempered, adhesive_type,
			total_adhesive_nano, total_adhesive_soft, total_adhesive_other, butyl_length,
			done, delivered
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		d.PlanID, d.ProductID, d.Quantity, d.Thickness, d.GlueLayers, d.GlassLayers,
		d.Glass4mm, d.Glass5mm, d.ButylType, d.Tempered, d.AdhesiveType,
		d.TotalAdhesiveNano, d.TotalAdhesiveSoft, d.TotalAdhesiveOther, d.ButylLength,
		d.Done, d.Delivered,
	).Scan(&id)
	return id, err
}

// LockPlan takes a row lock on the plan header.
func (t *txRepository) LockPlan(ctx context.Context, planID int64) error {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM production_plans WHERE id = $1 FOR UPDATE`, planID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPlanNotFound
	}
	return err
}

// teardownSQL holds one DELETE per entity kind, scoped to a plan.
var teardownSQL = map[Entity]string{
	EntityMaterials: `DELETE FROM production_materials m
		USING production_outputs o, production_orders po
		WHERE m.output_id = o.id AND o.order_id = po.id AND po.plan_id = $1`,
	EntityExportDetails: `DELETE FROM chemical_export_details d
		USING chemical_exports e, production_orders po
		WHERE d.export_id = e.id AND e.order_id = po.id AND po.plan_id = $1`,
	EntityExports: `DELETE FROM chemical_exports e
		USING production_orders po
		WHERE e.order_id = po.id AND po.plan_id = $1`,
	EntityDefects: `DELETE FROM production_defects d
		USING production_orders po
		WHERE d.order_id = po.id AND po.plan_id = $1`,
	EntityOutputs: `DELETE FROM production_outputs o
		USING production_orders po
		WHERE o.order_id = po.id AND po.plan_id = $1`,
	EntityOrderDetails: `DELETE FROM production_order_details d
		USING production_orders po
		WHERE d.order_id = po.id AND po.plan_id = $1`,
	EntityOrders:      `DELETE FROM production_orders WHERE plan_id = $1`,
	EntityPlanDetails: `DELETE FROM production_plan_details WHERE plan_id = $1`,
	EntityPlan:        `DELETE FROM production_plans WHERE id = $1`,
}

// DeletePlanRows deletes every row of one entity kind that belongs to the plan.
func (t *txRepository) DeletePlanRows(ctx context.Context, entity Entity, planID int64) (int64, error) {
	query, ok := teardownSQL[entity]
	if !ok {
		return 0, fmt.Errorf("production: no teardown statement for %s", entity)
	}
	tag, err := t.tx.Exec(ctx, query, planID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetOrderForUpdate locks the order row, serialising every counter update of the order.
func (t *txRepository) GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error) {
	var o Order
	var category, status string
	err := t.tx.QueryRow(ctx, `
		SELECT id, plan_id, code, category, description, status, order_date, version
		FROM production_orders
		WHERE id = $1
		FOR UPDATE`, orderID,
	).Scan(&o.ID, &o.PlanID, &o.Code, &category, &o.Description, &status, &o.OrderDate, &o.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	o.Category = OrderCategory(category)
	o.Status = OrderStatus(status)
	return o, nil
}

// UpdateOrderStatus sets the order status and bumps its version.
func (t *txRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE production_orders
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2`, string(status), orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// GetOutputForUpdate locks the output of (order, product).
func (t *txRepository) GetOutputForUpdate(ctx context.Context, orderID, productID int64) (Output, error) {
	var o Output
	err := t.tx.QueryRow(ctx, `
		SELECT id, order_id, product_id, COALESCE(product_name, ''), uom,
		       COALESCE(amount, 0), COALESCE(finished, 0), COALESCE(defected, 0), version
		FROM production_outputs
		WHERE order_id = $1 AND product_id = $2
		ORDER BY id
		LIMIT 1
		FOR UPDATE`, orderID, productID,
	).Scan(&o.ID, &o.OrderID, &o.ProductID, &o.ProductName, &o.UOM, &o.Amount, &o.Finished, &o.Defected, &o.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Output{}, ErrOutputNotFound
		}
		return Output{}, err
	}
	return o, nil
}

// UpdateOutputCounters writes Finished and Defected guarded by the row version.
func (t *txRepository) UpdateOutputCounters(ctx context.Context, out Output) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE production_outputs
		SET finished = $1, defected = $2, version = version + 1
		WHERE id = $3 AND version = $4`,
		out.Finished, out.Defected, out.ID, out.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	return nil
}

// ListOutputs locks and returns every output of the order.
func (t *txRepository) ListOutputs(ctx context.Context, orderID int64) ([]Output, error) {
	return listOutputs(ctx, t.tx, orderID, true)
}

// GetPlanDetailForUpdate locks the plan line of (plan, product).
func (t *txRepository) GetPlanDetailForUpdate(ctx context.Context, planID, productID int64) (PlanDetail, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+planDetailColumns+`
		FROM production_plan_details d
		LEFT JOIN products p ON p.id = d.product_id
		WHERE d.plan_id = $1 AND d.product_id = $2
		ORDER BY d.id
		LIMIT 1
		FOR UPDATE OF d`, planID, productID)
	d, err := scanPlanDetail(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PlanDetail{}, ErrDetailNotFound
		}
		return PlanDetail{}, err
	}
	return d, nil
}

// UpdatePlanDetailDone writes Done guarded by the row version.
func (t *txRepository) UpdatePlanDetailDone(ctx context.Context, d PlanDetail) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE production_plan_details
		SET done = $1, version = version + 1
		WHERE id = $2 AND version = $3`, d.Done, d.ID, d.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	return nil
}

// InsertExport stores an export header.
func (t *txRepository) InsertExport(ctx context.Context, e Export) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO chemical_exports (order_id, product_id, quantity, uom, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		e.OrderID, e.ProductID, e.Quantity, e.UOM, e.Note, e.CreatedAt,
	).Scan(&id)
	return id, err
}

// InsertExportDetail stores one consumed material line.
func (t *txRepository) InsertExportDetail(ctx context.Context, d ExportDetail) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO chemical_export_details (export_id, product_id, quantity, uom, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		d.ExportID, d.ProductID, d.Quantity, d.UOM, d.Note,
	).Scan(&id)
	return id, err
}

// GetExportForUpdate locks an export header and returns it with its details.
func (t *txRepository) GetExportForUpdate(ctx context.Context, exportID int64) (Export, error) {
	var e Export
	err := t.tx.QueryRow(ctx, `
		SELECT id, order_id, product_id, quantity, uom, note, created_at
		FROM chemical_exports
		WHERE id = $1
		FOR UPDATE`, exportID,
	).Scan(&e.ID, &e.OrderID, &e.ProductID, &e.Quantity, &e.UOM, &e.Note, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Export{}, ErrExportNotFound
		}
		return Export{}, err
	}
	rows, err := t.tx.Query(ctx, `
		SELECT id, export_id, product_id, quantity, uom, note
		FROM chemical_export_details
		WHERE export_id = $1
		ORDER BY id`, exportID)
	if err != nil {
		return Export{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var d ExportDetail
		if err := rows.Scan(&d.ID, &d.ExportID, &d.ProductID, &d.Quantity, &d.UOM, &d.Note); err != nil {
			return Export{}, err
		}
		e.Details = append(e.Details, d)
	}
	return e, rows.Err()
}

// DeleteExport removes the detail lines and then the header.
func (t *txRepository) DeleteExport(ctx context.Context, exportID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM chemical_export_details WHERE export_id = $1`, exportID); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM chemical_exports WHERE id = $1`, exportID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExportNotFound
	}
	return nil
}

// InsertDefect stores a defect report.
func (t *txRepository) InsertDefect(ctx context.Context, d Defect) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO production_defects (order_id, product_id, quantity, defect_type, defect_stage, note, reported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		d.OrderID, d.ProductID, d.Quantity, d.DefectType, d.DefectStage, d.Note, d.ReportedAt,
	).Scan(&id)
	return id, err
}

// GetDefectForUpdate locks one defect report.
func (t *txRepository) GetDefectForUpdate(ctx context.Context, id int64) (Defect, error) {
	return getDefect(ctx, t.tx, id, true)
}

// UpdateDefect rewrites a defect report.
func (t *txRepository) UpdateDefect(ctx context.Context, d Defect) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE production_defects
		SET quantity = $1, defect_type = $2, defect_stage = $3, note = $4, reported_at = $5
		WHERE id = $6`,
		d.Quantity, d.DefectType, d.DefectStage, d.Note, d.ReportedAt, d.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDefectNotFound
	}
	return nil
}

// GetOutputByIDForUpdate locks one output by id.
func (t *txRepository) GetOutputByIDForUpdate(ctx context.Context, id int64) (Output, error) {
	return getOutput(ctx, t.tx, id, true)
}
