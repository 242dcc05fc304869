package production

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vnglass/glassflow/internal/platform/db"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	HasPlanForSaleOrder(ctx context.Context, saleOrderID int64) (bool, error)
	ListPlans(ctx context.Context) ([]PlanListItem, error)
	GetPlan(ctx context.Context, id int64) (Plan, error)
	ListPlanOutputs(ctx context.Context, planID int64) ([]PlanOutputSummary, error)
	GetExport(ctx context.Context, id int64) (Export, error)
	ListExports(ctx context.Context, orderID int64) ([]Export, error)
	ListOrderOutputs(ctx context.Context, orderID int64) ([]Output, error)
	ListOrderMaterials(ctx context.Context, orderID int64) ([]Material, error)
	ListDefects(ctx context.Context, orderID int64) ([]Defect, error)
	GetDefect(ctx context.Context, id int64) (Defect, error)
	GetOutput(ctx context.Context, id int64) (Output, error)
	ListOpenOrderIDs(ctx context.Context) ([]int64, error)
}

// TxRepository exposes the transactional operations used by the service.
// Every *ForUpdate method takes a row lock that is held until commit.
type TxRepository interface {
	InsertPlan(ctx context.Context, plan Plan) (int64, error)
	InsertPlanDetail(ctx context.Context, detail PlanDetail) (int64, error)
	LockPlan(ctx context.Context, planID int64) error
	DeletePlanRows(ctx context.Context, entity Entity, planID int64) (int64, error)

	GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error

	GetOutputForUpdate(ctx context.Context, orderID, productID int64) (Output, error)
	UpdateOutputCounters(ctx context.Context, out Output) error
	ListOutputs(ctx context.Context, orderID int64) ([]Output, error)

	GetPlanDetailForUpdate(ctx context.Context, planID, productID int64) (PlanDetail, error)
	UpdatePlanDetailDone(ctx context.Context, detail PlanDetail) error

	InsertExport(ctx context.Context, exp Export) (int64, error)
	InsertExportDetail(ctx context.Context, detail ExportDetail) (int64, error)
	GetExportForUpdate(ctx context.Context, exportID int64) (Export, error)
	DeleteExport(ctx context.Context, exportID int64) error

	InsertDefect(ctx context.Context, defect Defect) (int64, error)
	GetDefectForUpdate(ctx context.Context, id int64) (Defect, error)
	UpdateDefect(ctx context.Context, defect Defect) error
	GetOutputByIDForUpdate(ctx context.Context, id int64) (Output, error)
}

// ErrStaleVersion indicates a counter row changed between read and write.
var ErrStaleVersion = errors.New("production: stale row version")

// Repository persists production data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// txAttempts bounds how often a unit of work is replayed after a
// serialization failure or deadlock.
const txAttempts = 3

// WithTx executes the callback inside a read-committed transaction. Rows read
// FOR UPDATE are therefore the latest committed versions once the lock is
// granted. Serialization failures and deadlocks are retried; what remains
// surfaces as ErrStaleVersion.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.RetrySerializable(ctx, txAttempts, func() error {
		return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
			return fn(ctx, &txRepository{tx: tx})
		})
	})
	return staleOnSerialization(err)
}

func staleOnSerialization(err error) error {
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", ErrStaleVersion, err)
	}
	return err
}

// HasPlanForSaleOrder reports whether a plan already exists for the sale order.
func (r *Repository) HasPlanForSaleOrder(ctx context.Context, saleOrderID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM production_plans WHERE sale_order_id = $1)`, saleOrderID).Scan(&exists)
	return exists, err
}

// ListPlans returns every plan with its requested quantity.
func (r *Repository) ListPlans(ctx context.Context) ([]PlanListItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.plan_date, COALESCE(so.order_code, ''), p.sale_order_id,
		       COALESCE(c.name, ''), COALESCE(SUM(d.quantity), 0), p.status
		FROM production_plans p
		LEFT JOIN sale_orders so ON so.id = p.sale_order_id
		LEFT JOIN customers c ON c.id = p.customer_id
		LEFT JOIN production_plan_details d ON d.plan_id = p.id
		GROUP BY p.id, so.order_code, c.name
		ORDER BY p.plan_date DESC, p.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []PlanListItem
	for rows.Next() {
		var item PlanListItem
		var status string
		if err := rows.Scan(&item.ID, &item.PlanDate, &item.OrderCode, &item.SaleOrderID, &item.CustomerName, &item.Quantity, &status); err != nil {
			return nil, err
		}
		item.Status = PlanStatus(status)
		plans = append(plans, item)
	}
	return plans, rows.Err()
}

// GetPlan loads a plan together with its details.
func (r *Repository) GetPlan(ctx context.Context, id int64) (Plan, error) {
	var plan Plan
	var status string
	var customerID *int64
	err := r.pool.QueryRow(ctx, `SELECT id, sale_order_id, customer_id, plan_date, status FROM production_plans WHERE id = $1`, id).
		Scan(&plan.ID, &plan.SaleOrderID, &customerID, &plan.PlanDate, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Plan{}, ErrPlanNotFound
		}
		return Plan{}, err
	}
	plan.Status = PlanStatus(status)
	if customerID != nil {
		plan.CustomerID = *customerID
	}

	rows, err := r.pool.Query(ctx, `SELECT `+planDetailColumns+`
		FROM production_plan_details d
		LEFT JOIN products p ON p.id = d.product_id
		WHERE d.plan_id = $1
		ORDER BY d.id`, id)
	if err != nil {
		return Plan{}, err
	}
	defer rows.Close()
	for rows.Next() {
		detail, err := scanPlanDetail(rows)
		if err != nil {
			return Plan{}, err
		}
		plan.Details = append(plan.Details, detail)
	}
	return plan, rows.Err()
}

// ListPlanOutputs groups the outputs of every order of a plan by product.
func (r *Repository) ListPlanOutputs(ctx context.Context, planID int64) ([]PlanOutputSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT MIN(o.id), o.product_id, COALESCE(MAX(o.product_name), ''),
		       COALESCE(SUM(o.amount), 0), COALESCE(SUM(o.finished), 0), COALESCE(SUM(o.defected), 0)
		FROM production_outputs o
		JOIN production_orders po ON po.id = o.order_id
		WHERE po.plan_id = $1
		GROUP BY o.product_id
		ORDER BY MIN(o.id)`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlanOutputSummary
	for rows.Next() {
		var s PlanOutputSummary
		if err := rows.Scan(&s.OutputID, &s.ProductID, &s.ProductName, &s.TotalAmount, &s.Done, &s.Broken); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetExport loads one export with its detail lines.
func (r *Repository) GetExport(ctx context.Context, id int64) (Export, error) {
	exports, err := r.queryExports(ctx, `WHERE e.id = $1`, id)
	if err != nil {
		return Export{}, err
	}
	if len(exports) == 0 {
		return Export{}, ErrExportNotFound
	}
	return exports[0], nil
}

// ListExports lists exports of an order, or every export when orderID is zero.
func (r *Repository) ListExports(ctx context.Context, orderID int64) ([]Export, error) {
	if orderID == 0 {
		return r.queryExports(ctx, ``)
	}
	return r.queryExports(ctx, `WHERE e.order_id = $1`, orderID)
}

func (r *Repository) queryExports(ctx context.Context, where string, args ...any) ([]Export, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.order_id, e.product_id, COALESCE(p.name, ''), e.quantity, e.uom, e.note, e.created_at
		FROM chemical_exports e
		LEFT JOIN products p ON p.id = e.product_id
		`+where+`
		ORDER BY e.id`, args...)
	if err != nil {
		return nil, err
	}
	var exports []Export
	index := make(map[int64]int)
	for rows.Next() {
		var e Export
		if err := rows.Scan(&e.ID, &e.OrderID, &e.ProductID, &e.ProductName, &e.Quantity, &e.UOM, &e.Note, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		index[e.ID] = len(exports)
		exports = append(exports, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(exports) == 0 {
		return exports, nil
	}

	ids := make([]int64, 0, len(exports))
	for _, e := range exports {
		ids = append(ids, e.ID)
	}
	detailRows, err := r.pool.Query(ctx, `
		SELECT d.id, d.export_id, d.product_id, COALESCE(p.name, ''), d.quantity, d.uom, d.note
		FROM chemical_export_details d
		LEFT JOIN products p ON p.id = d.product_id
		WHERE d.export_id = ANY($1)
		ORDER BY d.id`, ids)
	if err != nil {
		return nil, err
	}
	defer detailRows.Close()
	for detailRows.Next() {
		var d ExportDetail
		if err := detailRows.Scan(&d.ID, &d.ExportID, &d.ProductID, &d.ProductName, &d.Quantity, &d.UOM, &d.Note); err != nil {
			return nil, err
		}
		pos := index[d.ExportID]
		exports[pos].Details = append(exports[pos].Details, d)
	}
	return exports, detailRows.Err()
}

// ListOrderOutputs lists the outputs of an order.
func (r *Repository) ListOrderOutputs(ctx context.Context, orderID int64) ([]Output, error) {
	return listOutputs(ctx, r.pool, orderID, false)
}

// ListOrderMaterials lists the planned materials of an order.
func (r *Repository) ListOrderMaterials(ctx context.Context, orderID int64) ([]Material, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.output_id, m.product_id, COALESCE(p.name, ''), m.uom, m.amount
		FROM production_materials m
		JOIN production_outputs o ON o.id = m.output_id
		LEFT JOIN products p ON p.id = m.product_id
		WHERE o.order_id = $1
		ORDER BY m.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var materials []Material
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.OutputID, &m.ProductID, &m.ProductName, &m.UOM, &m.Amount); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

// ListDefects lists defects reported for an order.
func (r *Repository) ListDefects(ctx context.Context, orderID int64) ([]Defect, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, product_id, quantity, defect_type, defect_stage, note, reported_at
		FROM production_defects
		WHERE order_id = $1
		ORDER BY reported_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defects []Defect
	for rows.Next() {
		var d Defect
		if err := rows.Scan(&d.ID, &d.OrderID, &d.ProductID, &d.Quantity, &d.DefectType, &d.DefectStage, &d.Note, &d.ReportedAt); err != nil {
			return nil, err
		}
		defects = append(defects, d)
	}
	return defects, rows.Err()
}

// GetDefect loads one defect report.
func (r *Repository) GetDefect(ctx context.Context, id int64) (Defect, error) {
	return getDefect(ctx, r.pool, id, false)
}

// GetOutput loads one output by id.
func (r *Repository) GetOutput(ctx context.Context, id int64) (Output, error) {
	return getOutput(ctx, r.pool, id, false)
}

// ListOpenOrderIDs returns orders that may still transition to completed.
func (r *Repository) ListOpenOrderIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM production_orders WHERE status IN ('PENDING', 'IN_PROGRESS') ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const planDetailColumns = `d.id, d.plan_id, d.product_id, COALESCE(p.name, ''), d.quantity, d.thickness,
	d.glue_layers, d.glass_layers, d.glass_4mm, d.glass_5mm, d.butyl_type, d.tempered, d.adhesive_type,
	d.total_adhesive_nano, d.total_adhesive_soft, d.total_adhesive_other, d.butyl_length,
	d.done, d.delivered, d.version`

func scanPlanDetail(row pgx.Row) (PlanDetail, error) {
	var d PlanDetail
	err := row.Scan(&d.ID, &d.PlanID, &d.ProductID, &d.ProductName, &d.Quantity, &d.Thickness,
		&d.GlueLayers, &d.GlassLayers, &d.Glass4mm, &d.Glass5mm, &d.ButylType, &d.Tempered, &d.AdhesiveType,
		&d.TotalAdhesiveNano, &d.TotalAdhesiveSoft, &d.TotalAdhesiveOther, &d.ButylLength,
		&d.Done, &d.Delivered, &d.Version)
	return d, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getDefect(ctx context.Context, q querier, id int64, lock bool) (Defect, error) {
	query := `
		SELECT id, order_id, product_id, quantity, defect_type, defect_stage, note, reported_at
		FROM production_defects
		WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var d Defect
	err := q.QueryRow(ctx, query, id).
		Scan(&d.ID, &d.OrderID, &d.ProductID, &d.Quantity, &d.DefectType, &d.DefectStage, &d.Note, &d.ReportedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Defect{}, ErrDefectNotFound
	}
	return d, err
}

func getOutput(ctx context.Context, q querier, id int64, lock bool) (Output, error) {
	query := `
		SELECT o.id, o.order_id, o.product_id, COALESCE(o.product_name, p.name, ''), o.uom,
		       COALESCE(o.amount, 0), COALESCE(o.finished, 0), COALESCE(o.defected, 0), o.version
		FROM production_outputs o
		LEFT JOIN products p ON p.id = o.product_id
		WHERE o.id = $1`
	if lock {
		query += ` FOR UPDATE OF o`
	}
	var o Output
	err := q.QueryRow(ctx, query, id).
		Scan(&o.ID, &o.OrderID, &o.ProductID, &o.ProductName, &o.UOM, &o.Amount, &o.Finished, &o.Defected, &o.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Output{}, ErrOutputNotFound
	}
	return o, err
}

func listOutputs(ctx context.Context, q querier, orderID int64, lock bool) ([]Output, error) {
	query := `
		SELECT o.id, o.order_id, o.product_id, COALESCE(o.product_name, p.name, ''), o.uom,
		       COALESCE(o.amount, 0), COALESCE(o.finished, 0), COALESCE(o.defected, 0), o.version
		FROM production_outputs o
		LEFT JOIN products p ON p.id = o.product_id
		WHERE o.order_id = $1
		ORDER BY o.id`
	if lock {
		query += ` FOR UPDATE OF o`
	}
	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outputs []Output
	for rows.Next() {
		var o Output
		if err := rows.Scan(&o.ID, &o.OrderID, &o.ProductID, &o.ProductName, &o.UOM, &o.Amount, &o.Finished, &o.Defected, &o.Version); err != nil {
			return nil, err
		}
		outputs = append(outputs, o)
	}
	return outputs, rows.Err()
}

// nullableID maps the zero id to SQL NULL for optional foreign keys.
func nullableID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

// clampSub subtracts q from v without going below zero.
func clampSub(v, q decimal.Decimal) decimal.Decimal {
	res := v.Sub(q)
	if res.IsNegative() {
		return decimal.Zero
	}
	return res
}
