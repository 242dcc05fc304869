package production

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/vnglass/glassflow/internal/bom"
)

// PlanStatus is the free-text status shown on a production plan.
type PlanStatus string

const (
	// PlanStatusInProduction is assigned when a plan is created.
	PlanStatusInProduction PlanStatus = "Đang sản xuất"
	// PlanStatusCompleted marks a finished plan.
	PlanStatusCompleted PlanStatus = "Completed"
)

// OrderStatus enumerates production order states.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// OrderCategory discriminates production order kinds.
type OrderCategory string

const (
	OrderCategoryCutGlass      OrderCategory = "CUT_GLASS"
	OrderCategoryGlueGlass     OrderCategory = "GLUE_GLASS"
	OrderCategoryGelProduction OrderCategory = "GEL_PRODUCTION"
	// OrderCategoryGluePouring is the only category whose exports advance plan progress.
	OrderCategoryGluePouring OrderCategory = "GLUE_POURING"
)

var legacyCategoryLabels = map[string]OrderCategory{
	"cắt kính":     OrderCategoryCutGlass,
	"ghép kính":    OrderCategoryGlueGlass,
	"sản xuất keo": OrderCategoryGelProduction,
	"đổ keo":       OrderCategoryGluePouring,
}

// ParseOrderCategory accepts the enum value or the legacy Vietnamese label.
func ParseOrderCategory(raw string) (OrderCategory, error) {
	trimmed := strings.TrimSpace(raw)
	switch cat := OrderCategory(strings.ToUpper(trimmed)); cat {
	case OrderCategoryCutGlass, OrderCategoryGlueGlass, OrderCategoryGelProduction, OrderCategoryGluePouring:
		return cat, nil
	}
	key := norm.NFC.String(cases.Fold().String(norm.NFC.String(trimmed)))
	for label, cat := range legacyCategoryLabels {
		if norm.NFC.String(label) == key {
			return cat, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
}

// AdvancesPlan reports whether exports on this category move PlanDetail.Done.
func (c OrderCategory) AdvancesPlan() bool {
	return c == OrderCategoryGluePouring
}

// Plan is the production plan derived from one sale order.
type Plan struct {
	ID          int64
	SaleOrderID int64
	CustomerID  int64
	PlanDate    time.Time
	Status      PlanStatus
	Details     []PlanDetail
}

// PlanDetail is one product line of a plan together with its BOM figures.
type PlanDetail struct {
	ID                 int64           `json:"id"`
	PlanID             int64           `json:"plan_id"`
	ProductID          int64           `json:"product_id"`
	ProductName        string          `json:"product_name"`
	Quantity           decimal.Decimal `json:"quantity"`
	Thickness          decimal.Decimal `json:"thickness"`
	GlueLayers         int             `json:"glue_layers"`
	GlassLayers        int             `json:"glass_layers"`
	Glass4mm           int             `json:"glass_4mm"`
	Glass5mm           int             `json:"glass_5mm"`
	ButylType          int             `json:"butyl_type"`
	Tempered           bool            `json:"tempered"`
	AdhesiveType       string          `json:"adhesive_type"`
	TotalAdhesiveNano  decimal.Decimal `json:"total_adhesive_nano"`
	TotalAdhesiveSoft  decimal.Decimal `json:"total_adhesive_soft"`
	TotalAdhesiveOther decimal.Decimal `json:"total_adhesive_other"`
	ButylLength        decimal.Decimal `json:"butyl_length"`
	Done               decimal.Decimal `json:"done"`
	Delivered          decimal.Decimal `json:"delivered"`
	Version            int64           `json:"version"`
}

// Order is a unit of production work spawned from a plan.
type Order struct {
	ID          int64
	PlanID      int64
	Code        string
	Category    OrderCategory
	Description string
	Status      OrderStatus
	OrderDate   time.Time
	Version     int64
}

// Output tracks expected and achieved quantities per order and product.
type Output struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	UOM         string          `json:"uom"`
	Amount      decimal.Decimal `json:"amount"`
	Finished    decimal.Decimal `json:"finished"`
	Defected    decimal.Decimal `json:"defected"`
	Version     int64           `json:"version"`
}

// Satisfied reports whether the output reached its expected amount.
func (o Output) Satisfied() bool {
	return o.Finished.GreaterThanOrEqual(o.Amount)
}

// Material is a planned raw-material requirement attached to an output.
type Material struct {
	ID          int64           `json:"id"`
	OutputID    int64           `json:"output_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	UOM         string          `json:"uom"`
	Amount      decimal.Decimal `json:"amount"`
}

// Export is a chemical/glue material-issue header.
type Export struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UOM         string          `json:"uom"`
	Note        string          `json:"note"`
	CreatedAt   time.Time       `json:"created_at"`
	Details     []ExportDetail  `json:"details"`
}

// ExportDetail is one consumed material line of an export.
type ExportDetail struct {
	ID          int64           `json:"id"`
	ExportID    int64           `json:"export_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UOM         string          `json:"uom"`
	Note        string          `json:"note"`
}

// Defect records broken units reported against an order.
type Defect struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	DefectType  string          `json:"defect_type"`
	DefectStage string          `json:"defect_stage"`
	Note        string          `json:"note"`
	ReportedAt  time.Time       `json:"reported_at"`
}

// Customer is the buyer attached to a sale order.
type Customer struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// SaleOrder is the upstream order a plan is derived from.
type SaleOrder struct {
	ID             int64           `json:"id"`
	OrderCode      string          `json:"order_code"`
	OrderDate      time.Time       `json:"order_date"`
	DeliveryStatus string          `json:"delivery_status"`
	Customer       Customer        `json:"customer"`
	Lines          []SaleOrderLine `json:"lines"`
}

// SaleOrderLine is one ordered product of a sale order.
type SaleOrderLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Product is a catalog entry with its physical description.
type Product struct {
	ID             int64               `json:"id"`
	Code           string              `json:"code"`
	Name           string              `json:"name"`
	UOM            string              `json:"uom"`
	Width          string              `json:"width"`
	Height         string              `json:"height"`
	GlassStructure *bom.GlassStructure `json:"glass_structure,omitempty"`
}

// CreatePlanInput requests a plan for a sale order.
type CreatePlanInput struct {
	SaleOrderID int64              `json:"sale_order_id" validate:"required,gt=0"`
	Products    []PlanProductInput `json:"products" validate:"required,min=1,dive"`
	ActorID     int64              `json:"-"`
}

// PlanProductInput carries the production parameters for one product line.
type PlanProductInput struct {
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity"`
	Thickness   decimal.Decimal `json:"thickness"`
	GlueLayers  int             `json:"glue_layers" validate:"gte=0"`
	GlassLayers int             `json:"glass_layers" validate:"gte=0"`
	Tempered    bool            `json:"tempered"`
}

// CreateExportInput issues materials against a production order.
type CreateExportInput struct {
	OrderID        int64                `json:"order_id" validate:"required,gt=0"`
	Products       []ExportProductInput `json:"products" validate:"required,min=1,dive"`
	Note           string               `json:"note" validate:"max=500"`
	IdempotencyKey string               `json:"-"`
	ActorID        int64                `json:"-"`
}

// ExportProductInput is one produced product with the materials it consumed.
type ExportProductInput struct {
	ProductID   int64                 `json:"product_id" validate:"required,gt=0"`
	ProductName string                `json:"product_name"`
	Quantity    decimal.Decimal       `json:"quantity"`
	UOM         string                `json:"uom" validate:"max=32"`
	Materials   []ExportMaterialInput `json:"materials" validate:"dive"`
}

// ExportMaterialInput is one consumed material line.
type ExportMaterialInput struct {
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UOM         string          `json:"uom" validate:"max=32"`
}

// ReportDefectInput reports broken units for an order output.
type ReportDefectInput struct {
	OrderID     int64           `json:"-" validate:"required,gt=0"`
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity"`
	DefectType  string          `json:"defect_type" validate:"required,max=100"`
	DefectStage string          `json:"defect_stage" validate:"required,max=100"`
	Note        string          `json:"note" validate:"max=500"`
	ActorID     int64           `json:"-"`
}

// UpdateDefectInput corrects an earlier defect report. The difference to the
// old quantity is applied to the output counters.
type UpdateDefectInput struct {
	DefectID    int64           `json:"-" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity"`
	DefectType  string          `json:"defect_type" validate:"required,max=100"`
	DefectStage string          `json:"defect_stage" validate:"required,max=100"`
	Note        string          `json:"note" validate:"max=500"`
	ActorID     int64           `json:"-"`
}

// ReportBrokenInput reports broken units directly against one output.
type ReportBrokenInput struct {
	OutputID int64           `json:"-" validate:"required,gt=0"`
	Broken   decimal.Decimal `json:"broken"`
	Reason   string          `json:"reason" validate:"max=500"`
	ActorID  int64           `json:"-"`
}

// PlanSummary is the header view of a plan.
type PlanSummary struct {
	PlanID             int64           `json:"plan_id"`
	SaleOrderID        int64           `json:"sale_order_id"`
	CustomerName       string          `json:"customer_name"`
	Address            string          `json:"address"`
	Phone              string          `json:"phone"`
	OrderCode          string          `json:"order_code"`
	OrderDate          time.Time       `json:"order_date"`
	DeliveryStatus     string          `json:"delivery_status"`
	PlanDate           time.Time       `json:"plan_date"`
	Status             PlanStatus      `json:"status"`
	Quantity           decimal.Decimal `json:"quantity"`
	Done               decimal.Decimal `json:"done"`
	TotalAdhesiveNano  decimal.Decimal `json:"total_adhesive_nano"`
	TotalAdhesiveSoft  decimal.Decimal `json:"total_adhesive_soft"`
	TotalAdhesiveOther decimal.Decimal `json:"total_adhesive_other"`
	Warnings           []string        `json:"warnings,omitempty"`
}

// PlanListItem is one row of the plan list.
type PlanListItem struct {
	ID           int64           `json:"id"`
	PlanDate     time.Time       `json:"plan_date"`
	OrderCode    string          `json:"order_code"`
	SaleOrderID  int64           `json:"sale_order_id"`
	CustomerName string          `json:"customer_name"`
	Quantity     decimal.Decimal `json:"quantity"`
	Status       PlanStatus      `json:"status"`
}

// PlanProductView reports progress per plan line.
type PlanProductView struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	ProductName   string          `json:"product_name"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	Completed     decimal.Decimal `json:"completed"`
	Delivered     decimal.Decimal `json:"delivered"`
}

// PlanMaterials is the BOM view of a plan.
type PlanMaterials struct {
	PlanID             int64           `json:"plan_id"`
	Lines              []PlanDetail    `json:"lines"`
	TotalAdhesiveNano  decimal.Decimal `json:"total_adhesive_nano"`
	TotalAdhesiveSoft  decimal.Decimal `json:"total_adhesive_soft"`
	TotalAdhesiveOther decimal.Decimal `json:"total_adhesive_other"`
	TotalButylLength   decimal.Decimal `json:"total_butyl_length"`
}

// PlanOutputSummary aggregates outputs of a plan per product.
type PlanOutputSummary struct {
	OutputID    int64           `json:"output_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Done        decimal.Decimal `json:"done"`
	Broken      decimal.Decimal `json:"broken"`
}

// OrderProducts lists what an order is expected to produce and consume.
type OrderProducts struct {
	OrderID   int64      `json:"order_id"`
	Outputs   []Output   `json:"outputs"`
	Materials []Material `json:"materials"`
}

// ExportResult is returned after an export create.
type ExportResult struct {
	Exports        []Export `json:"exports"`
	OrderCompleted bool     `json:"order_completed"`
}
