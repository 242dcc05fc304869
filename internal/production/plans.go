package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/vnglass/glassflow/internal/bom"
)

// CreateProductionPlan derives a plan from a sale order. Every line is run
// through the BOM calculator before anything is written, and the plan with
// all of its details is stored in a single transaction.
//
// Callers are expected to check HasProductionPlan first; no uniqueness check
// happens here.
func (s *Service) CreateProductionPlan(ctx context.Context, input CreatePlanInput) (PlanSummary, error) {
	if err := s.validateStruct(input); err != nil {
		return PlanSummary{}, err
	}
	for i, p := range input.Products {
		if !p.Quantity.IsPositive() {
			return PlanSummary{}, invalid(fmt.Sprintf("products[%d].quantity", i), ErrInvalidQuantity)
		}
		if !p.Thickness.IsPositive() {
			return PlanSummary{}, invalid(fmt.Sprintf("products[%d].thickness", i), ErrInvalidThickness)
		}
	}

	so, err := s.sales.GetSaleOrder(ctx, input.SaleOrderID)
	if err != nil {
		return PlanSummary{}, fmt.Errorf("production: load sale order %d: %w", input.SaleOrderID, err)
	}

	logger := s.logger.With(slog.Int64("sale_order_id", so.ID))
	summary := PlanSummary{
		SaleOrderID:        so.ID,
		CustomerName:       so.Customer.Name,
		Address:            so.Customer.Address,
		Phone:              so.Customer.Phone,
		OrderCode:          so.OrderCode,
		OrderDate:          so.OrderDate,
		DeliveryStatus:     so.DeliveryStatus,
		Status:             PlanStatusInProduction,
		Quantity:           decimal.Zero,
		Done:               decimal.Zero,
		TotalAdhesiveNano:  decimal.Zero,
		TotalAdhesiveSoft:  decimal.Zero,
		TotalAdhesiveOther: decimal.Zero,
	}

	details := make([]PlanDetail, 0, len(input.Products))
	for i, p := range input.Products {
		field := fmt.Sprintf("products[%d]", i)
		product, err := s.catalog.GetProduct(ctx, p.ProductID)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return PlanSummary{}, invalid(field+".product_id", err)
			}
			return PlanSummary{}, fmt.Errorf("production: load product %d: %w", p.ProductID, err)
		}
		res, err := bom.Calculate(bom.Input{
			Width:       product.Width,
			Height:      product.Height,
			Thickness:   p.Thickness,
			Quantity:    p.Quantity,
			GlueLayers:  p.GlueLayers,
			GlassLayers: p.GlassLayers,
			Tempered:    p.Tempered,
			Structure:   product.GlassStructure,
		})
		if err != nil {
			return PlanSummary{}, invalid(field, err)
		}
		if res.Adhesive == bom.AdhesiveOther {
			warning := fmt.Sprintf("product %s: adhesive type %q is neither nano nor mềm", product.Code, res.AdhesiveLabel)
			summary.Warnings = append(summary.Warnings, warning)
			logger.Warn("unrecognised adhesive type",
				slog.Int64("product_id", product.ID),
				slog.String("adhesive_type", res.AdhesiveLabel),
			)
		}

		details = append(details, PlanDetail{
			ProductID:          product.ID,
			ProductName:        product.Name,
			Quantity:           p.Quantity,
			Thickness:          p.Thickness,
			GlueLayers:         p.GlueLayers,
			GlassLayers:        p.GlassLayers,
			Glass4mm:           res.Glass4mm,
			Glass5mm:           res.Glass5mm,
			ButylType:          res.ButylType,
			Tempered:           p.Tempered,
			AdhesiveType:       res.AdhesiveLabel,
			TotalAdhesiveNano:  res.Nano(),
			TotalAdhesiveSoft:  res.Soft(),
			TotalAdhesiveOther: res.Other(),
			ButylLength:        res.ButylLength,
			Done:               decimal.Zero,
			Delivered:          decimal.Zero,
		})
		summary.Quantity = summary.Quantity.Add(p.Quantity)
		summary.TotalAdhesiveNano = summary.TotalAdhesiveNano.Add(res.Nano())
		summary.TotalAdhesiveSoft = summary.TotalAdhesiveSoft.Add(res.Soft())
		summary.TotalAdhesiveOther = summary.TotalAdhesiveOther.Add(res.Other())
	}

	plan := Plan{
		SaleOrderID: so.ID,
		CustomerID:  so.Customer.ID,
		PlanDate:    s.now(),
		Status:      PlanStatusInProduction,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		planID, err := tx.InsertPlan(ctx, plan)
		if err != nil {
			return fmt.Errorf("insert plan: %w", err)
		}
		plan.ID = planID
		for i := range details {
			details[i].PlanID = planID
			id, err := tx.InsertPlanDetail(ctx, details[i])
			if err != nil {
				return fmt.Errorf("insert plan detail %d: %w", i, err)
			}
			details[i].ID = id
		}
		return nil
	})
	if err != nil {
		return PlanSummary{}, fmt.Errorf("production: create plan: %w", err)
	}

	summary.PlanID = plan.ID
	summary.PlanDate = plan.PlanDate
	logger.Info("production plan created", slog.Int64("plan_id", plan.ID), slog.Int("lines", len(details)))
	s.metrics.planEvent("create")
	s.record(ctx, input.ActorID, "production:plan.create", "production_plan", plan.ID, map[string]any{
		"sale_order_id": so.ID,
		"lines":         len(details),
	})
	return summary, nil
}

// HasProductionPlan reports whether the sale order already has a plan.
func (s *Service) HasProductionPlan(ctx context.Context, saleOrderID int64) (bool, error) {
	if saleOrderID <= 0 {
		return false, &ValidationError{Field: "sale_order_id", Reason: "must be positive"}
	}
	return s.repo.HasPlanForSaleOrder(ctx, saleOrderID)
}

// ListPlans lists every plan.
func (s *Service) ListPlans(ctx context.Context) ([]PlanListItem, error) {
	return s.repo.ListPlans(ctx)
}

// GetPlan returns the plan header with aggregated progress.
func (s *Service) GetPlan(ctx context.Context, planID int64) (PlanSummary, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return PlanSummary{}, err
	}
	so, err := s.sales.GetSaleOrder(ctx, plan.SaleOrderID)
	if err != nil {
		return PlanSummary{}, fmt.Errorf("production: load sale order %d: %w", plan.SaleOrderID, err)
	}
	summary := PlanSummary{
		PlanID:             plan.ID,
		SaleOrderID:        plan.SaleOrderID,
		CustomerName:       so.Customer.Name,
		Address:            so.Customer.Address,
		Phone:              so.Customer.Phone,
		OrderCode:          so.OrderCode,
		OrderDate:          so.OrderDate,
		DeliveryStatus:     so.DeliveryStatus,
		PlanDate:           plan.PlanDate,
		Status:             plan.Status,
		Quantity:           decimal.Zero,
		Done:               decimal.Zero,
		TotalAdhesiveNano:  decimal.Zero,
		TotalAdhesiveSoft:  decimal.Zero,
		TotalAdhesiveOther: decimal.Zero,
	}
	for _, d := range plan.Details {
		summary.Quantity = summary.Quantity.Add(d.Quantity)
		summary.Done = summary.Done.Add(d.Done)
		summary.TotalAdhesiveNano = summary.TotalAdhesiveNano.Add(d.TotalAdhesiveNano)
		summary.TotalAdhesiveSoft = summary.TotalAdhesiveSoft.Add(d.TotalAdhesiveSoft)
		summary.TotalAdhesiveOther = summary.TotalAdhesiveOther.Add(d.TotalAdhesiveOther)
	}
	return summary, nil
}

// ListPlanProducts reports requested, completed and delivered quantities per line.
func (s *Service) ListPlanProducts(ctx context.Context, planID int64) ([]PlanProductView, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	views := make([]PlanProductView, 0, len(plan.Details))
	for _, d := range plan.Details {
		views = append(views, PlanProductView{
			ID:            d.ID,
			ProductID:     d.ProductID,
			ProductName:   d.ProductName,
			TotalQuantity: d.Quantity,
			Completed:     d.Done,
			Delivered:     d.Delivered,
		})
	}
	return views, nil
}

// GetPlanMaterials returns the BOM figures of every plan line with totals.
func (s *Service) GetPlanMaterials(ctx context.Context, planID int64) (PlanMaterials, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return PlanMaterials{}, err
	}
	out := PlanMaterials{
		PlanID:             plan.ID,
		Lines:              plan.Details,
		TotalAdhesiveNano:  decimal.Zero,
		TotalAdhesiveSoft:  decimal.Zero,
		TotalAdhesiveOther: decimal.Zero,
		TotalButylLength:   decimal.Zero,
	}
	for _, d := range plan.Details {
		out.TotalAdhesiveNano = out.TotalAdhesiveNano.Add(d.TotalAdhesiveNano)
		out.TotalAdhesiveSoft = out.TotalAdhesiveSoft.Add(d.TotalAdhesiveSoft)
		out.TotalAdhesiveOther = out.TotalAdhesiveOther.Add(d.TotalAdhesiveOther)
		out.TotalButylLength = out.TotalButylLength.Add(d.ButylLength.Mul(d.Quantity))
	}
	return out, nil
}
