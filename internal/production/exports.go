package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// CreateMaterialExport records material exports for an order and cascades the
// exported quantities into the order outputs and, for glue-pouring orders, the
// originating plan lines. The completion check runs in the same transaction.
func (s *Service) CreateMaterialExport(ctx context.Context, input CreateExportInput) (ExportResult, error) {
	if err := s.validateStruct(input); err != nil {
		return ExportResult{}, err
	}
	for i, p := range input.Products {
		if !p.Quantity.IsPositive() {
			return ExportResult{}, invalid(fmt.Sprintf("products[%d].quantity", i), ErrInvalidQuantity)
		}
		for j, m := range p.Materials {
			if !m.Quantity.IsPositive() {
				return ExportResult{}, invalid(fmt.Sprintf("products[%d].materials[%d].quantity", i, j), ErrInvalidQuantity)
			}
		}
	}

	key := input.IdempotencyKey
	insertedKey := false
	if s.idempotency != nil && key != "" {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return ExportResult{}, err
		}
		insertedKey = true
	}

	result, err := s.createExport(ctx, input)
	if err != nil {
		if insertedKey {
			s.releaseIdempotencyKey(ctx, key)
		}
		return ExportResult{}, err
	}

	s.metrics.exportEvent("create")
	for _, exp := range result.Exports {
		s.record(ctx, input.ActorID, "production:export.create", "chemical_export", exp.ID, map[string]any{
			"order_id":   exp.OrderID,
			"product_id": exp.ProductID,
			"quantity":   exp.Quantity.String(),
		})
	}
	return result, nil
}

func (s *Service) createExport(ctx context.Context, input CreateExportInput) (ExportResult, error) {
	unlock, err := s.lockOrder(ctx, input.OrderID)
	if err != nil {
		return ExportResult{}, err
	}
	defer unlock()

	var result ExportResult
	createdAt := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result = ExportResult{}
		order, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		for _, p := range input.Products {
			exp := Export{
				OrderID:     order.ID,
				ProductID:   p.ProductID,
				ProductName: p.ProductName,
				Quantity:    p.Quantity,
				UOM:         p.UOM,
				Note:        input.Note,
				CreatedAt:   createdAt,
			}
			exp.ID, err = tx.InsertExport(ctx, exp)
			if err != nil {
				return fmt.Errorf("insert export: %w", err)
			}
			for _, m := range p.Materials {
				detail := ExportDetail{
					ExportID:    exp.ID,
					ProductID:   m.ProductID,
					ProductName: m.ProductName,
					Quantity:    m.Quantity,
					UOM:         m.UOM,
					Note:        m.ProductName,
				}
				detail.ID, err = tx.InsertExportDetail(ctx, detail)
				if err != nil {
					return fmt.Errorf("insert export detail: %w", err)
				}
				exp.Details = append(exp.Details, detail)
			}
			if err := s.applyQuantity(ctx, tx, order, p.ProductID, p.Quantity); err != nil {
				return err
			}
			result.Exports = append(result.Exports, exp)
		}
		result.OrderCompleted, err = s.evaluateCompletion(ctx, tx, order)
		return err
	})
	if err != nil {
		return ExportResult{}, fmt.Errorf("production: create export for order %d: %w", input.OrderID, err)
	}
	s.logger.Info("material export recorded",
		slog.Int64("order_id", input.OrderID),
		slog.Int("products", len(result.Exports)),
		slog.Bool("order_completed", result.OrderCompleted),
	)
	return result, nil
}

// DeleteMaterialExport reverses an export on behalf of actorID. It returns
// false without error when the export does not exist. Counters are floored at
// zero and a completed order is never reopened.
func (s *Service) DeleteMaterialExport(ctx context.Context, exportID, actorID int64) (bool, error) {
	existing, err := s.repo.GetExport(ctx, exportID)
	if err != nil {
		if errors.Is(err, ErrExportNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("production: load export %d: %w", exportID, err)
	}

	unlock, err := s.lockOrder(ctx, existing.OrderID)
	if err != nil {
		return false, err
	}
	defer unlock()

	var exp Export
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, existing.OrderID)
		if err != nil {
			return err
		}
		exp, err = tx.GetExportForUpdate(ctx, exportID)
		if err != nil {
			return err
		}
		if exp.OrderID != order.ID {
			return fmt.Errorf("export %d moved to order %d", exportID, exp.OrderID)
		}
		if err := s.applyQuantity(ctx, tx, order, exp.ProductID, exp.Quantity.Neg()); err != nil {
			return err
		}
		if err := tx.DeleteExport(ctx, exportID); err != nil {
			return err
		}
		_, err = s.evaluateCompletion(ctx, tx, order)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrExportNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("production: delete export %d: %w", exportID, err)
	}

	s.logger.Info("material export deleted", slog.Int64("export_id", exportID), slog.Int64("order_id", exp.OrderID))
	s.metrics.exportEvent("delete")
	s.record(ctx, actorID, "production:export.delete", "chemical_export", exportID, map[string]any{
		"order_id":   exp.OrderID,
		"product_id": exp.ProductID,
		"quantity":   exp.Quantity.String(),
	})
	return true, nil
}

// releaseIdempotencyKey frees key after a failed export so the client can
// retry. It outlives a cancelled request context.
func (s *Service) releaseIdempotencyKey(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.idempotency.Delete(ctx, key); err != nil {
		s.logger.Warn("idempotency key release failed", slog.String("key", key), slog.Any("error", err))
	}
}

// applyQuantity moves Finished on the matching output and, for glue-pouring
// orders, Done on the matching plan line. Negative deltas are floored at zero.
// Missing rows are skipped.
func (s *Service) applyQuantity(ctx context.Context, tx TxRepository, order Order, productID int64, delta decimal.Decimal) error {
	out, err := tx.GetOutputForUpdate(ctx, order.ID, productID)
	switch {
	case errors.Is(err, ErrOutputNotFound):
		s.logger.Debug("no output for exported product", slog.Int64("order_id", order.ID), slog.Int64("product_id", productID))
	case err != nil:
		return fmt.Errorf("load output: %w", err)
	default:
		out.Finished = shift(out.Finished, delta)
		if err := tx.UpdateOutputCounters(ctx, out); err != nil {
			return fmt.Errorf("update output %d: %w", out.ID, err)
		}
	}

	if !order.Category.AdvancesPlan() {
		return nil
	}
	detail, err := tx.GetPlanDetailForUpdate(ctx, order.PlanID, productID)
	if errors.Is(err, ErrDetailNotFound) {
		s.logger.Debug("no plan line for exported product", slog.Int64("plan_id", order.PlanID), slog.Int64("product_id", productID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load plan detail: %w", err)
	}
	detail.Done = shift(detail.Done, delta)
	if err := tx.UpdatePlanDetailDone(ctx, detail); err != nil {
		return fmt.Errorf("update plan detail %d: %w", detail.ID, err)
	}
	return nil
}

func shift(v, delta decimal.Decimal) decimal.Decimal {
	if delta.IsNegative() {
		return clampSub(v, delta.Neg())
	}
	return v.Add(delta)
}

// GetMaterialExport returns one export with its detail lines.
func (s *Service) GetMaterialExport(ctx context.Context, exportID int64) (Export, error) {
	return s.repo.GetExport(ctx, exportID)
}

// ListMaterialExports lists every export.
func (s *Service) ListMaterialExports(ctx context.Context) ([]Export, error) {
	return s.repo.ListExports(ctx, 0)
}

// ListMaterialExportsByOrder lists the exports recorded against an order.
func (s *Service) ListMaterialExportsByOrder(ctx context.Context, orderID int64) ([]Export, error) {
	if orderID <= 0 {
		return nil, &ValidationError{Field: "order_id", Reason: "must be positive"}
	}
	return s.repo.ListExports(ctx, orderID)
}
