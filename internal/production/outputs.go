package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// ListOrderOutputs lists the outputs of an order.
func (s *Service) ListOrderOutputs(ctx context.Context, orderID int64) ([]Output, error) {
	return s.repo.ListOrderOutputs(ctx, orderID)
}

// ListPlanOutputs groups the outputs of every order in a plan by product.
func (s *Service) ListPlanOutputs(ctx context.Context, planID int64) ([]PlanOutputSummary, error) {
	return s.repo.ListPlanOutputs(ctx, planID)
}

// GetOrderProducts returns what an order produces and the materials planned for it.
func (s *Service) GetOrderProducts(ctx context.Context, orderID int64) (OrderProducts, error) {
	outputs, err := s.repo.ListOrderOutputs(ctx, orderID)
	if err != nil {
		return OrderProducts{}, err
	}
	materials, err := s.repo.ListOrderMaterials(ctx, orderID)
	if err != nil {
		return OrderProducts{}, err
	}
	return OrderProducts{OrderID: orderID, Outputs: outputs, Materials: materials}, nil
}

// ListDefects lists defects reported against an order.
func (s *Service) ListDefects(ctx context.Context, orderID int64) ([]Defect, error) {
	return s.repo.ListDefects(ctx, orderID)
}

// ReportDefect records broken units. The quantity moves from Finished to
// Defected and the order goes back to IN_PROGRESS. It returns false without
// error when the order or its output for the product does not exist.
func (s *Service) ReportDefect(ctx context.Context, input ReportDefectInput) (bool, error) {
	if err := s.validateStruct(input); err != nil {
		return false, err
	}
	if !input.Quantity.IsPositive() {
		return false, invalid("quantity", ErrInvalidQuantity)
	}

	unlock, err := s.lockOrder(ctx, input.OrderID)
	if err != nil {
		return false, err
	}
	defer unlock()

	var defect Defect
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		out, err := tx.GetOutputForUpdate(ctx, order.ID, input.ProductID)
		if err != nil {
			return err
		}
		defect = Defect{
			OrderID:     order.ID,
			ProductID:   input.ProductID,
			Quantity:    input.Quantity,
			DefectType:  input.DefectType,
			DefectStage: input.DefectStage,
			Note:        input.Note,
			ReportedAt:  s.now(),
		}
		defect.ID, err = tx.InsertDefect(ctx, defect)
		if err != nil {
			return fmt.Errorf("insert defect: %w", err)
		}
		out.Defected = out.Defected.Add(input.Quantity)
		out.Finished = clampSub(out.Finished, input.Quantity)
		if err := tx.UpdateOutputCounters(ctx, out); err != nil {
			return fmt.Errorf("update output %d: %w", out.ID, err)
		}
		return reopenOrder(ctx, tx, order)
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrOutputNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("production: report defect on order %d: %w", input.OrderID, err)
	}

	s.logger.Info("defect reported",
		slog.Int64("order_id", defect.OrderID),
		slog.Int64("product_id", defect.ProductID),
		slog.String("quantity", defect.Quantity.String()),
		slog.String("stage", defect.DefectStage),
	)
	s.metrics.defectReported()
	s.record(ctx, input.ActorID, "production:defect.report", "production_defect", defect.ID, map[string]any{
		"order_id":   defect.OrderID,
		"product_id": defect.ProductID,
		"quantity":   defect.Quantity.String(),
		"type":       defect.DefectType,
	})
	return true, nil
}

// UpdateDefect corrects a defect report. Only the difference to the old
// quantity moves between Finished and Defected. It returns false without
// error when the defect or its output no longer exists.
func (s *Service) UpdateDefect(ctx context.Context, input UpdateDefectInput) (bool, error) {
	if err := s.validateStruct(input); err != nil {
		return false, err
	}
	if !input.Quantity.IsPositive() {
		return false, invalid("quantity", ErrInvalidQuantity)
	}

	current, err := s.repo.GetDefect(ctx, input.DefectID)
	if err != nil {
		if errors.Is(err, ErrDefectNotFound) {
			return false, nil
		}
		return false, err
	}
	unlock, err := s.lockOrder(ctx, current.OrderID)
	if err != nil {
		return false, err
	}
	defer unlock()

	var defect Defect
	var delta decimal.Decimal
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, current.OrderID)
		if err != nil {
			return err
		}
		defect, err = tx.GetDefectForUpdate(ctx, input.DefectID)
		if err != nil {
			return err
		}
		if defect.OrderID != order.ID {
			return ErrDefectNotFound
		}
		out, err := tx.GetOutputForUpdate(ctx, order.ID, defect.ProductID)
		if err != nil {
			return err
		}
		delta = input.Quantity.Sub(defect.Quantity)
		defect.Quantity = input.Quantity
		defect.DefectType = input.DefectType
		defect.DefectStage = input.DefectStage
		defect.Note = input.Note
		defect.ReportedAt = s.now()
		if err := tx.UpdateDefect(ctx, defect); err != nil {
			return fmt.Errorf("update defect %d: %w", defect.ID, err)
		}
		out.Defected = shift(out.Defected, delta)
		out.Finished = shift(out.Finished, delta.Neg())
		if err := tx.UpdateOutputCounters(ctx, out); err != nil {
			return fmt.Errorf("update output %d: %w", out.ID, err)
		}
		return reopenOrder(ctx, tx, order)
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrOutputNotFound) || errors.Is(err, ErrDefectNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("production: update defect %d: %w", input.DefectID, err)
	}

	s.logger.Info("defect updated",
		slog.Int64("defect_id", defect.ID),
		slog.Int64("order_id", defect.OrderID),
		slog.String("delta", delta.String()),
	)
	s.record(ctx, input.ActorID, "production:defect.update", "production_defect", defect.ID, map[string]any{
		"order_id": defect.OrderID,
		"quantity": defect.Quantity.String(),
		"delta":    delta.String(),
	})
	return true, nil
}

// ReportBrokenOutput books broken units straight onto an output without a
// defect report. It returns false without error when the output is unknown.
func (s *Service) ReportBrokenOutput(ctx context.Context, input ReportBrokenInput) (bool, error) {
	if err := s.validateStruct(input); err != nil {
		return false, err
	}
	if !input.Broken.IsPositive() {
		return false, invalid("broken", ErrInvalidQuantity)
	}

	current, err := s.repo.GetOutput(ctx, input.OutputID)
	if err != nil {
		if errors.Is(err, ErrOutputNotFound) {
			return false, nil
		}
		return false, err
	}
	unlock, err := s.lockOrder(ctx, current.OrderID)
	if err != nil {
		return false, err
	}
	defer unlock()

	var out Output
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, current.OrderID)
		if err != nil {
			return err
		}
		out, err = tx.GetOutputByIDForUpdate(ctx, input.OutputID)
		if err != nil {
			return err
		}
		out.Defected = out.Defected.Add(input.Broken)
		out.Finished = clampSub(out.Finished, input.Broken)
		if err := tx.UpdateOutputCounters(ctx, out); err != nil {
			return fmt.Errorf("update output %d: %w", out.ID, err)
		}
		return reopenOrder(ctx, tx, order)
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrOutputNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("production: report broken output %d: %w", input.OutputID, err)
	}

	s.logger.Info("broken output reported",
		slog.Int64("output_id", out.ID),
		slog.Int64("order_id", out.OrderID),
		slog.String("broken", input.Broken.String()),
	)
	s.metrics.defectReported()
	s.record(ctx, input.ActorID, "production:output.broken", "production_output", out.ID, map[string]any{
		"order_id": out.OrderID,
		"broken":   input.Broken.String(),
		"reason":   input.Reason,
	})
	return true, nil
}

// reopenOrder moves an order back to IN_PROGRESS after its counters changed.
// Cancelled orders stay cancelled.
func reopenOrder(ctx context.Context, tx TxRepository, order Order) error {
	if order.Status == OrderStatusCancelled || order.Status == OrderStatusInProgress {
		return nil
	}
	return tx.UpdateOrderStatus(ctx, order.ID, OrderStatusInProgress)
}
