package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// CheckOrderCompletion re-evaluates an order and reports whether this call
// moved it to COMPLETED. A missing order yields false without error.
func (s *Service) CheckOrderCompletion(ctx context.Context, orderID int64) (bool, error) {
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	defer unlock()

	var changed bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		changed, err = s.evaluateCompletion(ctx, tx, order)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("production: completion check for order %d: %w", orderID, err)
	}
	return changed, nil
}

// evaluateCompletion runs inside the caller's transaction with the order row
// already locked. COMPLETED and CANCELLED are terminal for this check.
func (s *Service) evaluateCompletion(ctx context.Context, tx TxRepository, order Order) (bool, error) {
	if order.Status == OrderStatusCompleted || order.Status == OrderStatusCancelled {
		return false, nil
	}
	outputs, err := tx.ListOutputs(ctx, order.ID)
	if err != nil {
		return false, err
	}
	if len(outputs) == 0 {
		return false, nil
	}
	for _, out := range outputs {
		if !out.Satisfied() {
			return false, nil
		}
	}
	if err := tx.UpdateOrderStatus(ctx, order.ID, OrderStatusCompleted); err != nil {
		return false, err
	}
	s.metrics.orderCompleted()
	s.logger.Info("production order completed", slog.Int64("order_id", order.ID), slog.String("code", order.Code))
	return true, nil
}

// SweepResult summarises one completion sweep.
type SweepResult struct {
	Checked   int
	Completed int
	Failed    int
}

// SweepOpenOrders re-checks every open order. Failures on one order do not
// stop the sweep; they are joined into the returned error.
func (s *Service) SweepOpenOrders(ctx context.Context) (SweepResult, error) {
	ids, err := s.repo.ListOpenOrderIDs(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("production: list open orders: %w", err)
	}
	var res SweepResult
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res.Checked++
		changed, err := s.CheckOrderCompletion(ctx, id)
		if err != nil {
			res.Failed++
			errs = append(errs, err)
			continue
		}
		if changed {
			res.Completed++
		}
	}
	return res, errors.Join(errs...)
}
