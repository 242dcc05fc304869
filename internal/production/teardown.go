package production

import (
	"context"
	"errors"
	"log/slog"
)

// Entity names a table-level kind of row removed during plan teardown.
type Entity string

const (
	EntityMaterials     Entity = "production_materials"
	EntityExportDetails Entity = "chemical_export_details"
	EntityExports       Entity = "chemical_exports"
	EntityDefects       Entity = "production_defects"
	EntityOutputs       Entity = "production_outputs"
	EntityOrderDetails  Entity = "production_order_details"
	EntityOrders        Entity = "production_orders"
	EntityPlanDetails   Entity = "production_plan_details"
	EntityPlan          Entity = "production_plans"
)

// teardownPlan lists dependents before the rows they reference.
var teardownPlan = []Entity{
	EntityMaterials,
	EntityExportDetails,
	EntityExports,
	EntityDefects,
	EntityOutputs,
	EntityOrderDetails,
	EntityOrders,
	EntityPlanDetails,
	EntityPlan,
}

// DeletePlan removes a plan and everything derived from it in one transaction
// on behalf of actorID. It returns false when the plan does not exist or any
// step failed, in which case nothing was deleted.
func (s *Service) DeletePlan(ctx context.Context, planID, actorID int64) bool {
	logger := s.logger.With(slog.Int64("plan_id", planID))
	removed := make(map[Entity]int64, len(teardownPlan))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockPlan(ctx, planID); err != nil {
			return err
		}
		for _, entity := range teardownPlan {
			n, err := tx.DeletePlanRows(ctx, entity, planID)
			if err != nil {
				return err
			}
			removed[entity] = n
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			logger.Info("plan teardown skipped, plan not found")
		} else {
			logger.Error("plan teardown rolled back", slog.Any("error", err))
		}
		return false
	}

	logger.Info("plan torn down",
		slog.Int64("orders", removed[EntityOrders]),
		slog.Int64("outputs", removed[EntityOutputs]),
		slog.Int64("exports", removed[EntityExports]),
		slog.Int64("plan_details", removed[EntityPlanDetails]),
	)
	s.metrics.planEvent("delete")
	s.record(ctx, actorID, "production:plan.delete", "production_plan", planID, map[string]any{
		"orders":  removed[EntityOrders],
		"outputs": removed[EntityOutputs],
	})
	return true
}
