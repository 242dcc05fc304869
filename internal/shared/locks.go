package shared

import "fmt"

// ProductionOrderLockKey builds the redis key guarding one production order.
func ProductionOrderLockKey(orderID int64) string {
	return fmt.Sprintf("production:order:%d:lock", orderID)
}
