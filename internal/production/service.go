package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vnglass/glassflow/internal/platform/cache"
	"github.com/vnglass/glassflow/internal/shared"
)

// SaleOrderProvider returns upstream sale orders.
type SaleOrderProvider interface {
	GetSaleOrder(ctx context.Context, id int64) (SaleOrder, error)
}

// ProductCatalog returns products with their glass structure.
type ProductCatalog interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against replayed requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// OrderLocker serialises work on one order across processes.
type OrderLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Locker      OrderLocker
	Metrics     *Metrics
	Logger      *slog.Logger
}

// Service coordinates production planning and fulfilment.
type Service struct {
	repo        RepositoryPort
	sales       SaleOrderProvider
	catalog     ProductCatalog
	audit       AuditPort
	idempotency IdempotencyPort
	locker      OrderLocker
	metrics     *Metrics
	logger      *slog.Logger
	validate    *validator.Validate
	clock       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, sales SaleOrderProvider, catalog ProductCatalog, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		sales:       sales,
		catalog:     catalog,
		audit:       cfg.Audit,
		idempotency: cfg.Idempotency,
		locker:      cfg.Locker,
		metrics:     cfg.Metrics,
		logger:      logger.With(slog.String("component", "production")),
		validate:    validator.New(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

const idempotencyModule = "production"

func (s *Service) now() time.Time {
	return s.clock()
}

func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{
			Field:  strings.ToLower(fe.Namespace()),
			Reason: fmt.Sprintf("failed %s rule", fe.Tag()),
		}
	}
	return &ValidationError{Reason: err.Error()}
}

// lockOrder takes the cross-process order lock when a locker is configured.
func (s *Service) lockOrder(ctx context.Context, orderID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	unlock, err := s.locker.Lock(ctx, shared.ProductionOrderLockKey(orderID))
	switch {
	case errors.Is(err, cache.ErrLockHeld):
		return nil, fmt.Errorf("%w: order %d", ErrOrderLocked, orderID)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	return unlock, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
