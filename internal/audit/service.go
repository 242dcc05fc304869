package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Repository reads audit rows.
type Repository interface {
	AuditTimelineWindow(ctx context.Context, arg WindowParams) ([]Row, error)
	AuditTimelineAll(ctx context.Context, arg WindowParams) ([]Row, error)
}

// Result bundles a timeline page with its paging info.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Service reads the audit trail written by the production coordinator.
type Service struct {
	repo Repository
}

// NewService builds a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	params := toParams(filters)
	params.OffsetRows = int32((page - 1) * pageSize)
	params.LimitRows = int32(pageSize + 1)

	rows, err := s.repo.AuditTimelineWindow(ctx, params)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: mapRows(rows), Paging: paging}, nil
}

// Export returns every matching entry without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	rows, err := s.repo.AuditTimelineAll(ctx, toParams(filters))
	if err != nil {
		return nil, err
	}
	return mapRows(rows), nil
}

func toParams(filters TimelineFilters) WindowParams {
	params := WindowParams{
		FromAt:   toPgTime(filters.From),
		ToAt:     toPgTime(filters.To),
		Entity:   optionalText(filters.Entity),
		EntityID: optionalText(filters.EntityID),
		Action:   optionalText(filters.Action),
	}
	if filters.ActorID > 0 {
		params.ActorID = pgtype.Int8{Int64: filters.ActorID, Valid: true}
	}
	return params
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func mapRows(rows []Row) []TimelineRow {
	out := make([]TimelineRow, 0, len(rows))
	for _, row := range rows {
		entry := TimelineRow{
			Action:   row.Action,
			Entity:   row.Entity,
			EntityID: row.EntityID,
		}
		if row.At.Valid {
			entry.At = row.At.Time
		}
		if row.ActorID.Valid {
			entry.ActorID = row.ActorID.Int64
		}
		if len(row.Meta) > 0 {
			// Undecodable meta is dropped rather than failing the whole page.
			_ = json.Unmarshal(row.Meta, &entry.Meta)
		}
		out = append(out, entry)
	}
	return out
}
