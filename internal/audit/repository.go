package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WindowParams selects one page of audit_logs. Invalid fields do not filter.
type WindowParams struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	ActorID    pgtype.Int8
	Entity     pgtype.Text
	EntityID   pgtype.Text
	Action     pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// Row is a raw audit_logs row.
type Row struct {
	At       pgtype.Timestamptz
	ActorID  pgtype.Int8
	Action   string
	Entity   string
	EntityID string
	Meta     []byte
}

// PGRepository reads audit_logs.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineQuery = `
	SELECT occurred_at, actor_id, action, entity, entity_id, meta
	FROM audit_logs
	WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
	  AND ($2::timestamptz IS NULL OR occurred_at < $2)
	  AND ($3::bigint IS NULL OR actor_id = $3)
	  AND ($4::text IS NULL OR entity = $4)
	  AND ($5::text IS NULL OR entity_id = $5)
	  AND ($6::text IS NULL OR action = $6)
	ORDER BY occurred_at DESC, id DESC`

// AuditTimelineWindow returns one page, newest first.
func (r *PGRepository) AuditTimelineWindow(ctx context.Context, arg WindowParams) ([]Row, error) {
	return r.query(ctx, timelineQuery+` OFFSET $7 LIMIT $8`,
		arg.FromAt, arg.ToAt, arg.ActorID, arg.Entity, arg.EntityID, arg.Action, arg.OffsetRows, arg.LimitRows)
}

// AuditTimelineAll returns every matching row, newest first.
func (r *PGRepository) AuditTimelineAll(ctx context.Context, arg WindowParams) ([]Row, error) {
	return r.query(ctx, timelineQuery,
		arg.FromAt, arg.ToAt, arg.ActorID, arg.Entity, arg.EntityID, arg.Action)
}

func (r *PGRepository) query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var row Row
		var meta json.RawMessage
		if err := rows.Scan(&row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		row.Meta = meta
		out = append(out, row)
	}
	return out, rows.Err()
}
