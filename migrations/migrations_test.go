package migrations

import (
	"database/sql"
	"io/fs"
	"strings"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"

	"github.com/vnglass/glassflow/internal/platform/db"
)

func TestEmbeddedSchemaCoversRepositoryTables(t *testing.T) {
	entries, err := fs.ReadDir(Files, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var all strings.Builder
	for _, entry := range entries {
		raw, err := fs.ReadFile(Files, entry.Name())
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(raw), "-- +goose Up\n"), entry.Name())
		all.Write(raw)
	}
	schema := all.String()

	for _, table := range []string{
		"customers", "products", "sale_orders", "sale_order_lines",
		"production_plans", "production_plan_details", "production_orders",
		"production_order_details", "production_outputs", "production_materials",
		"chemical_exports", "chemical_export_details", "production_defects",
		"idempotency_keys", "audit_logs",
	} {
		require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}

func TestEmbeddedMigrationsLoadInVersionOrder(t *testing.T) {
	sqlDB, err := sql.Open("pgx", "postgres://glassflow@127.0.0.1:1/unused")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	provider, err := db.NewMigrator(sqlDB, Files)
	require.NoError(t, err)

	var versions []int64
	for _, src := range provider.ListSources() {
		versions = append(versions, src.Version)
	}
	require.Equal(t, []int64{1, 2, 3}, versions)
}
