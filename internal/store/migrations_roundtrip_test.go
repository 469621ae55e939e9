package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("ANNOTATOR_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("ANNOTATOR_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	require.NoError(t, db.PingContext(ctx), "ping postgres")
	require.NoError(t, resetPublicSchema(ctx, db), "reset schema")

	applied, err := ApplyMigrations(ctx, db, migrationsDir, zerolog.Nop())
	require.NoError(t, err, "apply up migrations (pass 1)")
	require.Len(t, applied, 2)
	require.NoError(t, applyDownMigrations(ctx, db, migrationsDir), "apply down migrations")
	_, err = db.ExecContext(ctx, `DELETE FROM schema_migrations`)
	require.NoError(t, err, "clear schema_migrations")
	_, err = ApplyMigrations(ctx, db, migrationsDir, zerolog.Nop())
	require.NoError(t, err, "apply up migrations (pass 2)")
	applied, err = ApplyMigrations(ctx, db, migrationsDir, zerolog.Nop())
	require.NoError(t, err)
	require.Empty(t, applied, "re-applying is a no-op")
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}

func applyDownMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return err
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.down\.sql$`)
	type migration struct {
		version string
		path    string
	}
	downs := make([]migration, 0)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		downs = append(downs, migration{
			version: match[1],
			path:    filepath.Join(migrationsDir, name),
		})
	}

	sort.Slice(downs, func(i, j int) bool {
		return downs[i].version > downs[j].version
	})

	for _, down := range downs {
		sqlBytes, err := os.ReadFile(down.path)
		if err != nil {
			return err
		}
		sqlText := strings.TrimSpace(string(sqlBytes))
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			return err
		}
	}

	return nil
}
