//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/quicklog/internal/events"
)

func TestSummaryHandlerProjectsLoggedEntries(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	tenantID := uuid.NewString()
	userID := uuid.NewString()
	day := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

	handler := NewSummaryHandler(pool)

	require.NoError(t, handler.Handle(ctx, loggedMessage(t, tenantID, userID, "cardio", 95, day, 1)))
	require.NoError(t, handler.Handle(ctx, loggedMessage(t, tenantID, userID, "cardio", 85, day.Add(2*time.Hour), 2)))
	require.NoError(t, handler.Handle(ctx, loggedMessage(t, tenantID, userID, "water", 92, day.Add(time.Hour), 3)))

	var count, confidenceSum int
	var lastEntryAt time.Time
	err := pool.QueryRow(ctx,
		`SELECT entry_count, confidence_sum, last_entry_at FROM daily_summaries
         WHERE tenant_id=$1 AND user_id=$2 AND day=$3::date AND entry_type='cardio'`,
		tenantID, userID, day,
	).Scan(&count, &confidenceSum, &lastEntryAt)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, 180, confidenceSum)
	require.True(t, lastEntryAt.UTC().Equal(day.Add(2*time.Hour)))

	var auditRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM entry_event_log WHERE tenant_id=$1`, tenantID).Scan(&auditRows))
	require.Equal(t, 3, auditRows)
}

func TestSummaryHandlerRecordsStateChangesWithoutProjection(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	tenantID := uuid.NewString()
	payload, err := json.Marshal(events.EntryStateChanged{
		EntryID:    uuid.NewString(),
		TenantID:   tenantID,
		UserID:     uuid.NewString(),
		State:      "rejected",
		OccurredAt: time.Now().UTC(),
		Reason:     "user_rejected",
	})
	require.NoError(t, err)

	handler := NewSummaryHandler(pool)
	require.NoError(t, handler.Handle(ctx, EntryEvent{
		Topic:         "entry_events",
		EventType:     "entry.state_changed",
		TenantID:      tenantID,
		SchemaSubject: "entry_state_changed-value",
		SchemaID:      9,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}))

	var summaries int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM daily_summaries WHERE tenant_id=$1`, tenantID).Scan(&summaries))
	require.Zero(t, summaries)

	var auditRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM entry_event_log WHERE tenant_id=$1`, tenantID).Scan(&auditRows))
	require.Equal(t, 1, auditRows)
}

func loggedMessage(t *testing.T, tenantID, userID, entryType string, confidence int, occurredAt time.Time, offset int64) EntryEvent {
	t.Helper()

	payload, err := json.Marshal(events.EntryLogged{
		EntryID:    uuid.NewString(),
		TenantID:   tenantID,
		UserID:     userID,
		EntryType:  entryType,
		Confidence: confidence,
		RawText:    "ran 5k",
		OccurredAt: occurredAt,
		Source:     "api",
		Version:    "v1",
	})
	require.NoError(t, err)

	return EntryEvent{
		Topic:         "entry_events",
		Offset:        offset,
		Timestamp:     occurredAt,
		EventType:     "entry.logged",
		TenantID:      tenantID,
		SchemaSubject: "entry_logged-value",
		SchemaID:      5,
		Payload:       payload,
	}
}

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("quicklog"),
		postgrescontainer.WithUsername("quicklog"),
		postgrescontainer.WithPassword("quicklog"),
	)
	require.NoError(t, err)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pg.Terminate(ctx)
	}
	return pool, cleanup
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	t.Helper()

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	migrationsDir := resolvePath(t, "../../db/postgres/migrations")
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "expected at least one migration .up.sql file")

	sort.Strings(files)

	for _, file := range files {
		contents, readErr := os.ReadFile(file)
		require.NoErrorf(t, readErr, "read migration %s", file)

		if _, execErr := pool.Exec(ctx, string(contents)); execErr != nil {
			require.NoErrorf(t, execErr, "execute migration %s", file)
		}
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
