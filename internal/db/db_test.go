package db

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/watercolumn/internal/watercolumn"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "watercolumn.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func snapshot(seq uint64, ens int, at time.Time) *watercolumn.Snapshot {
	avg := watercolumn.Average{AvgVel: 0.5, AvgDir: 90, MaxVel: 0.7, MinBin: 0, MaxBin: 10}
	return &watercolumn.Snapshot{
		Seq:            seq,
		EnsembleNumber: ens,
		Average:        avg,
		SampleCount:    5,
		Ship:           watercolumn.ShipData{ShipVel: 1.2, ShipDir: 45, ShipMaxVel: 2},
		Record:         watercolumn.FormatRecord(ens, avg, 5),
		UpdatedAt:      at,
	}
}

func TestNewDBMigratesToLatest(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	latest, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)
	assert.Equal(t, latest, version)
	assert.False(t, dirty)

	// running again is a no-op
	require.NoError(t, db.MigrateUp())
}

func TestMigrateDownAndUp(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.MigrateDown())
	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	_, err = db.RecentCommands(context.Background(), 10)
	assert.Error(t, err, "commands table should be gone")

	require.NoError(t, db.MigrateUp())
	_, err = db.RecentCommands(context.Background(), 10)
	assert.NoError(t, err)
}

func TestRecordAndReadReports(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		require.NoError(t, db.Emit(ctx, snapshot(uint64(i), 100+i, base.Add(time.Duration(i)*time.Second))))
	}

	reports, err := db.RecentReports(ctx, 2)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 103, reports[0].EnsembleNumber)
	assert.Equal(t, 102, reports[1].EnsembleNumber)

	r := reports[0]
	assert.Equal(t, uint64(3), r.Seq)
	assert.Equal(t, 0.5, r.AvgVel)
	assert.Equal(t, 90.0, r.AvgDir)
	assert.Equal(t, 0.7, r.MaxVel)
	assert.Equal(t, 10, r.MaxBin)
	assert.Equal(t, 5, r.SampleCount)
	assert.Equal(t, 2.0, r.ShipMaxVel)
	assert.Equal(t, "$RTIAWC,103,0.5,90,0.7,0,10,5\n", r.Record)
	assert.True(t, r.RecordedAt.Equal(base.Add(3*time.Second)))

	all, err := db.RecentReports(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestNewOnlyStoresEachSnapshotOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sink := watercolumn.NewOnly(db)

	snap := snapshot(1, 7, time.Now())
	require.NoError(t, sink.Emit(ctx, snap))
	require.NoError(t, sink.Emit(ctx, snap))

	reports, err := db.RecentReports(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestPruneReports(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, db.RecordReport(ctx, snapshot(uint64(i+1), i, base.Add(time.Duration(i)*time.Hour))))
	}

	n, err := db.PruneReports(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	reports, err := db.RecentReports(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}

func TestCommandLog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordCommand(ctx, "adcp", "CWPBN 30", nil, at))
	require.NoError(t, db.RecordCommand(ctx, "adcp", "START", errors.New("write timeout"), at.Add(time.Second)))

	entries, err := db.RecentCommands(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "START", entries[0].Command)
	assert.Equal(t, "write timeout", entries[0].Error)
	assert.Equal(t, "CWPBN 30", entries[1].Command)
	assert.Empty(t, entries[1].Error)
	assert.True(t, entries[1].SentAt.Equal(at))
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	var out bytes.Buffer

	require.NoError(t, RunMigrateCommand(&out, []string{"status"}, path))
	assert.Contains(t, out.String(), "Current version: 0")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"up"}, path))
	assert.Contains(t, out.String(), "Current version: 2")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"force", "1"}, path))
	assert.Contains(t, out.String(), "Current version: 1")

	assert.Error(t, RunMigrateCommand(&out, []string{"force"}, path))
	assert.Error(t, RunMigrateCommand(&out, []string{"force", "x"}, path))
	assert.Error(t, RunMigrateCommand(&out, []string{"sideways"}, path))
	assert.Error(t, RunMigrateCommand(&out, nil, path))

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"help"}, path))
	assert.True(t, strings.HasPrefix(out.String(), "Usage: watercolumn migrate"))
}

func TestAdminRoutesBackup(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.RecordReport(context.Background(), snapshot(1, 1, time.Now())))

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "watercolumn-backup-")

	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("SQLite format 3")), "backup should be a sqlite file")
}
