// Package db persists finished simulation runs, their samples and verdicts
// in sqlite.
package db

import (
	"compress/gzip"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/speedtrap/internal/engine"
	"github.com/banshee-data/speedtrap/internal/physics"
	"github.com/banshee-data/speedtrap/internal/sim"
)

// Run status values stored in runs.status.
const (
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(ON)",
}

type DB struct {
	*sql.DB
	path string
}

// NewDB opens the database at path and applies any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenDB opens the database without touching the schema. The migrate
// subcommand uses it so that it alone decides which migrations run.
func OpenDB(path string) (*DB, error) {
	dsn := path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// RunRecord is a persisted run with its verdict, if it reached one.
type RunRecord struct {
	RunID        string       `json:"run_id"`
	StartedAt    time.Time    `json:"started_at"`
	Params       sim.Params   `json:"params"`
	Status       string       `json:"status"`
	Error        string       `json:"error,omitempty"`
	BrakedAtS    *float64     `json:"braked_at_s,omitempty"`
	StoppedShort bool         `json:"stopped_short"`
	SampleCount  int          `json:"sample_count"`
	Verdict      *sim.Verdict `json:"verdict,omitempty"`
}

// RecordFromResult converts a finished engine run into a record and its
// samples.
func RecordFromResult(res engine.Result) (RunRecord, []sim.Sample) {
	rec := RunRecord{
		RunID:        res.RunID,
		StartedAt:    res.StartedAt,
		Params:       res.Params,
		Status:       StatusCompleted,
		StoppedShort: res.State.StoppedShort,
		SampleCount:  len(res.State.History),
		Verdict:      res.Verdict,
	}
	if res.Err != nil {
		rec.Status = StatusAborted
		rec.Error = res.Err.Error()
	}
	if res.State.BrakedAtS >= 0 {
		b := res.State.BrakedAtS
		rec.BrakedAtS = &b
	}
	return rec, res.State.History
}

// RecordResult stores a finished engine run. It has the signature of
// engine.Options.OnFinish apart from the error, which callers log.
func (db *DB) RecordResult(res engine.Result) error {
	rec, samples := RecordFromResult(res)
	return db.RecordRun(rec, samples)
}

// RecordRun stores a run, its verdict and its samples in one transaction.
func (db *DB) RecordRun(rec RunRecord, samples []sim.Sample) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var brakedAt sql.NullFloat64
	if rec.BrakedAtS != nil {
		brakedAt = sql.NullFloat64{Float64: *rec.BrakedAtS, Valid: true}
	}
	var runErr sql.NullString
	if rec.Error != "" {
		runErr = sql.NullString{String: rec.Error, Valid: true}
	}

	_, err = tx.Exec(
		`INSERT INTO runs (
			run_id, started_at_unix, initial_speed_kph, total_distance_m, zone, weather,
			status, error, braked_at_s, stopped_short, sample_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, toUnixSeconds(rec.StartedAt), rec.Params.InitialSpeedKph, rec.Params.TotalDistanceM,
		rec.Params.Zone.String(), rec.Params.Weather.String(),
		rec.Status, runErr, brakedAt, rec.StoppedShort, len(samples),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", rec.RunID, err)
	}

	if v := rec.Verdict; v != nil {
		_, err = tx.Exec(
			`INSERT INTO verdicts (
				run_id, final_speed_kph, speed_limit_kph, braking_distance_m, exceeded_limit,
				max_speed_kph, mean_speed_kph, total_distance_covered_m, total_time_s
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, v.FinalSpeedKph, v.SpeedLimitKph, v.BrakingDistanceM, v.ExceededLimit,
			v.MaxSpeedKph, v.MeanSpeedKph, v.TotalDistanceCoveredM, v.TotalTimeS,
		)
		if err != nil {
			return fmt.Errorf("failed to insert verdict for run %s: %w", rec.RunID, err)
		}
	}

	stmt, err := tx.Prepare(
		`INSERT INTO samples (run_id, seq, time_s, position_m, speed_kph, friction_force_n)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, s := range samples {
		if _, err := stmt.Exec(rec.RunID, i, s.TimeS, s.PositionM, s.SpeedKph, s.FrictionForceN); err != nil {
			return fmt.Errorf("failed to insert sample %d for run %s: %w", i, rec.RunID, err)
		}
	}

	return tx.Commit()
}

const selectRun = `SELECT
	r.run_id, r.started_at_unix, r.initial_speed_kph, r.total_distance_m, r.zone, r.weather,
	r.status, r.error, r.braked_at_s, r.stopped_short, r.sample_count,
	v.final_speed_kph, v.speed_limit_kph, v.braking_distance_m, v.exceeded_limit,
	v.max_speed_kph, v.mean_speed_kph, v.total_distance_covered_m, v.total_time_s
FROM runs r LEFT JOIN verdicts v ON v.run_id = r.run_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		rec                 RunRecord
		startedAt           float64
		zone, weather       string
		runErr              sql.NullString
		brakedAt            sql.NullFloat64
		finalSpeed, limit   sql.NullFloat64
		brakingDist         sql.NullFloat64
		exceeded            sql.NullBool
		maxSpeed, meanSpeed sql.NullFloat64
		covered, totalTime  sql.NullFloat64
	)
	if err := row.Scan(
		&rec.RunID, &startedAt, &rec.Params.InitialSpeedKph, &rec.Params.TotalDistanceM, &zone, &weather,
		&rec.Status, &runErr, &brakedAt, &rec.StoppedShort, &rec.SampleCount,
		&finalSpeed, &limit, &brakingDist, &exceeded,
		&maxSpeed, &meanSpeed, &covered, &totalTime,
	); err != nil {
		return RunRecord{}, err
	}

	z, err := physics.ParseZone(zone)
	if err != nil {
		return RunRecord{}, fmt.Errorf("run %s: %w", rec.RunID, err)
	}
	rec.Params.Zone = z
	rec.Params.Weather = physics.ParseWeather(weather)
	rec.StartedAt = fromUnixSeconds(startedAt)
	rec.Error = runErr.String
	if brakedAt.Valid {
		b := brakedAt.Float64
		rec.BrakedAtS = &b
	}
	if finalSpeed.Valid {
		rec.Verdict = &sim.Verdict{
			FinalSpeedKph:         finalSpeed.Float64,
			SpeedLimitKph:         limit.Float64,
			BrakingDistanceM:      brakingDist.Float64,
			ExceededLimit:         exceeded.Bool,
			MaxSpeedKph:           maxSpeed.Float64,
			MeanSpeedKph:          meanSpeed.Float64,
			TotalDistanceCoveredM: covered.Float64,
			TotalTimeS:            totalTime.Float64,
			StoppedShort:          rec.StoppedShort,
		}
	}
	return rec, nil
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(selectRun+` ORDER BY r.started_at_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Run returns one run by ID.
func (db *DB) Run(id string) (RunRecord, error) {
	rec, err := scanRun(db.QueryRow(selectRun+` WHERE r.run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	return rec, err
}

// Samples returns the recorded ticks of a run in order.
func (db *DB) Samples(id string) ([]sim.Sample, error) {
	rows, err := db.Query(
		`SELECT time_s, position_m, speed_kph, friction_force_n
		FROM samples WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []sim.Sample
	for rows.Next() {
		var s sim.Sample
		if err := rows.Scan(&s.TimeS, &s.PositionM, &s.SpeedKph, &s.FrictionForceN); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// DeleteRun removes a run together with its verdict and samples.
func (db *DB) DeleteRun(id string) error {
	res, err := db.Exec(`DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	return nil
}

func toUnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Run store",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the run store now", http.HandlerFunc(db.serveBackup))
}

// serveBackup snapshots the database with VACUUM INTO and streams it gzipped.
func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("speedtrap-backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			log.Printf("Failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()
	if _, err := io.Copy(gzipWriter, backupFile); err != nil {
		log.Printf("Failed to write backup: %v", err)
	}
}
