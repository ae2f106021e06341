// Package recorder logs tracker runs into a sqlite database.
package recorder

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	perceive "github.com/milosgajdos/go-perceive"
	"github.com/milosgajdos/go-perceive/optimizer"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Tick is a recorded tick
type Tick struct {
	// Seq is the tick sequence number
	Seq int
	// Time is when the tick was decided
	Time time.Time
	// Command is the chosen velocity command
	Command perceive.Velocity
	// Expected is the expected posterior entropy of the command
	Expected float64
	// Entropy is the entropy of the person belief
	Entropy float64
	// EffectiveSize is the effective sample size before resampling
	EffectiveSize float64
	// Estimate is the person position estimate
	Estimate *perceive.Point
	// Reading is the reading of the controlled robot, nil if it was skipped
	Reading *bool
	// Candidates is the number of evaluated candidates
	Candidates int
	// Truth is the true person position when known
	Truth *perceive.Point
}

// TickFrom converts optimizer decision d to Tick.
func TickFrom(d *optimizer.Decision) Tick {
	t := Tick{
		Seq:           d.Tick,
		Time:          d.Time,
		Command:       d.Command,
		Expected:      d.Expected,
		Entropy:       d.Entropy,
		EffectiveSize: d.EffectiveSize,
		Candidates:    len(d.Scores),
	}

	if d.Estimate != nil {
		p := d.Estimate.Point()
		t.Estimate = &p
	}

	for _, o := range d.Observations {
		if o.Index == 0 {
			r := o.Reading
			t.Reading = &r
			break
		}
	}

	return t
}

// Recorder stores runs and their ticks.
type Recorder struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// Open opens the sqlite database at path and migrates its schema to the latest version.
func Open(path string, log logrus.FieldLogger) (*Recorder, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	// pragmas are applied to every pooled connection
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	r := &Recorder{db: db, log: log}
	if err := r.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	return r, nil
}

// migrateUp runs all pending migrations.
func (r *Recorder) migrateUp() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	// m is not closed: it would close the underlying database
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{log: r.log}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}

// Version returns the schema version.
func (r *Recorder) Version() (uint, error) {
	var v uint
	if err := r.db.QueryRow("SELECT version FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to query schema version: %w", err)
	}

	return v, nil
}

// StartRun stores a new run with configuration cfg and returns its ID.
func (r *Recorder) StartRun(cfg any) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode run config: %w", err)
	}

	id := uuid.NewString()
	if _, err := r.db.Exec(
		"INSERT INTO runs (run_id, started_at, config_json) VALUES (?, ?, ?)",
		id, time.Now().UnixNano(), string(data),
	); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	r.log.WithField("run", id).Info("run started")

	return id, nil
}

// RecordTick stores tick t of run runID.
func (r *Recorder) RecordTick(runID string, t Tick) error {
	var estX, estY, truthX, truthY sql.NullFloat64
	if t.Estimate != nil {
		estX = sql.NullFloat64{Float64: t.Estimate.X, Valid: true}
		estY = sql.NullFloat64{Float64: t.Estimate.Y, Valid: true}
	}
	if t.Truth != nil {
		truthX = sql.NullFloat64{Float64: t.Truth.X, Valid: true}
		truthY = sql.NullFloat64{Float64: t.Truth.Y, Valid: true}
	}

	var reading sql.NullBool
	if t.Reading != nil {
		reading = sql.NullBool{Bool: *t.Reading, Valid: true}
	}

	_, err := r.db.Exec(`INSERT INTO ticks (
		run_id, seq, ts, cmd_vx, cmd_vy, cmd_w, expected, entropy, effective_size,
		est_x, est_y, reading, candidates, person_x, person_y
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, t.Seq, t.Time.UnixNano(), t.Command.X, t.Command.Y, t.Command.W,
		t.Expected, t.Entropy, t.EffectiveSize,
		estX, estY, reading, t.Candidates, truthX, truthY,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tick %d: %w", t.Seq, err)
	}

	return nil
}

// Ticks returns all ticks of run runID ordered by their sequence number.
func (r *Recorder) Ticks(runID string) ([]Tick, error) {
	rows, err := r.db.Query(`SELECT
		seq, ts, cmd_vx, cmd_vy, cmd_w, expected, entropy, effective_size,
		est_x, est_y, reading, candidates, person_x, person_y
	FROM ticks WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []Tick
	for rows.Next() {
		var (
			t                          Tick
			ts                         int64
			estX, estY, truthX, truthY sql.NullFloat64
			reading                    sql.NullBool
		)
		if err := rows.Scan(
			&t.Seq, &ts, &t.Command.X, &t.Command.Y, &t.Command.W,
			&t.Expected, &t.Entropy, &t.EffectiveSize,
			&estX, &estY, &reading, &t.Candidates, &truthX, &truthY,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tick: %w", err)
		}

		t.Time = time.Unix(0, ts)
		if estX.Valid && estY.Valid {
			t.Estimate = &perceive.Point{X: estX.Float64, Y: estY.Float64}
		}
		if truthX.Valid && truthY.Valid {
			t.Truth = &perceive.Point{X: truthX.Float64, Y: truthY.Float64}
		}
		if reading.Valid {
			b := reading.Bool
			t.Reading = &b
		}
		ticks = append(ticks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ticks: %w", err)
	}

	return ticks, nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// migrateLogger implements migrate.Logger
type migrateLogger struct {
	log logrus.FieldLogger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debugf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}
