// Package store records analysis runs in a per-study SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/KaramelBytes/ckmtox/internal/cellsim"
	"github.com/KaramelBytes/ckmtox/internal/mediation"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	label       TEXT NOT NULL,
	params_json TEXT,
	n_points    INTEGER NOT NULL DEFAULT 0,
	n_failed    INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mediation_results (
	run_id    TEXT PRIMARY KEY,
	n         INTEGER NOT NULL,
	dropped   INTEGER NOT NULL,
	a         REAL NOT NULL,
	a_se      REAL NOT NULL,
	a_p       REAL NOT NULL,
	b         REAL NOT NULL,
	b_se      REAL NOT NULL,
	b_p       REAL NOT NULL,
	direct    REAL NOT NULL,
	c         REAL NOT NULL,
	c_se      REAL NOT NULL,
	c_p       REAL NOT NULL,
	indirect  REAL NOT NULL,
	ratio     REAL,
	r2        REAL NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS dose_points (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	x         REAL NOT NULL,
	final_bp  REAL,
	error     TEXT,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
CREATE INDEX IF NOT EXISTS idx_points_run ON dose_points(run_id, seq);
`

// Run kinds.
const (
	KindMediation    = "mediation"
	KindDoseResponse = "dose_response"
	KindSensitivity  = "sensitivity"
)

// Run is one recorded analysis.
type Run struct {
	ID        string    `json:"run_id"`
	Kind      string    `json:"kind"`
	Label     string    `json:"label"`
	Params    string    `json:"params,omitempty"`
	Points    int       `json:"points"`
	Failed    int       `json:"failed"`
	CreatedAt time.Time `json:"created_at"`
}

// Point is a stored sweep point. FinalBP is NaN when the run failed.
type Point struct {
	X       float64 `json:"x"`
	FinalBP float64 `json:"final_bp"`
	Error   string  `json:"error,omitempty"`
}

// Store manages the results database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func insertRun(tx *sql.Tx, kind, label string, params any, points, failed int) (string, error) {
	var pj any
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return "", fmt.Errorf("marshal params: %w", err)
		}
		pj = string(b)
	}
	id := uuid.NewString()
	_, err := tx.Exec(
		`INSERT INTO runs (run_id, kind, label, params_json, n_points, n_failed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, kind, label, pj, points, failed, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// SaveMediation records a mediation result. An undefined ratio is stored as NULL.
func (s *Store) SaveMediation(label string, r *mediation.Result) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := insertRun(tx, KindMediation, label, nil, r.N, 0)
	if err != nil {
		return "", err
	}
	var ratio any
	if r.Decomposition.RatioDefined {
		ratio = nullable(r.Decomposition.Ratio)
	}
	_, err = tx.Exec(
		`INSERT INTO mediation_results
		 (run_id, n, dropped, a, a_se, a_p, b, b_se, b_p, direct, c, c_se, c_p, indirect, ratio, r2)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.N, r.Dropped,
		r.PathA.Slope, r.PathA.StdErr, r.PathA.P,
		r.PathB.B, r.PathB.StdErrB, r.PathB.PB, r.PathB.Direct,
		r.PathC.Slope, r.PathC.StdErr, r.PathC.P,
		r.Decomposition.Indirect, ratio, r.PathB.R2,
	)
	if err != nil {
		return "", fmt.Errorf("insert mediation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// SaveDoseResponse records a dose-response sweep.
func (s *Store) SaveDoseResponse(label string, params cellsim.Params, pts []cellsim.DosePoint) (string, error) {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: p.Exposure, FinalBP: p.FinalBP, Error: errText(p.Err)}
	}
	return s.saveSweep(KindDoseResponse, label, params, out)
}

// SaveSensitivity records a one-parameter sweep.
func (s *Store) SaveSensitivity(label string, params cellsim.Params, pts []cellsim.SensitivityPoint) (string, error) {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: p.Value, FinalBP: p.FinalBP, Error: errText(p.Err)}
	}
	return s.saveSweep(KindSensitivity, label, params, out)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *Store) saveSweep(kind, label string, params any, pts []Point) (string, error) {
	failed := 0
	for i, p := range pts {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) {
			return "", fmt.Errorf("point %d: x must be finite, got %v", i, p.X)
		}
		if p.Error != "" || math.IsNaN(p.FinalBP) {
			failed++
		}
	}
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := insertRun(tx, kind, label, params, len(pts), failed)
	if err != nil {
		return "", err
	}
	stmt, err := tx.Prepare(`INSERT INTO dose_points (run_id, seq, x, final_bp, error) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare points: %w", err)
	}
	defer stmt.Close()
	for i, p := range pts {
		var msg any
		if p.Error != "" {
			msg = p.Error
		}
		if _, err := stmt.Exec(id, i, p.X, nullable(p.FinalBP), msg); err != nil {
			return "", fmt.Errorf("insert point %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// ListRuns returns runs newest first, optionally filtered by kind.
func (s *Store) ListRuns(kind string) ([]Run, error) {
	q := `SELECT run_id, kind, label, COALESCE(params_json, ''), n_points, n_failed, created_at FROM runs`
	var args []any
	if kind != "" {
		q += ` WHERE kind = ?`
		args = append(args, kind)
	}
	q += ` ORDER BY created_at DESC, run_id`
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var created string
		if err := rows.Scan(&r.ID, &r.Kind, &r.Label, &r.Params, &r.Points, &r.Failed, &created); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MediationRow is a stored mediation result. Ratio is nil when undefined.
type MediationRow struct {
	RunID    string   `json:"run_id"`
	N        int      `json:"n"`
	Dropped  int      `json:"dropped"`
	A        float64  `json:"a"`
	ASE      float64  `json:"a_se"`
	AP       float64  `json:"a_p"`
	B        float64  `json:"b"`
	BSE      float64  `json:"b_se"`
	BP       float64  `json:"b_p"`
	Direct   float64  `json:"direct"`
	C        float64  `json:"c"`
	CSE      float64  `json:"c_se"`
	CP       float64  `json:"c_p"`
	Indirect float64  `json:"indirect"`
	Ratio    *float64 `json:"ratio"`
	R2       float64  `json:"r2"`
}

// Mediation loads the mediation result of a run.
func (s *Store) Mediation(runID string) (*MediationRow, error) {
	var m MediationRow
	var ratio sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT run_id, n, dropped, a, a_se, a_p, b, b_se, b_p, direct, c, c_se, c_p, indirect, ratio, r2
		 FROM mediation_results WHERE run_id = ?`, runID,
	).Scan(&m.RunID, &m.N, &m.Dropped, &m.A, &m.ASE, &m.AP, &m.B, &m.BSE, &m.BP, &m.Direct,
		&m.C, &m.CSE, &m.CP, &m.Indirect, &ratio, &m.R2)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no mediation result for run %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load mediation: %w", err)
	}
	if ratio.Valid {
		v := ratio.Float64
		m.Ratio = &v
	}
	return &m, nil
}

// Points loads the sweep points of a run in order.
func (s *Store) Points(runID string) ([]Point, error) {
	rows, err := s.db.Query(
		`SELECT x, final_bp, COALESCE(error, '') FROM dose_points WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("load points: %w", err)
	}
	defer rows.Close()
	var out []Point
	for rows.Next() {
		var p Point
		var bp sql.NullFloat64
		if err := rows.Scan(&p.X, &bp, &p.Error); err != nil {
			return nil, err
		}
		p.FinalBP = math.NaN()
		if bp.Valid {
			p.FinalBP = bp.Float64
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
