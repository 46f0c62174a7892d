// Package catalog stores the course catalog that backs the dynamic course queries.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// Course is one catalog entry.
type Course struct {
	ID              string `json:"id" yaml:"id"`
	SFID            string `json:"sf_id" yaml:"sf_id"`
	Name            string `json:"name" yaml:"name"`
	StudyType1      string `json:"tipo_de_estudio1" yaml:"tipo_de_estudio1"`
	StudyType2      string `json:"tipo_de_estudio2" yaml:"tipo_de_estudio2"`
	StudyOfInterest string `json:"study_of_interest,omitempty" yaml:"study_of_interest"`
}

// UpsertSummary counts the effect of an Upsert.
type UpsertSummary struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// Config defines SQLite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 8,
	}
}

// Repository reads and writes courses in SQLite.
type Repository struct {
	db *sql.DB
}

// Open creates or opens a catalog database at path and migrates it.
func Open(path string, cfg Config) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	// PRAGMAs go in the DSN so they apply to every pooled connection.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open failed: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: ping failed: %w", err)
	}
	return newRepository(db)
}

// OpenMemory creates an in-memory catalog (useful for testing).
func OpenMemory() (*Repository, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("catalog: opening in-memory database: %w", err)
	}
	// Every connection would get its own empty :memory: database.
	db.SetMaxOpenConns(1)
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	r := &Repository{db: db}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: running migrations: %w", err)
	}
	return r, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS courses (
    course_id TEXT PRIMARY KEY,
    sf_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    tipo_de_estudio1 TEXT,
    tipo_de_estudio2 TEXT,
    study_of_interest TEXT,
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_courses_types ON courses(tipo_de_estudio1, tipo_de_estudio2);
`

// CoursesByFilters lists courses matching the given study types, ordered by name.
// An empty filter matches every value. Courses without a study of interest are
// never returned.
func (r *Repository) CoursesByFilters(ctx context.Context, type1, type2 string) ([]Course, error) {
	where := []string{"study_of_interest IS NOT NULL"}
	var args []any
	if type1 != "" {
		where = append(where, "tipo_de_estudio1 = ?")
		args = append(args, type1)
	}
	if type2 != "" {
		where = append(where, "tipo_de_estudio2 = ?")
		args = append(args, type2)
	}

	query := `SELECT DISTINCT course_id, sf_id, name, COALESCE(tipo_de_estudio1, ''), COALESCE(tipo_de_estudio2, ''), study_of_interest
		FROM courses WHERE ` + strings.Join(where, " AND ") + ` ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying courses: %w", err)
	}
	defer rows.Close()

	var out []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.SFID, &c.Name, &c.StudyType1, &c.StudyType2, &c.StudyOfInterest); err != nil {
			return nil, fmt.Errorf("scanning course: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns one course by id.
func (r *Repository) Get(ctx context.Context, id string) (Course, error) {
	var c Course
	var interest sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT course_id, sf_id, name, COALESCE(tipo_de_estudio1, ''), COALESCE(tipo_de_estudio2, ''), study_of_interest
		FROM courses WHERE course_id = ?`, id).
		Scan(&c.ID, &c.SFID, &c.Name, &c.StudyType1, &c.StudyType2, &interest)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, fmt.Errorf("course '%s': %w", id, ErrCourseNotFound)
	}
	if err != nil {
		return Course{}, fmt.Errorf("querying course: %w", err)
	}
	c.StudyOfInterest = interest.String
	return c, nil
}

// ErrCourseNotFound is returned by Get for unknown ids.
var ErrCourseNotFound = errors.New("course not found")

// Upsert inserts or updates courses by id in a single transaction.
func (r *Repository) Upsert(ctx context.Context, courses ...Course) (UpsertSummary, error) {
	var sum UpsertSummary
	if len(courses) == 0 {
		return sum, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return sum, fmt.Errorf("beginning upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range courses {
		if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Name) == "" {
			return UpsertSummary{}, fmt.Errorf("course %q: id and name are required", c.ID)
		}
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM courses WHERE course_id = ?`, c.ID).Scan(&exists); err != nil {
			return UpsertSummary{}, fmt.Errorf("checking course %s: %w", c.ID, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO courses (course_id, sf_id, name, tipo_de_estudio1, tipo_de_estudio2, study_of_interest, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
			ON CONFLICT(course_id) DO UPDATE SET
				sf_id = excluded.sf_id,
				name = excluded.name,
				tipo_de_estudio1 = excluded.tipo_de_estudio1,
				tipo_de_estudio2 = excluded.tipo_de_estudio2,
				study_of_interest = excluded.study_of_interest,
				updated_at = excluded.updated_at`,
			c.ID, c.SFID, c.Name, nullable(c.StudyType1), nullable(c.StudyType2), nullable(c.StudyOfInterest))
		if err != nil {
			return UpsertSummary{}, fmt.Errorf("upserting course %s: %w", c.ID, err)
		}
		if exists > 0 {
			sum.Updated++
		} else {
			sum.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertSummary{}, fmt.Errorf("committing upsert: %w", err)
	}
	return sum, nil
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
