package vectorindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/lexical"
	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/metrics"
)

// Dialect captures what differs between the supported SQL engines.
type Dialect struct {
	Name     string
	BlobType string
	// Numbered reports whether placeholders are $1, $2 rather than ?.
	Numbered bool
}

var (
	Postgres = Dialect{Name: "postgres", BlobType: "BYTEA", Numbered: true}
	SQLite   = Dialect{Name: "sqlite", BlobType: "BLOB"}
)

// Statements are written with ? placeholders and passed through bind.
const (
	createIndexSQL  = `INSERT INTO hs_indexes (name, dimension, metric) VALUES (?, ?, ?) ON CONFLICT (name) DO NOTHING`
	lookupIndexSQL  = `SELECT dimension, metric FROM hs_indexes WHERE name = ?`
	upsertRecordSQL = `INSERT INTO hs_records (index_name, id, sparse, dense, payload) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (index_name, id) DO UPDATE
		SET sparse = excluded.sparse, dense = excluded.dense, payload = excluded.payload`
	scanRecordsSQL  = `SELECT id, sparse, dense, payload FROM hs_records WHERE index_name = ?`
	countRecordsSQL = `SELECT COUNT(*) FROM hs_records WHERE index_name = ?`
)

// bind rewrites ? placeholders for dialects that number them.
func (d Dialect) bind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS hs_indexes (
			name      TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL,
			metric    TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS hs_records (
			index_name TEXT NOT NULL REFERENCES hs_indexes(name) ON DELETE CASCADE,
			id         TEXT NOT NULL,
			sparse     %[1]s NOT NULL,
			dense      %[1]s NOT NULL,
			payload    TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (index_name, id)
		)`, d.BlobType),
	}
}

// SQLIndex keeps records in hs_records and fuses scores in process after a
// scan of the index's rows.
type SQLIndex struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSQLIndex creates the schema if needed.
func NewSQLIndex(ctx context.Context, db *sql.DB, dialect Dialect, m *metrics.Metrics) (*SQLIndex, error) {
	idx := &SQLIndex{
		db:      db,
		dialect: dialect,
		logger:  slog.Default().With("component", "sql-index", "dialect", dialect.Name),
		metrics: m,
	}
	for _, stmt := range dialect.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("migrating %s schema: %w", dialect.Name, err)
		}
	}
	return idx, nil
}

func (s *SQLIndex) EnsureIndex(ctx context.Context, name string, dim int, metric Metric) (Handle, error) {
	if name == "" || dim <= 0 {
		return Handle{}, apperrors.Newf("ensure index", apperrors.ErrInvalidInput, "name %q dimension %d", name, dim)
	}
	var h Handle
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.dialect.bind(createIndexSQL),
			name, dim, string(metric)); err != nil {
			return fmt.Errorf("creating index %q: %w", name, err)
		}
		existing, err := s.lookup(ctx, tx, name)
		if err != nil {
			return err
		}
		h = existing
		return nil
	})
	if err != nil {
		return Handle{}, err
	}
	if h.Dimension != dim {
		return Handle{}, apperrors.Newf("ensure index", apperrors.ErrDimensionMismatch,
			"index %q has dimension %d, requested %d", name, h.Dimension, dim)
	}
	return h, nil
}

func (s *SQLIndex) Upsert(ctx context.Context, h Handle, records []Record) error {
	err := s.upsert(ctx, h, records)
	s.metrics.ObserveUpsert(len(records), err)
	return err
}

func (s *SQLIndex) upsert(ctx context.Context, h Handle, records []Record) error {
	stored, err := s.resolve(ctx, h)
	if err != nil {
		return err
	}
	if err := ValidateBatch(stored, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.dialect.bind(upsertRecordSQL))
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, r := range records {
			if _, err := stmt.ExecContext(ctx, h.Name, r.ID, encodeSparse(r.Sparse), encodeDense(r.Dense), r.Payload); err != nil {
				return fmt.Errorf("upserting record %q: %w", r.ID, err)
			}
		}
		s.logger.Debug("upserted batch", "index", h.Name, "records", len(records))
		return nil
	})
}

func (s *SQLIndex) Query(ctx context.Context, h Handle, sparse lexical.SparseVector, dense []float32, alpha float64, topK int) ([]Hit, error) {
	stored, err := s.resolve(ctx, h)
	if err != nil {
		return nil, err
	}
	fusion, err := Fuse(stored, sparse, dense, alpha)
	if err != nil {
		return nil, err
	}
	top, err := newCollector(topK)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.bind(scanRecordsSQL), h.Name)
	if err != nil {
		return nil, fmt.Errorf("scanning index %q: %w", h.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r                     Record
			sparseBlob, denseBlob []byte
		)
		if err := rows.Scan(&r.ID, &sparseBlob, &denseBlob, &r.Payload); err != nil {
			return nil, fmt.Errorf("reading record: %w", err)
		}
		if r.Sparse, err = decodeSparse(sparseBlob); err != nil {
			return nil, apperrors.ForID("query", r.ID, apperrors.ErrInternal, "%v", err)
		}
		if r.Dense, err = decodeDense(denseBlob); err != nil {
			return nil, apperrors.ForID("query", r.ID, apperrors.ErrInternal, "%v", err)
		}
		if len(r.Dense) != stored.Dimension {
			return nil, apperrors.ForID("query", r.ID, apperrors.ErrInternal, "stored dense length %d", len(r.Dense))
		}
		top.push(Hit{ID: r.ID, Score: fusion.Score(r), Payload: r.Payload})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating index %q: %w", h.Name, err)
	}
	return top.results(), nil
}

func (s *SQLIndex) Count(ctx context.Context, h Handle) (int, error) {
	if _, err := s.resolve(ctx, h); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, s.dialect.bind(countRecordsSQL), h.Name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting index %q: %w", h.Name, err)
	}
	return n, nil
}

// Ping reports whether the database answers.
func (s *SQLIndex) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLIndex) lookup(ctx context.Context, q queryer, name string) (Handle, error) {
	h := Handle{Name: name}
	var metric string
	err := q.QueryRowContext(ctx, s.dialect.bind(lookupIndexSQL), name).Scan(&h.Dimension, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return Handle{}, apperrors.Newf("index", apperrors.ErrNotFound, "index %q", name)
	}
	if err != nil {
		return Handle{}, fmt.Errorf("looking up index %q: %w", name, err)
	}
	h.Metric = Metric(metric)
	return h, nil
}

// resolve loads the stored handle and checks h against it.
func (s *SQLIndex) resolve(ctx context.Context, h Handle) (Handle, error) {
	stored, err := s.lookup(ctx, s.db, h.Name)
	if err != nil {
		return Handle{}, err
	}
	if stored.Dimension != h.Dimension {
		return Handle{}, apperrors.Newf("index", apperrors.ErrDimensionMismatch,
			"handle dimension %d, index %q has %d", h.Dimension, h.Name, stored.Dimension)
	}
	return stored, nil
}

func (s *SQLIndex) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
