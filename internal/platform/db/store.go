package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/healthfed/healthfed/internal/platform/metrics"
)

const storeName = "relational"

// ErrNoRows is returned by QueryOne when the statement matched nothing.
// Repositories translate it into an entity-specific not-found error.
var ErrNoRows = errors.New("no rows in result set")

// querier is the subset of *pgxpool.Pool the store needs. Each call on the
// pool acquires a connection and returns it once the rows are closed or the
// row is scanned.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// StoreOptions tunes a Store. A zero Timeout disables the per-call deadline.
type StoreOptions struct {
	Timeout time.Duration
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Store executes parameterized statements against the clinical store and
// returns rows as column maps with temporal values already rendered as ISO
// strings.
type Store struct {
	q       querier
	timeout time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewStore(q querier, opts StoreOptions) *Store {
	return &Store{
		q:       q,
		timeout: opts.Timeout,
		logger:  opts.Logger.With().Str("store", storeName).Logger(),
		metrics: opts.Metrics,
	}
}

func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) finish(op string, start time.Time, err error) error {
	if errors.Is(err, ErrNoRows) {
		s.metrics.ObserveStoreCall(storeName, op, start, nil)
		return err
	}
	if err != nil {
		err = classify(err)
		ev := s.logger.Error()
		if errors.Is(err, context.Canceled) {
			ev = s.logger.Debug()
		}
		ev.Err(err).Str("operation", op).Dur("latency", time.Since(start)).Msg("store call failed")
	}
	s.metrics.ObserveStoreCall(storeName, op, start, err)
	return err
}

// Query runs sql and returns every row.
func (s *Store) Query(ctx context.Context, sql string, args ...interface{}) ([]Row, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	start := time.Now()

	rows, err := s.query(ctx, sql, args...)
	return rows, s.finish("query", start, err)
}

func (s *Store) query(ctx context.Context, sql string, args ...interface{}) ([]Row, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	types := columnTypes(rows.FieldDescriptions())

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(maps))
	for _, m := range maps {
		out = append(out, normalizeRow(m, types))
	}
	return out, nil
}

// QueryOne runs sql and returns the first row, or ErrNoRows.
func (s *Store) QueryOne(ctx context.Context, sql string, args ...interface{}) (Row, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	start := time.Now()

	rows, err := s.query(ctx, sql, args...)
	if err == nil && len(rows) == 0 {
		err = ErrNoRows
	}
	if err != nil {
		return nil, s.finish("query_one", start, err)
	}
	return rows[0], s.finish("query_one", start, nil)
}

// InsertReturningID runs an INSERT ... RETURNING <id> statement and returns
// the generated identity. The insert and the identity read are one
// statement, so concurrent writers cannot observe each other's ids.
func (s *Store) InsertReturningID(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	start := time.Now()

	var id int64
	err := s.q.QueryRow(ctx, sql, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = ErrNoRows
	}
	return id, s.finish("insert", start, err)
}

// Exec runs a mutation and returns the number of affected rows.
func (s *Store) Exec(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	start := time.Now()

	tag, err := s.q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, s.finish("exec", start, err)
	}
	return tag.RowsAffected(), s.finish("exec", start, nil)
}
