package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"github.com/healthfed/healthfed/internal/platform/apperror"
	"github.com/healthfed/healthfed/internal/platform/metrics"
)

const storeName = "graph"

// Tx runs statements inside an open write transaction.
type Tx interface {
	Run(ctx context.Context, cypher string, params map[string]interface{}) ([]Record, error)
}

// sessionFactory is satisfied by neo4j.DriverWithContext.
type sessionFactory interface {
	NewSession(ctx context.Context, config neo4j.SessionConfig) neo4j.SessionWithContext
}

// StoreOptions tunes a Store. An empty Database selects the server default.
type StoreOptions struct {
	Database string
	Timeout  time.Duration
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// Store executes Cypher against the insurance graph. Every call opens its
// own session and closes it before returning, so results are collected
// eagerly.
type Store struct {
	sessions sessionFactory
	database string
	timeout  time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func NewStore(sessions sessionFactory, opts StoreOptions) *Store {
	return &Store{
		sessions: sessions,
		database: opts.Database,
		timeout:  opts.Timeout,
		logger:   opts.Logger.With().Str("store", storeName).Logger(),
		metrics:  opts.Metrics,
	}
}

func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.sessions.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: mode})
}

func (s *Store) finish(op string, start time.Time, err error) error {
	err = classify(err)
	if err != nil {
		ev := s.logger.Warn()
		switch k := apperror.KindOf(err); {
		case errors.Is(err, context.Canceled):
			ev = s.logger.Debug()
		case k == apperror.StoreUnavailable || k == 0:
			ev = s.logger.Error()
		}
		ev.Err(err).Str("operation", op).Dur("latency", time.Since(start)).Msg("store call failed")
	}
	s.metrics.ObserveStoreCall(storeName, op, start, err)
	return err
}

// Read runs cypher in a read transaction and returns all records.
func (s *Store) Read(ctx context.Context, cypher string, params map[string]interface{}) ([]Record, error) {
	return s.run(ctx, "read", neo4j.AccessModeRead, cypher, params)
}

// Write runs cypher in a write transaction and returns all records.
func (s *Store) Write(ctx context.Context, cypher string, params map[string]interface{}) ([]Record, error) {
	return s.run(ctx, "write", neo4j.AccessModeWrite, cypher, params)
}

func (s *Store) run(ctx context.Context, op string, mode neo4j.AccessMode, cypher string, params map[string]interface{}) ([]Record, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	start := time.Now()

	session := s.session(ctx, mode)
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (interface{}, error) {
		return collect(ctx, tx, cypher, params)
	}

	var out interface{}
	var err error
	if mode == neo4j.AccessModeRead {
		out, err = session.ExecuteRead(ctx, work)
	} else {
		out, err = session.ExecuteWrite(ctx, work)
	}
	if err != nil {
		return nil, s.finish(op, start, err)
	}
	records, _ := out.([]Record)
	if records == nil {
		records = []Record{}
	}
	return records, s.finish(op, start, nil)
}

// WriteTx runs fn inside one write transaction. The transaction commits when
// fn returns nil and rolls back otherwise; fn's error is returned as is when
// already classified. fn may be invoked again if the driver retries a
// transient failure.
func (s *Store) WriteTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	start := time.Now()

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(mtx neo4j.ManagedTransaction) (interface{}, error) {
		return nil, fn(ctx, managedTx{tx: mtx})
	})
	return s.finish("write_tx", start, err)
}

type managedTx struct {
	tx neo4j.ManagedTransaction
}

func (m managedTx) Run(ctx context.Context, cypher string, params map[string]interface{}) ([]Record, error) {
	return collect(ctx, m.tx, cypher, params)
}

func collect(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]interface{}) ([]Record, error) {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	raw, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(raw))
	for _, r := range raw {
		records = append(records, toRecord(r))
	}
	return records, nil
}

var schemaStatements = []string{
	"CREATE CONSTRAINT policy_id_unique IF NOT EXISTS FOR (p:InsurancePolicy) REQUIRE p.policy_id IS UNIQUE",
	"CREATE CONSTRAINT claim_id_unique IF NOT EXISTS FOR (c:Claim) REQUIRE c.claim_id IS UNIQUE",
	"CREATE CONSTRAINT claim_sequence_name_unique IF NOT EXISTS FOR (s:ClaimSequence) REQUIRE s.name IS UNIQUE",
}

// EnsureSchema creates the uniqueness constraints the insurance
// repositories rely on. It is safe to run repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.Write(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensure graph schema: %w", err)
		}
	}
	return nil
}

// IsConstraintViolation reports whether err was caused by a uniqueness or
// existence constraint rejecting a write.
func IsConstraintViolation(err error) bool {
	var neoErr *neo4j.Neo4jError
	return errors.As(err, &neoErr) && neoErr.Code == codeConstraintViolation
}
