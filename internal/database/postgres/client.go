package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/getmentor/consultations-api/pkg/errors"
	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/getmentor/consultations-api/pkg/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Client wraps a pgx connection pool with observability.
// It implements repository.ConsultationStore and repository.SlotStore.
type Client struct {
	pool *pgxpool.Pool
}

// NewClient wraps an already connected pool
func NewClient(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// Close closes the connection pool
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
		logger.Info("PostgreSQL connection pool closed")
	}
}

// Ping checks if the database connection is alive
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// inTx runs fn in a transaction that commits only if fn succeeds and ctx is still live
func (c *Client) inTx(ctx context.Context, operation string, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	start := time.Now()

	err := c.runTx(ctx, opts, fn)

	duration := metrics.MeasureDuration(start)
	status := "success"
	switch {
	case err == nil:
	case isDomainError(err):
		// Business rule rejections are a normal outcome, not a database failure
		status = "rejected"
	default:
		status = "error"
	}
	recordMetrics(operation, status, duration)

	if status == "error" {
		logger.LogAPICall("postgres", operation, status, duration, zap.Error(err))
	} else {
		logger.LogAPICall("postgres", operation, status, duration)
	}
	return err
}

func isDomainError(err error) bool {
	for _, target := range []error{
		apperrors.ErrNotFound,
		apperrors.ErrInvalidState,
		apperrors.ErrInvalidInput,
		apperrors.ErrDuplicateOffer,
		apperrors.ErrConflictingCourse,
		apperrors.ErrAlreadyBooked,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (c *Client) runTx(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := c.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit
		_ = tx.Rollback(context.Background())
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// readSnapshot is used for multi-statement reads that must observe one committed state
var readSnapshot = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// isUniqueViolation reports whether err is a unique constraint failure on the named index
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// recordMetrics records database operation metrics
func recordMetrics(operation, status string, duration float64) {
	metrics.DBOperationDuration.WithLabelValues("postgres_"+operation, status).Observe(duration)
	metrics.DBOperationTotal.WithLabelValues("postgres_"+operation, status).Inc()
}
