package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperr "github.com/yungbote/crawlshastra-backend/internal/pkg/errors"
)

// MapError classifies persistence failures. Missing rows become ErrNotFound,
// everything else ErrStorage; the original error stays in the chain.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrStorage) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrStorage, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w: %s (%s)", op, apperr.ErrStorage, describePgCode(pgErr.Code), strings.TrimSpace(pgErr.Message))
	}
	return fmt.Errorf("%s: %w: %w", op, apperr.ErrStorage, err)
}

// IsRetryable reports transient Postgres failures (serialization, deadlock, lock timeout).
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch strings.TrimSpace(pgErr.Code) {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}

func describePgCode(code string) string {
	switch strings.TrimSpace(code) {
	case "23505":
		return "unique_violation"
	case "23503":
		return "foreign_key_violation"
	case "40001":
		return "serialization_failure"
	case "40P01":
		return "deadlock_detected"
	case "55P03":
		return "lock_not_available"
	default:
		return "pg_" + code
	}
}
