package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrDuplicateEnrollment = errors.New("enrollment already exists")
	ErrDuplicateAttempt    = errors.New("attempt number already taken")
	ErrAttemptClosed       = errors.New("attempt is already completed")
	ErrStaleWrite          = errors.New("attempt has a newer version")
)

const pgUniqueViolation = "23505"

// notFound maps pgx.ErrNoRows onto ErrNotFound and leaves other errors untouched.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
