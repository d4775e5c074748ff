package repository

import (
	"errors"

	repo "app/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
)

// unique_violation
const pgCodeUniqueViolation = "23505"

// PostgreSQLの一意制約違反をErrDuplicateKeyに寄せる
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgCodeUniqueViolation {
		return repo.ErrDuplicateKey
	}
	return err
}
