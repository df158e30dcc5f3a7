package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores players and matches in Postgres.
type PostgresRepository struct {
	db *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}
