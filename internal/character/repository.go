package character

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

//go:generate mockgen -source=repository.go -destination=../mocks/character/mock_repository.go -package=mock_character

var ErrNotFound = errors.New("character not found")

// Repository stores character records locally.
type Repository interface {
	FindAll(ctx context.Context) ([]Character, error)
	FindByID(ctx context.Context, id string) (*Character, error)
	Upsert(ctx context.Context, c Character) error
	UpsertAll(ctx context.Context, characters []Character) error
	Delete(ctx context.Context, id string) error
}

type row struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Data      string `db:"data"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r row) decode() (Character, error) {
	var c Character
	if err := json.Unmarshal([]byte(r.Data), &c); err != nil {
		return Character{}, fmt.Errorf("json.Unmarshal(%s) > %w", r.ID, err)
	}
	return c, nil
}

func encode(c Character) (row, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return row{}, fmt.Errorf("json.Marshal(%s) > %w", c.ID, err)
	}
	return row{
		ID:        c.ID,
		Name:      c.Name,
		Data:      string(data),
		CreatedAt: c.CreatedAt.UnixMilli(),
		UpdatedAt: c.UpdatedAt.UnixMilli(),
	}, nil
}

const upsertQuery = `INSERT INTO characters (id, name, data, created_at, updated_at)
VALUES (:id, :name, :data, :created_at, :updated_at)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	data = excluded.data,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at`

// DBRepository implements Repository on SQLite.
type DBRepository struct {
	db *sqlx.DB
}

var _ Repository = (*DBRepository)(nil)

func NewDBRepository(db *sqlx.DB) *DBRepository {
	return &DBRepository{db: db}
}

// FindAll returns every record, oldest first.
func (r *DBRepository) FindAll(ctx context.Context) ([]Character, error) {
	var rows []row
	if err := r.db.SelectContext(ctx, &rows,
		"SELECT id, name, data, created_at, updated_at FROM characters ORDER BY created_at, id"); err != nil {
		return nil, fmt.Errorf("db.SelectContext(characters) > %w", err)
	}
	characters := make([]Character, 0, len(rows))
	for _, rec := range rows {
		c, err := rec.decode()
		if err != nil {
			return nil, err
		}
		characters = append(characters, c)
	}
	return characters, nil
}

// FindByID returns ErrNotFound when no record has the id.
func (r *DBRepository) FindByID(ctx context.Context, id string) (*Character, error) {
	var found row
	err := r.db.GetContext(ctx, &found,
		"SELECT id, name, data, created_at, updated_at FROM characters WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("db.GetContext(character) > %w", err)
	}
	c, err := found.decode()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *DBRepository) Upsert(ctx context.Context, c Character) error {
	encoded, err := encode(c)
	if err != nil {
		return err
	}
	if _, err := r.db.NamedExecContext(ctx, upsertQuery, encoded); err != nil {
		return fmt.Errorf("db.NamedExecContext(upsert character) > %w", err)
	}
	return nil
}

// UpsertAll writes every record in one transaction.
func (r *DBRepository) UpsertAll(ctx context.Context, characters []Character) error {
	if len(characters) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db.BeginTxx() > %w", err)
	}
	for _, c := range characters {
		encoded, err := encode(c)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.NamedExecContext(ctx, upsertQuery, encoded); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("tx.NamedExecContext(upsert character %s) > %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx.Commit() > %w", err)
	}
	return nil
}

// Delete returns ErrNotFound when no record has the id.
func (r *DBRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM characters WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("db.ExecContext(delete character) > %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("result.RowsAffected() > %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
