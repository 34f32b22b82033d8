package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"canvasvault/api/internal/util"
)

// LocalStore implements Adapter on the embedded SQLite database.
type LocalStore struct {
	db *sql.DB
}

func NewLocalStore(db *sql.DB) *LocalStore {
	return &LocalStore{db: db}
}

func (s *LocalStore) DB() *sql.DB {
	return s.db
}

func (s *LocalStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *LocalStore) GetProject(ctx context.Context, id string) (Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *LocalStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM projects ORDER BY updated_at DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := []Project{}
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (s *LocalStore) CreateProject(ctx context.Context, name string) (Project, error) {
	ts := now()
	p := Project{ID: util.NewID(), Name: name, CreatedAt: ts, UpdatedAt: ts}
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO projects (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			p.ID, p.Name, p.CreatedAt, p.UpdatedAt,
		); err != nil {
			return err
		}
		return ensureLocalSync(ctx, tx, p.ID, ts)
	})
	if err != nil {
		return Project{}, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

func (s *LocalStore) RenameProject(ctx context.Context, id, name string) (Project, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, updated_at = ? WHERE id = ?`, name, now(), id)
	if err != nil {
		return Project{}, fmt.Errorf("rename project: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return Project{}, err
	}
	if n == 0 {
		return Project{}, ErrNotFound
	}
	return s.GetProject(ctx, id)
}

// DeleteProject removes the project and, through foreign keys, its assets and
// canvas rows. Search rows have no foreign key and are removed explicitly.
func (s *LocalStore) DeleteProject(ctx context.Context, id string) error {
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM asset_search WHERE project_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

func (s *LocalStore) GetAppState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get app state: %w", err)
	}
	return value, nil
}

func (s *LocalStore) SetAppState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now())
	if err != nil {
		return fmt.Errorf("set app state: %w", err)
	}
	return nil
}
