package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"canvasvault/api/internal/util"
)

// RemoteStore implements Adapter on Postgres. Every row is owned by a user;
// use ForUser to obtain a store scoped to one.
type RemoteStore struct {
	db     *sql.DB
	userID string
}

func NewRemoteStore(db *sql.DB) *RemoteStore {
	return &RemoteStore{db: db}
}

func (s *RemoteStore) DB() *sql.DB {
	return s.db
}

// ForUser returns a copy of the store bound to userID.
func (s *RemoteStore) ForUser(userID string) *RemoteStore {
	return &RemoteStore{db: s.db, userID: userID}
}

func (s *RemoteStore) UserID() string {
	return s.userID
}

func (s *RemoteStore) bound() error {
	if strings.TrimSpace(s.userID) == "" {
		return ErrNotAuthenticated
	}
	return nil
}

func (s *RemoteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *RemoteStore) CreateUser(ctx context.Context, email, passwordHash string, verified bool, verificationToken string, verificationExpiresAt *time.Time) (User, error) {
	var token sql.NullString
	if verificationToken != "" {
		token = sql.NullString{String: verificationToken, Valid: true}
	}
	const query = `
		INSERT INTO users (id, email, password_hash, email_verified, verification_token, verification_expires_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6)
		RETURNING id, email, password_hash, email_verified, COALESCE(verification_token, ''), verification_expires_at, created_at
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query,
		util.NewID(), email, passwordHash, verified, token, verificationExpiresAt))
	if isUniqueViolation(err) {
		return User{}, ErrConflict
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

const userColumns = `id, email, password_hash, email_verified, COALESCE(verification_token, ''), verification_expires_at, created_at`

func (s *RemoteStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = LOWER($1)`, email))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, err
}

func (s *RemoteStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, err
}

// VerifyUserEmail marks the account owning an unexpired token as verified.
func (s *RemoteStore) VerifyUserEmail(ctx context.Context, token string) (User, error) {
	const query = `
		UPDATE users
		SET email_verified = TRUE, verification_token = NULL, verification_expires_at = NULL
		WHERE verification_token = $1
			AND (verification_expires_at IS NULL OR verification_expires_at > NOW())
		RETURNING ` + userColumns
	user, err := scanUser(s.db.QueryRowContext(ctx, query, token))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("verify user email: %w", err)
	}
	return user, err
}

func scanUser(row rowScanner) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.EmailVerified,
		&user.VerificationToken, &user.VerificationExpiresAt, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

func (s *RemoteStore) GetProject(ctx context.Context, id string) (Project, error) {
	if err := s.bound(); err != nil {
		return Project{}, err
	}
	var p Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM projects WHERE id = $1 AND user_id = $2`, id, s.userID,
	).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *RemoteStore) ListProjects(ctx context.Context) ([]Project, error) {
	if err := s.bound(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM projects
		WHERE user_id = $1
		ORDER BY updated_at DESC, created_at DESC
	`, s.userID)
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

func (s *RemoteStore) CreateProject(ctx context.Context, name string) (Project, error) {
	if err := s.bound(); err != nil {
		return Project{}, err
	}
	var p Project
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO projects (id, user_id, name)
			VALUES ($1, $2, $3)
			RETURNING id, name, created_at, updated_at
		`, util.NewID(), s.userID, name).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO project_sync (project_id) VALUES ($1) ON CONFLICT (project_id) DO NOTHING`, p.ID)
		return err
	})
	if err != nil {
		return Project{}, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

func (s *RemoteStore) RenameProject(ctx context.Context, id, name string) (Project, error) {
	if err := s.bound(); err != nil {
		return Project{}, err
	}
	var p Project
	err := s.db.QueryRowContext(ctx, `
		UPDATE projects SET name = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
		RETURNING id, name, created_at, updated_at
	`, name, id, s.userID).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("rename project: %w", err)
	}
	return p, nil
}

func (s *RemoteStore) DeleteProject(ctx context.Context, id string) error {
	if err := s.bound(); err != nil {
		return err
	}
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM asset_search WHERE project_id = $1 AND user_id = $2`, id, s.userID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = $1 AND user_id = $2`, id, s.userID)
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

func (s *RemoteStore) GetAppState(ctx context.Context, key string) (string, error) {
	if err := s.bound(); err != nil {
		return "", err
	}
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM app_state WHERE user_id = $1 AND key = $2`, s.userID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get app state: %w", err)
	}
	return value, nil
}

func (s *RemoteStore) SetAppState(ctx context.Context, key, value string) error {
	if err := s.bound(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_state (user_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, s.userID, key, value)
	if err != nil {
		return fmt.Errorf("set app state: %w", err)
	}
	return nil
}

// MissingTables returns the names in required that do not exist in the
// public schema.
func (s *RemoteStore) MissingTables(ctx context.Context, required []string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	present := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		present[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	missing := []string{}
	for _, name := range required {
		if _, ok := present[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing, nil
}
