package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ensureRemoteSync creates the sync row for a project owned by userID.
// Zero rows inserted with no existing row means the project is not visible.
func ensureRemoteSync(ctx context.Context, tx DBTX, projectID, userID string) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO project_sync (project_id)
		SELECT id FROM projects WHERE id = $1 AND user_id = $2
		ON CONFLICT (project_id) DO NOTHING
	`, projectID, userID); err != nil {
		return err
	}
	_, err := remoteSync(ctx, tx, projectID, userID)
	return err
}

func remoteSync(ctx context.Context, q DBTX, projectID, userID string) (ProjectSync, error) {
	return scanSync(q.QueryRowContext(ctx, `
		SELECT ps.project_id, ps.canvas_rev, ps.view_rev, ps.canvas_updated_at, ps.view_updated_at
		FROM project_sync ps
		JOIN projects p ON p.id = ps.project_id
		WHERE ps.project_id = $1 AND p.user_id = $2
	`, projectID, userID))
}

func (s *RemoteStore) GetProjectSync(ctx context.Context, projectID string) (ProjectSync, error) {
	if err := s.bound(); err != nil {
		return ProjectSync{}, err
	}
	var out ProjectSync
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if err := ensureRemoteSync(ctx, tx, projectID, s.userID); err != nil {
			return err
		}
		var err error
		out, err = remoteSync(ctx, tx, projectID, s.userID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return ProjectSync{}, err
	}
	if err != nil {
		return ProjectSync{}, fmt.Errorf("get project sync: %w", err)
	}
	return out, nil
}

func (s *RemoteStore) GetCanvasObjects(ctx context.Context, projectID string) ([]CanvasObject, error) {
	if err := s.bound(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.project_id, c.type, c.asset_id, c.x, c.y, c.scale_x, c.scale_y, c.rotation,
			c.width, c.height, c.z_index, c.props_json, c.created_at, c.updated_at
		FROM canvas_objects c
		JOIN projects p ON p.id = c.project_id
		WHERE c.project_id = $1 AND p.user_id = $2
		ORDER BY c.z_index ASC, c.created_at ASC
	`, projectID, s.userID)
	if err != nil {
		return nil, fmt.Errorf("get canvas objects: %w", err)
	}
	return collectCanvasObjects(rows)
}

func (s *RemoteStore) ReplaceCanvasObjects(ctx context.Context, projectID string, objects []CanvasObject, baseRev *int64) (ProjectSync, error) {
	if err := s.bound(); err != nil {
		return ProjectSync{}, err
	}
	var out ProjectSync
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if err := ensureRemoteSync(ctx, tx, projectID, s.userID); err != nil {
			return err
		}

		query := `
			UPDATE project_sync ps SET canvas_rev = ps.canvas_rev + 1, canvas_updated_at = NOW()
			FROM projects p
			WHERE ps.project_id = p.id AND ps.project_id = $1 AND p.user_id = $2`
		args := []any{projectID, s.userID}
		if baseRev != nil {
			query += ` AND ps.canvas_rev = $3`
			args = append(args, *baseRev)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			current, err := remoteSync(ctx, tx, projectID, s.userID)
			if err != nil {
				return err
			}
			return &RevisionConflictError{Rev: current.CanvasRev, UpdatedAt: current.CanvasUpdatedAt}
		}

		if err := checkCanvasAssets(objects, func(assetID string) (bool, error) {
			var found string
			err := tx.QueryRowContext(ctx, `
				SELECT id FROM assets
				WHERE id = $1 AND project_id = $2 AND user_id = $3 AND deleted_at IS NULL
				FOR SHARE
			`, assetID, projectID, s.userID).Scan(&found)
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}
			return err == nil, err
		}); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM canvas_objects WHERE project_id = $1`, projectID); err != nil {
			return err
		}
		for _, o := range objects {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO canvas_objects (id, project_id, type, asset_id, x, y, scale_x, scale_y, rotation,
					width, height, z_index, props_json, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
					COALESCE(NULLIF($14, '')::timestamptz, NOW()), NOW())
			`, o.ID, projectID, o.Type, o.AssetID, o.X, o.Y, o.ScaleX, o.ScaleY, o.Rotation,
				o.Width, o.Height, o.ZIndex, o.PropsJSON, o.CreatedAt); err != nil {
				return err
			}
		}

		out, err = remoteSync(ctx, tx, projectID, s.userID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return ProjectSync{}, err
	}
	if err != nil {
		return ProjectSync{}, wrapRevisionErr("replace canvas objects", err)
	}
	return out, nil
}

func (s *RemoteStore) GetProjectView(ctx context.Context, projectID string) (ProjectView, error) {
	if err := s.bound(); err != nil {
		return ProjectView{}, err
	}
	var v ProjectView
	err := s.db.QueryRowContext(ctx, `
		SELECT v.project_id, v.world_x, v.world_y, v.zoom, v.updated_at
		FROM project_view v
		JOIN projects p ON p.id = v.project_id
		WHERE v.project_id = $1 AND p.user_id = $2
	`, projectID, s.userID).Scan(&v.ProjectID, &v.WorldX, &v.WorldY, &v.Zoom, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectView{}, ErrNotFound
	}
	if err != nil {
		return ProjectView{}, fmt.Errorf("get project view: %w", err)
	}
	return v, nil
}

func (s *RemoteStore) SaveProjectView(ctx context.Context, view ProjectView, baseRev *int64) (ProjectSync, error) {
	if err := s.bound(); err != nil {
		return ProjectSync{}, err
	}
	var out ProjectSync
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if err := ensureRemoteSync(ctx, tx, view.ProjectID, s.userID); err != nil {
			return err
		}

		query := `
			UPDATE project_sync ps SET view_rev = ps.view_rev + 1, view_updated_at = NOW()
			FROM projects p
			WHERE ps.project_id = p.id AND ps.project_id = $1 AND p.user_id = $2`
		args := []any{view.ProjectID, s.userID}
		if baseRev != nil {
			query += ` AND ps.view_rev = $3`
			args = append(args, *baseRev)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			current, err := remoteSync(ctx, tx, view.ProjectID, s.userID)
			if err != nil {
				return err
			}
			return &RevisionConflictError{Rev: current.ViewRev, UpdatedAt: current.ViewUpdatedAt}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO project_view (project_id, world_x, world_y, zoom, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (project_id) DO UPDATE SET
				world_x = EXCLUDED.world_x, world_y = EXCLUDED.world_y, zoom = EXCLUDED.zoom, updated_at = NOW()
		`, view.ProjectID, view.WorldX, view.WorldY, view.Zoom); err != nil {
			return err
		}

		out, err = remoteSync(ctx, tx, view.ProjectID, s.userID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return ProjectSync{}, err
	}
	if err != nil {
		return ProjectSync{}, wrapRevisionErr("save project view", err)
	}
	return out, nil
}
