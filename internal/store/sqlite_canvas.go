package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

func ensureLocalSync(ctx context.Context, tx DBTX, projectID, ts string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO project_sync (project_id, canvas_rev, view_rev, canvas_updated_at, view_updated_at)
		 VALUES (?, 0, 0, ?, ?) ON CONFLICT(project_id) DO NOTHING`,
		projectID, ts, ts)
	return err
}

const localSyncSelect = `SELECT project_id, canvas_rev, view_rev, canvas_updated_at, view_updated_at
	FROM project_sync WHERE project_id = ?`

func (s *LocalStore) GetProjectSync(ctx context.Context, projectID string) (ProjectSync, error) {
	sync, err := scanSync(s.db.QueryRowContext(ctx, localSyncSelect, projectID))
	if errors.Is(err, ErrNotFound) {
		if _, err := s.GetProject(ctx, projectID); err != nil {
			return ProjectSync{}, err
		}
		ts := now()
		return ProjectSync{ProjectID: projectID, CanvasUpdatedAt: ts, ViewUpdatedAt: ts}, nil
	}
	if err != nil {
		return ProjectSync{}, fmt.Errorf("get project sync: %w", err)
	}
	return sync, nil
}

func (s *LocalStore) GetCanvasObjects(ctx context.Context, projectID string) ([]CanvasObject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+canvasColumns+` FROM canvas_objects WHERE project_id = ? ORDER BY z_index ASC, created_at ASC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("get canvas objects: %w", err)
	}
	return collectCanvasObjects(rows)
}

// ReplaceCanvasObjects bumps canvas_rev and swaps the object set in one
// transaction. With a base revision the bump only applies when the stored
// revision still equals it.
func (s *LocalStore) ReplaceCanvasObjects(ctx context.Context, projectID string, objects []CanvasObject, baseRev *int64) (ProjectSync, error) {
	var out ProjectSync
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		ts := now()
		if err := ensureLocalSync(ctx, tx, projectID, ts); err != nil {
			return err
		}

		query := `UPDATE project_sync SET canvas_rev = canvas_rev + 1, canvas_updated_at = ? WHERE project_id = ?`
		args := []any{ts, projectID}
		if baseRev != nil {
			query += ` AND canvas_rev = ?`
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
			current, err := scanSync(tx.QueryRowContext(ctx, localSyncSelect, projectID))
			if err != nil {
				return err
			}
			return &RevisionConflictError{Rev: current.CanvasRev, UpdatedAt: current.CanvasUpdatedAt}
		}

		if err := checkCanvasAssets(objects, func(assetID string) (bool, error) {
			var ok bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM assets WHERE id = ? AND project_id = ? AND deleted_at IS NULL)`, assetID, projectID,
			).Scan(&ok)
			return ok, err
		}); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM canvas_objects WHERE project_id = ?`, projectID); err != nil {
			return err
		}
		for _, o := range objects {
			createdAt := o.CreatedAt
			if createdAt == "" {
				createdAt = ts
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO canvas_objects (id, project_id, type, asset_id, x, y, scale_x, scale_y, rotation,
					width, height, z_index, props_json, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				o.ID, projectID, o.Type, o.AssetID, o.X, o.Y, o.ScaleX, o.ScaleY, o.Rotation,
				o.Width, o.Height, o.ZIndex, o.PropsJSON, createdAt, ts,
			); err != nil {
				return err
			}
		}

		out, err = scanSync(tx.QueryRowContext(ctx, localSyncSelect, projectID))
		return err
	})
	if err != nil {
		return ProjectSync{}, wrapRevisionErr("replace canvas objects", err)
	}
	return out, nil
}

func (s *LocalStore) GetProjectView(ctx context.Context, projectID string) (ProjectView, error) {
	var v ProjectView
	err := s.db.QueryRowContext(ctx,
		`SELECT project_id, world_x, world_y, zoom, updated_at FROM project_view WHERE project_id = ?`, projectID,
	).Scan(&v.ProjectID, &v.WorldX, &v.WorldY, &v.Zoom, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectView{}, ErrNotFound
	}
	if err != nil {
		return ProjectView{}, fmt.Errorf("get project view: %w", err)
	}
	return v, nil
}

func (s *LocalStore) SaveProjectView(ctx context.Context, view ProjectView, baseRev *int64) (ProjectSync, error) {
	var out ProjectSync
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		ts := now()
		if err := ensureLocalSync(ctx, tx, view.ProjectID, ts); err != nil {
			return err
		}

		query := `UPDATE project_sync SET view_rev = view_rev + 1, view_updated_at = ? WHERE project_id = ?`
		args := []any{ts, view.ProjectID}
		if baseRev != nil {
			query += ` AND view_rev = ?`
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
			current, err := scanSync(tx.QueryRowContext(ctx, localSyncSelect, view.ProjectID))
			if err != nil {
				return err
			}
			return &RevisionConflictError{Rev: current.ViewRev, UpdatedAt: current.ViewUpdatedAt}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO project_view (project_id, world_x, world_y, zoom, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(project_id) DO UPDATE SET
				world_x = excluded.world_x, world_y = excluded.world_y, zoom = excluded.zoom,
				updated_at = excluded.updated_at`,
			view.ProjectID, view.WorldX, view.WorldY, view.Zoom, ts,
		); err != nil {
			return err
		}

		out, err = scanSync(tx.QueryRowContext(ctx, localSyncSelect, view.ProjectID))
		return err
	})
	if err != nil {
		return ProjectSync{}, wrapRevisionErr("save project view", err)
	}
	return out, nil
}

// checkCanvasAssets fails with ErrNotFound when an object points at an
// asset that is not live in the project. Each id is looked up once.
func checkCanvasAssets(objects []CanvasObject, owned func(assetID string) (bool, error)) error {
	seen := make(map[string]bool, len(objects))
	for _, o := range objects {
		if o.AssetID == nil || seen[*o.AssetID] {
			continue
		}
		seen[*o.AssetID] = true
		ok, err := owned(*o.AssetID)
		if err != nil {
			return fmt.Errorf("check canvas asset: %w", err)
		}
		if !ok {
			return ErrNotFound
		}
	}
	return nil
}

func wrapRevisionErr(op string, err error) error {
	var conflict *RevisionConflictError
	if errors.As(err, &conflict) {
		return conflict
	}
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "FOREIGN KEY constraint failed") || strings.Contains(msg, "violates foreign key constraint")
}

func (s *LocalStore) UpsertEmbedding(ctx context.Context, e Embedding) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO asset_embeddings (asset_id, model, dim, embedding, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(asset_id) DO UPDATE SET
			model = excluded.model, dim = excluded.dim, embedding = excluded.embedding, updated_at = excluded.updated_at`,
		e.AssetID, e.Model, len(e.Vector), encodeVector(e.Vector), now(),
	); err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

func (s *LocalStore) GetEmbedding(ctx context.Context, assetID string) (Embedding, error) {
	var (
		e   Embedding
		raw []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT asset_id, model, embedding, updated_at FROM asset_embeddings WHERE asset_id = ?`, assetID,
	).Scan(&e.AssetID, &e.Model, &raw, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Embedding{}, ErrNotFound
	}
	if err != nil {
		return Embedding{}, fmt.Errorf("get embedding: %w", err)
	}
	e.Vector = decodeVector(raw)
	return e, nil
}

// VectorSearch ranks the project's live assets by cosine similarity between
// their stored embedding and query. Embeddings of another dimension are
// skipped.
func (s *LocalStore) VectorSearch(ctx context.Context, projectID string, query []float32, limit int) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.asset_id, e.embedding FROM asset_embeddings e
		 JOIN assets a ON a.id = e.asset_id
		 WHERE a.project_id = ? AND a.deleted_at IS NULL AND e.dim = ?`, projectID, len(query))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	type scored struct {
		id    string
		score float64
	}
	var ranked []scored
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		ranked = append(ranked, scored{id: id, score: cosine(query, decodeVector(raw))})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	limit = ClampLimit(limit)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.id)
	}
	return s.GetAssetsByIDs(ctx, projectID, ids)
}

// SearchAssets runs an FTS5 match ordered by bm25. A blank query lists the
// project's assets instead.
func (s *LocalStore) SearchAssets(ctx context.Context, projectID, query string, limit int) ([]Asset, error) {
	match := FTSQuery(query)
	if match == "" {
		return s.ListAssets(ctx, projectID, limit)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+`
		 FROM asset_search
		 JOIN assets a ON a.id = asset_search.asset_id
		 LEFT JOIN asset_ai ai ON ai.asset_id = a.id
		 WHERE asset_search MATCH ? AND asset_search.project_id = ? AND a.deleted_at IS NULL
		 ORDER BY bm25(asset_search) ASC, a.created_at DESC
		 LIMIT ?`, match, projectID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search assets: %w", err)
	}
	return collectAssets(rows)
}

// FTSQuery turns free text into an FTS5 expression: every whitespace token
// is quoted and prefix-matched, tokens are ANDed.
func FTSQuery(raw string) string {
	fields := strings.Fields(raw)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		parts = append(parts, `"`+f+`"*`)
	}
	return strings.Join(parts, " AND ")
}
