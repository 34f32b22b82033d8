package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const localAssetFrom = `FROM assets a LEFT JOIN asset_ai ai ON ai.asset_id = a.id`

func (s *LocalStore) GetAsset(ctx context.Context, id string) (Asset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` `+localAssetFrom+` WHERE a.id = ? AND a.deleted_at IS NULL`, id)
	return scanAsset(row)
}

func (s *LocalStore) GetAssetAny(ctx context.Context, id string) (Asset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` `+localAssetFrom+` WHERE a.id = ?`, id)
	return scanAsset(row)
}

func (s *LocalStore) GetAssetsByIDs(ctx context.Context, projectID string, ids []string) ([]Asset, error) {
	if len(ids) == 0 {
		return []Asset{}, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, projectID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` `+localAssetFrom+`
		 WHERE a.project_id = ? AND a.deleted_at IS NULL AND a.id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get assets by ids: %w", err)
	}
	found, err := collectAssets(rows)
	if err != nil {
		return nil, err
	}
	return orderByIDs(found, ids), nil
}

func (s *LocalStore) ListAssets(ctx context.Context, projectID string, limit int) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` `+localAssetFrom+`
		 WHERE a.project_id = ? AND a.deleted_at IS NULL
		 ORDER BY a.created_at DESC LIMIT ?`, projectID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return collectAssets(rows)
}

// ListAllAssets returns every non-deleted asset of a project without a limit.
func (s *LocalStore) ListAllAssets(ctx context.Context, projectID string) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` `+localAssetFrom+`
		 WHERE a.project_id = ? AND a.deleted_at IS NULL
		 ORDER BY a.created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list all assets: %w", err)
	}
	return collectAssets(rows)
}

// ListTrashedAssets returns soft-deleted assets across all projects.
func (s *LocalStore) ListTrashedAssets(ctx context.Context) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` `+localAssetFrom+`
		 WHERE a.deleted_at IS NOT NULL ORDER BY a.deleted_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list trashed assets: %w", err)
	}
	return collectAssets(rows)
}

func (s *LocalStore) FindAssetBySHA(ctx context.Context, projectID, sha256 string) (Asset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` `+localAssetFrom+`
		 WHERE a.project_id = ? AND a.sha256 = ? AND a.deleted_at IS NULL`, projectID, sha256)
	return scanAsset(row)
}

func (s *LocalStore) InsertAsset(ctx context.Context, in NewAsset) (Asset, error) {
	ts := now()
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO assets (id, project_id, original_name, mime_type, byte_size, sha256,
				storage_path, storage_url, thumb_path, thumb_url, width, height, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			in.ID, in.ProjectID, in.OriginalName, in.MimeType, in.ByteSize, in.SHA256,
			in.StoragePath, in.StorageURL, in.ThumbPath, in.ThumbURL, in.Width, in.Height, ts,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO asset_ai (asset_id, status, updated_at) VALUES (?, ?, ?)`,
			in.ID, AIStatusPending, ts,
		); err != nil {
			return err
		}
		return writeLocalSearchRow(ctx, tx, in.ID)
	})
	if isUniqueViolation(err) {
		return Asset{}, ErrConflict
	}
	if err != nil {
		return Asset{}, fmt.Errorf("insert asset: %w", err)
	}
	return s.GetAssetAny(ctx, in.ID)
}

func (s *LocalStore) CountCanvasRefs(ctx context.Context, assetID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM canvas_objects WHERE asset_id = ?`, assetID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count canvas refs: %w", err)
	}
	return n, nil
}

func (s *LocalStore) TrashAsset(ctx context.Context, id string, deletedAt time.Time, trashedStoragePath, trashedThumbPath *string) (bool, error) {
	changed := false
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		var refs int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM canvas_objects WHERE asset_id = ?`, id,
		).Scan(&refs); err != nil {
			return err
		}
		if refs > 0 {
			return &AssetReferencedError{Refs: refs}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE assets SET deleted_at = ?, trashed_storage_path = ?, trashed_thumb_path = ?
			 WHERE id = ? AND deleted_at IS NULL`,
			timestamp(deletedAt), trashedStoragePath, trashedThumbPath, id)
		if err != nil {
			return err
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		changed = true
		_, err = tx.ExecContext(ctx, `DELETE FROM asset_search WHERE asset_id = ?`, id)
		return err
	})
	var referenced *AssetReferencedError
	if errors.As(err, &referenced) {
		return false, referenced
	}
	if err != nil {
		return false, fmt.Errorf("trash asset: %w", err)
	}
	return changed, nil
}

func (s *LocalStore) SetTrashedPaths(ctx context.Context, id string, trashedStoragePath, trashedThumbPath *string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE assets SET trashed_storage_path = ?, trashed_thumb_path = ? WHERE id = ?`,
		trashedStoragePath, trashedThumbPath, id,
	); err != nil {
		return fmt.Errorf("set trashed paths: %w", err)
	}
	return nil
}

func (s *LocalStore) RestoreAsset(ctx context.Context, id string) (bool, error) {
	changed := false
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE assets SET deleted_at = NULL, trashed_storage_path = NULL, trashed_thumb_path = NULL
			 WHERE id = ? AND deleted_at IS NOT NULL`, id)
		if err != nil {
			return err
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		changed = true
		return writeLocalSearchRow(ctx, tx, id)
	})
	if isUniqueViolation(err) {
		return false, ErrConflict
	}
	if err != nil {
		return false, fmt.Errorf("restore asset: %w", err)
	}
	return changed, nil
}

func (s *LocalStore) DeleteAsset(ctx context.Context, id string) error {
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM asset_search WHERE asset_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
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
		return fmt.Errorf("delete asset: %w", err)
	}
	return nil
}

func (s *LocalStore) UpsertAssetAI(ctx context.Context, result AIResult) error {
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO asset_ai (asset_id, status, caption, tags_json, model_version, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(asset_id) DO UPDATE SET
				status = excluded.status,
				caption = excluded.caption,
				tags_json = excluded.tags_json,
				model_version = excluded.model_version,
				updated_at = excluded.updated_at`,
			result.AssetID, result.Status, result.Caption, result.TagsJSON, result.ModelVersion, now(),
		); err != nil {
			return err
		}
		return writeLocalSearchRow(ctx, tx, result.AssetID)
	})
	if err != nil {
		return fmt.Errorf("upsert asset ai: %w", err)
	}
	return nil
}

func (s *LocalStore) RetryAssetAI(ctx context.Context, projectID, assetID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE asset_ai SET status = ?, updated_at = ?
		 WHERE asset_id = ? AND asset_id IN (SELECT id FROM assets WHERE project_id = ? AND deleted_at IS NULL)`,
		AIStatusPending, now(), assetID, projectID)
	if err != nil {
		return 0, fmt.Errorf("retry asset ai: %w", err)
	}
	return rowsAffected(res)
}

func (s *LocalStore) RetryFailedAI(ctx context.Context, projectID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE asset_ai SET status = ?, updated_at = ?
		 WHERE status = ? AND asset_id IN (SELECT id FROM assets WHERE project_id = ? AND deleted_at IS NULL)`,
		AIStatusPending, now(), AIStatusFailed, projectID)
	if err != nil {
		return 0, fmt.Errorf("retry failed ai: %w", err)
	}
	return rowsAffected(res)
}

func (s *LocalStore) GetManualMetadata(ctx context.Context, assetID string) (ManualMetadata, error) {
	var (
		m    ManualMetadata
		tags sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT asset_id, notes, tags, updated_at FROM asset_manual_metadata WHERE asset_id = ?`, assetID,
	).Scan(&m.AssetID, &m.Notes, &tags, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ManualMetadata{}, ErrNotFound
	}
	if err != nil {
		return ManualMetadata{}, fmt.Errorf("get manual metadata: %w", err)
	}
	m.Tags = decodeTags(tags)
	return m, nil
}

func (s *LocalStore) UpsertManualMetadata(ctx context.Context, assetID string, notes *string, tags []string) (ManualMetadata, error) {
	encoded, err := encodeTags(tags)
	if err != nil {
		return ManualMetadata{}, err
	}
	err = WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO asset_manual_metadata (asset_id, notes, tags, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(asset_id) DO UPDATE SET
				notes = excluded.notes, tags = excluded.tags, updated_at = excluded.updated_at`,
			assetID, notes, encoded, now(),
		); err != nil {
			return err
		}
		return writeLocalSearchRow(ctx, tx, assetID)
	})
	if err != nil {
		return ManualMetadata{}, fmt.Errorf("upsert manual metadata: %w", err)
	}
	return s.GetManualMetadata(ctx, assetID)
}

func (s *LocalStore) GetSegment(ctx context.Context, assetID, tag string) (Segment, error) {
	var seg Segment
	err := s.db.QueryRowContext(ctx,
		`SELECT asset_id, tag, svg, bbox_json, updated_at FROM asset_segments WHERE asset_id = ? AND tag = ?`,
		assetID, tag,
	).Scan(&seg.AssetID, &seg.Tag, &seg.SVG, &seg.BBoxJSON, &seg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Segment{}, ErrNotFound
	}
	if err != nil {
		return Segment{}, fmt.Errorf("get segment: %w", err)
	}
	return seg, nil
}

func (s *LocalStore) ListSegments(ctx context.Context, assetID string) ([]Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT asset_id, tag, svg, bbox_json, updated_at FROM asset_segments WHERE asset_id = ? ORDER BY tag`,
		assetID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	return collectSegments(rows)
}

func (s *LocalStore) UpsertSegment(ctx context.Context, seg Segment) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO asset_segments (asset_id, tag, svg, bbox_json, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(asset_id, tag) DO UPDATE SET
			svg = excluded.svg, bbox_json = excluded.bbox_json, updated_at = excluded.updated_at`,
		seg.AssetID, seg.Tag, seg.SVG, seg.BBoxJSON, now(),
	); err != nil {
		return fmt.Errorf("upsert segment: %w", err)
	}
	return nil
}

// writeLocalSearchRow replaces the FTS row of an asset from its current
// name, AI output and manual metadata. Trashed assets get no row.
func writeLocalSearchRow(ctx context.Context, tx DBTX, assetID string) error {
	var (
		projectID, name                    string
		caption, aiTags, notes, manualTags sql.NullString
		deletedAt                          sql.NullString
	)
	err := tx.QueryRowContext(ctx,
		`SELECT a.project_id, a.original_name, a.deleted_at, ai.caption, ai.tags_json, m.notes, m.tags
		 FROM assets a
		 LEFT JOIN asset_ai ai ON ai.asset_id = a.id
		 LEFT JOIN asset_manual_metadata m ON m.asset_id = a.id
		 WHERE a.id = ?`, assetID,
	).Scan(&projectID, &name, &deletedAt, &caption, &aiTags, &notes, &manualTags)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM asset_search WHERE asset_id = ?`, assetID); err != nil {
		return err
	}
	if deletedAt.Valid {
		return nil
	}
	f := buildSearchFields(assetID, projectID, name, caption, aiTags, notes, manualTags)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO asset_search (asset_id, project_id, original_name, caption, tags, manual_notes, manual_tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.AssetID, f.ProjectID, f.OriginalName, f.Caption, f.Tags, f.ManualNotes, f.ManualTags)
	return err
}

// RebuildSearchIndex drops every FTS row and re-creates one per live asset.
func (s *LocalStore) RebuildSearchIndex(ctx context.Context) (int, error) {
	count := 0
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM asset_search`); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, `SELECT id FROM assets WHERE deleted_at IS NULL`)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range ids {
			if err := writeLocalSearchRow(ctx, tx, id); err != nil {
				return err
			}
		}
		count = len(ids)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rebuild search index: %w", err)
	}
	return count, nil
}

func orderByIDs(items []Asset, ids []string) []Asset {
	byID := make(map[string]Asset, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	out := make([]Asset, 0, len(items))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			out = append(out, item)
			delete(byID, id)
		}
	}
	return out
}
