package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
)

const remoteAssetFrom = `FROM assets a LEFT JOIN asset_ai ai ON ai.asset_id = a.id`

func (s *RemoteStore) GetAsset(ctx context.Context, id string) (Asset, error) {
	if err := s.bound(); err != nil {
		return Asset{}, err
	}
	return scanAsset(s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` `+remoteAssetFrom+` WHERE a.id = $1 AND a.user_id = $2 AND a.deleted_at IS NULL`,
		id, s.userID))
}

func (s *RemoteStore) GetAssetAny(ctx context.Context, id string) (Asset, error) {
	if err := s.bound(); err != nil {
		return Asset{}, err
	}
	return scanAsset(s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` `+remoteAssetFrom+` WHERE a.id = $1 AND a.user_id = $2`, id, s.userID))
}

func (s *RemoteStore) GetAssetsByIDs(ctx context.Context, projectID string, ids []string) ([]Asset, error) {
	if err := s.bound(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Asset{}, nil
	}
	args := []any{projectID, s.userID}
	marks := make([]string, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
		marks = append(marks, fmt.Sprintf("$%d", len(args)))
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetColumns+` `+remoteAssetFrom+`
		WHERE a.project_id = $1 AND a.user_id = $2 AND a.deleted_at IS NULL
			AND a.id IN (`+strings.Join(marks, ", ")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get assets by ids: %w", err)
	}
	found, err := collectAssets(rows)
	if err != nil {
		return nil, err
	}
	return orderByIDs(found, ids), nil
}

func (s *RemoteStore) ListAssets(ctx context.Context, projectID string, limit int) ([]Asset, error) {
	if err := s.bound(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetColumns+` `+remoteAssetFrom+`
		WHERE a.project_id = $1 AND a.user_id = $2 AND a.deleted_at IS NULL
		ORDER BY a.created_at DESC
		LIMIT $3`, projectID, s.userID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return collectAssets(rows)
}

// ListAllAssets returns every non-deleted asset of a project without a limit.
func (s *RemoteStore) ListAllAssets(ctx context.Context, projectID string) ([]Asset, error) {
	if err := s.bound(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetColumns+` `+remoteAssetFrom+`
		WHERE a.project_id = $1 AND a.user_id = $2 AND a.deleted_at IS NULL
		ORDER BY a.created_at ASC`, projectID, s.userID)
	if err != nil {
		return nil, fmt.Errorf("list all assets: %w", err)
	}
	return collectAssets(rows)
}

// AssetOwners lists the users that own at least one live asset. It does not
// need a bound user.
func (s *RemoteStore) AssetOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM assets WHERE deleted_at IS NULL ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list asset owners: %w", err)
	}
	defer rows.Close()
	owners := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

func (s *RemoteStore) FindAssetBySHA(ctx context.Context, projectID, sha256 string) (Asset, error) {
	if err := s.bound(); err != nil {
		return Asset{}, err
	}
	return scanAsset(s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` `+remoteAssetFrom+`
		WHERE a.project_id = $1 AND a.user_id = $2 AND a.sha256 = $3 AND a.deleted_at IS NULL`,
		projectID, s.userID, sha256))
}

func (s *RemoteStore) InsertAsset(ctx context.Context, in NewAsset) (Asset, error) {
	if err := s.bound(); err != nil {
		return Asset{}, err
	}
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO assets (id, user_id, project_id, original_name, mime_type, byte_size, sha256,
				storage_path, storage_url, thumb_path, thumb_url, width, height)
			SELECT $1::text, $2::text, p.id, $4::text, $5::text, $6::bigint, $7::text, $8::text,
				$9::text, $10::text, $11::text, $12::integer, $13::integer
			FROM projects p WHERE p.id = $3 AND p.user_id = $2
		`, in.ID, s.userID, in.ProjectID, in.OriginalName, in.MimeType, in.ByteSize, in.SHA256,
			in.StoragePath, in.StorageURL, in.ThumbPath, in.ThumbURL, in.Width, in.Height)
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
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO asset_ai (asset_id, status) VALUES ($1, $2)`, in.ID, AIStatusPending); err != nil {
			return err
		}
		return writeRemoteSearchRow(ctx, tx, in.ID)
	})
	if errors.Is(err, ErrNotFound) {
		return Asset{}, err
	}
	if isUniqueViolation(err) {
		return Asset{}, ErrConflict
	}
	if err != nil {
		return Asset{}, fmt.Errorf("insert asset: %w", err)
	}
	return s.GetAssetAny(ctx, in.ID)
}

func (s *RemoteStore) CountCanvasRefs(ctx context.Context, assetID string) (int, error) {
	if err := s.bound(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM canvas_objects c
		JOIN projects p ON p.id = c.project_id
		WHERE c.asset_id = $1 AND p.user_id = $2
	`, assetID, s.userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count canvas refs: %w", err)
	}
	return n, nil
}

func (s *RemoteStore) TrashAsset(ctx context.Context, id string, deletedAt time.Time, trashedStoragePath, trashedThumbPath *string) (bool, error) {
	if err := s.bound(); err != nil {
		return false, err
	}
	changed := false
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		// The row lock waits out canvas saves holding FOR SHARE on this
		// asset, so the count below sees their committed references.
		var locked string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM assets WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL FOR UPDATE
		`, id, s.userID).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		var refs int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM canvas_objects c
			JOIN projects p ON p.id = c.project_id
			WHERE c.asset_id = $1 AND p.user_id = $2
		`, id, s.userID).Scan(&refs); err != nil {
			return err
		}
		if refs > 0 {
			return &AssetReferencedError{Refs: refs}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE assets SET deleted_at = $1, trashed_storage_path = $2, trashed_thumb_path = $3
			WHERE id = $4 AND user_id = $5 AND deleted_at IS NULL
		`, deletedAt.UTC(), trashedStoragePath, trashedThumbPath, id, s.userID)
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
		_, err = tx.ExecContext(ctx, `DELETE FROM asset_search WHERE asset_id = $1`, id)
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

func (s *RemoteStore) SetTrashedPaths(ctx context.Context, id string, trashedStoragePath, trashedThumbPath *string) error {
	if err := s.bound(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE assets SET trashed_storage_path = $1, trashed_thumb_path = $2 WHERE id = $3 AND user_id = $4`,
		trashedStoragePath, trashedThumbPath, id, s.userID,
	); err != nil {
		return fmt.Errorf("set trashed paths: %w", err)
	}
	return nil
}

func (s *RemoteStore) RestoreAsset(ctx context.Context, id string) (bool, error) {
	if err := s.bound(); err != nil {
		return false, err
	}
	changed := false
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE assets SET deleted_at = NULL, trashed_storage_path = NULL, trashed_thumb_path = NULL
			WHERE id = $1 AND user_id = $2 AND deleted_at IS NOT NULL
		`, id, s.userID)
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
		return writeRemoteSearchRow(ctx, tx, id)
	})
	if isUniqueViolation(err) {
		return false, ErrConflict
	}
	if err != nil {
		return false, fmt.Errorf("restore asset: %w", err)
	}
	return changed, nil
}

func (s *RemoteStore) DeleteAsset(ctx context.Context, id string) error {
	if err := s.bound(); err != nil {
		return err
	}
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM asset_search WHERE asset_id = $1 AND user_id = $2`, id, s.userID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE id = $1 AND user_id = $2`, id, s.userID)
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

// ownsAsset reports ErrNotFound unless the asset belongs to the bound user.
func (s *RemoteStore) ownsAsset(ctx context.Context, q DBTX, assetID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM assets WHERE id = $1 AND user_id = $2`, assetID, s.userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *RemoteStore) UpsertAssetAI(ctx context.Context, result AIResult) error {
	if err := s.bound(); err != nil {
		return err
	}
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if err := s.ownsAsset(ctx, tx, result.AssetID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO asset_ai (asset_id, status, caption, tags_json, model_version, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (asset_id) DO UPDATE SET
				status = EXCLUDED.status,
				caption = EXCLUDED.caption,
				tags_json = EXCLUDED.tags_json,
				model_version = EXCLUDED.model_version,
				updated_at = NOW()
		`, result.AssetID, result.Status, result.Caption, result.TagsJSON, result.ModelVersion); err != nil {
			return err
		}
		return writeRemoteSearchRow(ctx, tx, result.AssetID)
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("upsert asset ai: %w", err)
	}
	return nil
}

func (s *RemoteStore) RetryAssetAI(ctx context.Context, projectID, assetID string) (int64, error) {
	if err := s.bound(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE asset_ai ai SET status = $1, updated_at = NOW()
		FROM assets a
		WHERE ai.asset_id = a.id AND a.id = $2 AND a.project_id = $3 AND a.user_id = $4 AND a.deleted_at IS NULL
	`, AIStatusPending, assetID, projectID, s.userID)
	if err != nil {
		return 0, fmt.Errorf("retry asset ai: %w", err)
	}
	return rowsAffected(res)
}

func (s *RemoteStore) RetryFailedAI(ctx context.Context, projectID string) (int64, error) {
	if err := s.bound(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE asset_ai ai SET status = $1, updated_at = NOW()
		FROM assets a
		WHERE ai.asset_id = a.id AND ai.status = $2 AND a.project_id = $3 AND a.user_id = $4 AND a.deleted_at IS NULL
	`, AIStatusPending, AIStatusFailed, projectID, s.userID)
	if err != nil {
		return 0, fmt.Errorf("retry failed ai: %w", err)
	}
	return rowsAffected(res)
}

func (s *RemoteStore) GetManualMetadata(ctx context.Context, assetID string) (ManualMetadata, error) {
	if err := s.bound(); err != nil {
		return ManualMetadata{}, err
	}
	var (
		m    ManualMetadata
		tags sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT m.asset_id, m.notes, m.tags, m.updated_at
		FROM asset_manual_metadata m
		JOIN assets a ON a.id = m.asset_id
		WHERE m.asset_id = $1 AND a.user_id = $2
	`, assetID, s.userID).Scan(&m.AssetID, &m.Notes, &tags, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ManualMetadata{}, ErrNotFound
	}
	if err != nil {
		return ManualMetadata{}, fmt.Errorf("get manual metadata: %w", err)
	}
	m.Tags = decodeTags(tags)
	return m, nil
}

func (s *RemoteStore) UpsertManualMetadata(ctx context.Context, assetID string, notes *string, tags []string) (ManualMetadata, error) {
	if err := s.bound(); err != nil {
		return ManualMetadata{}, err
	}
	encoded, err := encodeTags(tags)
	if err != nil {
		return ManualMetadata{}, err
	}
	err = WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if err := s.ownsAsset(ctx, tx, assetID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO asset_manual_metadata (asset_id, notes, tags, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (asset_id) DO UPDATE SET notes = EXCLUDED.notes, tags = EXCLUDED.tags, updated_at = NOW()
		`, assetID, notes, encoded); err != nil {
			return err
		}
		return writeRemoteSearchRow(ctx, tx, assetID)
	})
	if errors.Is(err, ErrNotFound) {
		return ManualMetadata{}, err
	}
	if err != nil {
		return ManualMetadata{}, fmt.Errorf("upsert manual metadata: %w", err)
	}
	return s.GetManualMetadata(ctx, assetID)
}

func (s *RemoteStore) GetSegment(ctx context.Context, assetID, tag string) (Segment, error) {
	if err := s.bound(); err != nil {
		return Segment{}, err
	}
	var seg Segment
	err := s.db.QueryRowContext(ctx, `
		SELECT g.asset_id, g.tag, g.svg, g.bbox_json, g.updated_at
		FROM asset_segments g
		JOIN assets a ON a.id = g.asset_id
		WHERE g.asset_id = $1 AND g.tag = $2 AND a.user_id = $3
	`, assetID, tag, s.userID).Scan(&seg.AssetID, &seg.Tag, &seg.SVG, &seg.BBoxJSON, &seg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Segment{}, ErrNotFound
	}
	if err != nil {
		return Segment{}, fmt.Errorf("get segment: %w", err)
	}
	return seg, nil
}

func (s *RemoteStore) ListSegments(ctx context.Context, assetID string) ([]Segment, error) {
	if err := s.bound(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.asset_id, g.tag, g.svg, g.bbox_json, g.updated_at
		FROM asset_segments g
		JOIN assets a ON a.id = g.asset_id
		WHERE g.asset_id = $1 AND a.user_id = $2
		ORDER BY g.tag
	`, assetID, s.userID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	return collectSegments(rows)
}

func (s *RemoteStore) UpsertSegment(ctx context.Context, seg Segment) error {
	if err := s.bound(); err != nil {
		return err
	}
	if err := s.ownsAsset(ctx, s.db, seg.AssetID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO asset_segments (asset_id, tag, svg, bbox_json, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (asset_id, tag) DO UPDATE SET svg = EXCLUDED.svg, bbox_json = EXCLUDED.bbox_json, updated_at = NOW()
	`, seg.AssetID, seg.Tag, seg.SVG, seg.BBoxJSON); err != nil {
		return fmt.Errorf("upsert segment: %w", err)
	}
	return nil
}

func (s *RemoteStore) UpsertEmbedding(ctx context.Context, e Embedding) error {
	if err := s.bound(); err != nil {
		return err
	}
	if err := s.ownsAsset(ctx, s.db, e.AssetID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO asset_embeddings (asset_id, model, dim, embedding, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (asset_id) DO UPDATE SET
			model = EXCLUDED.model, dim = EXCLUDED.dim, embedding = EXCLUDED.embedding, updated_at = NOW()
	`, e.AssetID, e.Model, len(e.Vector), pgvector.NewVector(e.Vector)); err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// VectorSearch orders the project's embeddings by pgvector cosine distance.
func (s *RemoteStore) VectorSearch(ctx context.Context, projectID string, query []float32, limit int) ([]Asset, error) {
	if err := s.bound(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.asset_id
		FROM asset_embeddings e
		JOIN assets a ON a.id = e.asset_id
		WHERE a.project_id = $1 AND a.user_id = $2 AND a.deleted_at IS NULL AND e.dim = $3
		ORDER BY e.embedding <=> $4
		LIMIT $5
	`, projectID, s.userID, len(query), pgvector.NewVector(query), ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan vector hit: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector hits: %w", err)
	}
	return s.GetAssetsByIDs(ctx, projectID, ids)
}

// SearchAssets ranks by Postgres full-text search. If the text search query
// itself fails, a per-field ILIKE scan is used instead.
func (s *RemoteStore) SearchAssets(ctx context.Context, projectID, query string, limit int) ([]Asset, error) {
	if err := s.bound(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListAssets(ctx, projectID, limit)
	}
	limit = ClampLimit(limit)
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetColumns+`
		FROM asset_search s
		JOIN assets a ON a.id = s.asset_id
		LEFT JOIN asset_ai ai ON ai.asset_id = a.id
		WHERE s.project_id = $1 AND s.user_id = $2 AND a.deleted_at IS NULL
			AND s.document @@ websearch_to_tsquery('simple', $3)
		ORDER BY ts_rank(s.document, websearch_to_tsquery('simple', $3)) DESC, a.created_at DESC
		LIMIT $4`, projectID, s.userID, query, limit)
	if err != nil {
		return s.searchILike(ctx, projectID, query, limit)
	}
	return collectAssets(rows)
}

// searchILike matches name, then caption, then notes. Results keep that
// field priority and are deduplicated; inside a field newest first.
func (s *RemoteStore) searchILike(ctx context.Context, projectID, query string, limit int) ([]Asset, error) {
	pattern := "%" + escapeLike(query) + "%"
	fields := []string{
		`a.original_name ILIKE $3 ESCAPE '\'`,
		`ai.caption ILIKE $3 ESCAPE '\'`,
		`EXISTS (SELECT 1 FROM asset_manual_metadata m WHERE m.asset_id = a.id AND m.notes ILIKE $3 ESCAPE '\')`,
	}
	seen := map[string]struct{}{}
	out := []Asset{}
	for _, cond := range fields {
		rows, err := s.db.QueryContext(ctx, `SELECT `+assetColumns+` `+remoteAssetFrom+`
			WHERE a.project_id = $1 AND a.user_id = $2 AND a.deleted_at IS NULL AND `+cond+`
			ORDER BY a.created_at DESC
			LIMIT $4`, projectID, s.userID, pattern, limit)
		if err != nil {
			return nil, fmt.Errorf("search assets fallback: %w", err)
		}
		items, err := collectAssets(rows)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if _, ok := seen[item.ID]; ok {
				continue
			}
			seen[item.ID] = struct{}{}
			out = append(out, item)
			if len(out) == limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

// writeRemoteSearchRow upserts the search row of a live asset or removes it
// for a trashed one.
func writeRemoteSearchRow(ctx context.Context, tx DBTX, assetID string) error {
	var (
		projectID, userID, name            string
		caption, aiTags, notes, manualTags sql.NullString
		deleted                            bool
	)
	err := tx.QueryRowContext(ctx, `
		SELECT a.project_id, a.user_id, a.original_name, a.deleted_at IS NOT NULL, ai.caption, ai.tags_json, m.notes, m.tags
		FROM assets a
		LEFT JOIN asset_ai ai ON ai.asset_id = a.id
		LEFT JOIN asset_manual_metadata m ON m.asset_id = a.id
		WHERE a.id = $1
	`, assetID).Scan(&projectID, &userID, &name, &deleted, &caption, &aiTags, &notes, &manualTags)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if deleted {
		_, err := tx.ExecContext(ctx, `DELETE FROM asset_search WHERE asset_id = $1`, assetID)
		return err
	}
	f := buildSearchFields(assetID, projectID, name, caption, aiTags, notes, manualTags)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO asset_search (asset_id, project_id, user_id, original_name, caption, tags, manual_notes, manual_tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (asset_id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			user_id = EXCLUDED.user_id,
			original_name = EXCLUDED.original_name,
			caption = EXCLUDED.caption,
			tags = EXCLUDED.tags,
			manual_notes = EXCLUDED.manual_notes,
			manual_tags = EXCLUDED.manual_tags
	`, f.AssetID, f.ProjectID, userID, f.OriginalName, f.Caption, f.Tags, f.ManualNotes, f.ManualTags)
	return err
}
