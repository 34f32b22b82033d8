package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// assetColumns expects assets aliased a and asset_ai aliased ai.
const assetColumns = `a.id, a.project_id, a.original_name, a.mime_type, a.byte_size, a.sha256,
	a.storage_path, a.storage_url, a.thumb_path, a.thumb_url, a.width, a.height,
	a.created_at, a.deleted_at, a.trashed_storage_path, a.trashed_thumb_path,
	ai.status, ai.caption, ai.tags_json, ai.model_version, ai.updated_at`

func scanAsset(row rowScanner) (Asset, error) {
	var a Asset
	err := row.Scan(
		&a.ID, &a.ProjectID, &a.OriginalName, &a.MimeType, &a.ByteSize, &a.SHA256,
		&a.StoragePath, &a.StorageURL, &a.ThumbPath, &a.ThumbURL, &a.Width, &a.Height,
		&a.CreatedAt, &a.DeletedAt, &a.TrashedStoragePath, &a.TrashedThumbPath,
		&a.AIStatus, &a.AICaption, &a.AITagsJSON, &a.AIModelVersion, &a.AIUpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, ErrNotFound
	}
	return a, err
}

func collectAssets(rows *sql.Rows) ([]Asset, error) {
	defer rows.Close()
	items := []Asset{}
	for rows.Next() {
		item, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return items, nil
}

const canvasColumns = `id, project_id, type, asset_id, x, y, scale_x, scale_y, rotation,
	width, height, z_index, props_json, created_at, updated_at`

func collectCanvasObjects(rows *sql.Rows) ([]CanvasObject, error) {
	defer rows.Close()
	items := []CanvasObject{}
	for rows.Next() {
		var o CanvasObject
		if err := rows.Scan(&o.ID, &o.ProjectID, &o.Type, &o.AssetID, &o.X, &o.Y, &o.ScaleX, &o.ScaleY,
			&o.Rotation, &o.Width, &o.Height, &o.ZIndex, &o.PropsJSON, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan canvas object: %w", err)
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canvas objects: %w", err)
	}
	return items, nil
}

func scanSync(row rowScanner) (ProjectSync, error) {
	var s ProjectSync
	err := row.Scan(&s.ProjectID, &s.CanvasRev, &s.ViewRev, &s.CanvasUpdatedAt, &s.ViewUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectSync{}, ErrNotFound
	}
	return s, err
}

func collectSegments(rows *sql.Rows) ([]Segment, error) {
	defer rows.Close()
	items := []Segment{}
	for rows.Next() {
		var s Segment
		if err := rows.Scan(&s.AssetID, &s.Tag, &s.SVG, &s.BBoxJSON, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}
	return items, nil
}

// searchFields is the denormalized text written to an asset's search row.
type searchFields struct {
	AssetID      string
	ProjectID    string
	OriginalName string
	Caption      string
	Tags         string
	ManualNotes  string
	ManualTags   string
}

func buildSearchFields(assetID, projectID, name string, caption, aiTags, notes, manualTags sql.NullString) searchFields {
	return searchFields{
		AssetID:      assetID,
		ProjectID:    projectID,
		OriginalName: name,
		Caption:      caption.String,
		Tags:         joinTags(aiTags.String),
		ManualNotes:  notes.String,
		ManualTags:   joinTags(manualTags.String),
	}
}

// joinTags flattens a JSON string array into space separated text. Anything
// that is not an array is indexed verbatim.
func joinTags(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return raw
	}
	return strings.Join(tags, " ")
}

func encodeTags(tags []string) (*string, error) {
	if tags == nil {
		return nil, nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	value := string(raw)
	return &value, nil
}

func decodeTags(raw sql.NullString) []string {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw.String), &tags); err != nil {
		return []string{}
	}
	return tags
}

// encodeVector packs float32 values little-endian, four bytes each.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf)%4 != 0 {
		return nil
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

// cosine returns the cosine similarity, or 0 when either vector is empty,
// zero or the dimensions differ.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
