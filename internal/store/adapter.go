package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrRevisionConflict = errors.New("revision conflict")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrAssetReferenced  = errors.New("asset referenced by canvas")
)

// RevisionConflictError carries the stored revision that rejected a write.
type RevisionConflictError struct {
	Rev       int64
	UpdatedAt string
}

func (e *RevisionConflictError) Error() string {
	return fmt.Sprintf("revision conflict: current revision is %d", e.Rev)
}

func (e *RevisionConflictError) Unwrap() error {
	return ErrRevisionConflict
}

// AssetReferencedError rejects a trash while canvas objects still point at
// the asset.
type AssetReferencedError struct {
	Refs int
}

func (e *AssetReferencedError) Error() string {
	return fmt.Sprintf("asset referenced by %d canvas object(s)", e.Refs)
}

func (e *AssetReferencedError) Unwrap() error {
	return ErrAssetReferenced
}

// NewAsset is the insert payload for an uploaded file.
type NewAsset struct {
	ID           string
	ProjectID    string
	OriginalName string
	MimeType     string
	ByteSize     int64
	SHA256       string
	StoragePath  string
	StorageURL   string
	ThumbPath    *string
	ThumbURL     *string
	Width        *int
	Height       *int
}

// Adapter is the persistence contract shared by the local and remote stores.
type Adapter interface {
	GetProject(ctx context.Context, id string) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	CreateProject(ctx context.Context, name string) (Project, error)
	RenameProject(ctx context.Context, id, name string) (Project, error)
	DeleteProject(ctx context.Context, id string) error

	GetAsset(ctx context.Context, id string) (Asset, error)
	GetAssetAny(ctx context.Context, id string) (Asset, error)
	GetAssetsByIDs(ctx context.Context, projectID string, ids []string) ([]Asset, error)
	ListAssets(ctx context.Context, projectID string, limit int) ([]Asset, error)
	InsertAsset(ctx context.Context, asset NewAsset) (Asset, error)
	FindAssetBySHA(ctx context.Context, projectID, sha256 string) (Asset, error)
	CountCanvasRefs(ctx context.Context, assetID string) (int, error)
	TrashAsset(ctx context.Context, id string, deletedAt time.Time, trashedStoragePath, trashedThumbPath *string) (bool, error)
	SetTrashedPaths(ctx context.Context, id string, trashedStoragePath, trashedThumbPath *string) error
	RestoreAsset(ctx context.Context, id string) (bool, error)
	DeleteAsset(ctx context.Context, id string) error

	UpsertAssetAI(ctx context.Context, result AIResult) error
	RetryAssetAI(ctx context.Context, projectID, assetID string) (int64, error)
	RetryFailedAI(ctx context.Context, projectID string) (int64, error)

	GetManualMetadata(ctx context.Context, assetID string) (ManualMetadata, error)
	UpsertManualMetadata(ctx context.Context, assetID string, notes *string, tags []string) (ManualMetadata, error)

	GetSegment(ctx context.Context, assetID, tag string) (Segment, error)
	ListSegments(ctx context.Context, assetID string) ([]Segment, error)
	UpsertSegment(ctx context.Context, segment Segment) error

	UpsertEmbedding(ctx context.Context, embedding Embedding) error
	VectorSearch(ctx context.Context, projectID string, query []float32, limit int) ([]Asset, error)
	SearchAssets(ctx context.Context, projectID, query string, limit int) ([]Asset, error)

	GetCanvasObjects(ctx context.Context, projectID string) ([]CanvasObject, error)
	ReplaceCanvasObjects(ctx context.Context, projectID string, objects []CanvasObject, baseRev *int64) (ProjectSync, error)
	GetProjectView(ctx context.Context, projectID string) (ProjectView, error)
	SaveProjectView(ctx context.Context, view ProjectView, baseRev *int64) (ProjectSync, error)
	GetProjectSync(ctx context.Context, projectID string) (ProjectSync, error)

	GetAppState(ctx context.Context, key string) (string, error)
	SetAppState(ctx context.Context, key, value string) error

	Ping(ctx context.Context) error
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ClampLimit bounds a listing limit to [1, MaxListLimit]. Callers substitute
// DefaultListLimit when no limit was given at all.
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func now() string {
	return timestamp(time.Now())
}

var (
	_ Adapter = (*LocalStore)(nil)
	_ Adapter = (*RemoteStore)(nil)
)
