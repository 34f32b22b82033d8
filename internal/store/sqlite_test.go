package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasvault/api/internal/util"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db, DialectSQLite))
	return NewLocalStore(db)
}

func insertTestAsset(t *testing.T, s *LocalStore, projectID, name, sha string) Asset {
	t.Helper()
	id := util.NewID()
	asset, err := s.InsertAsset(context.Background(), NewAsset{
		ID:           id,
		ProjectID:    projectID,
		OriginalName: name,
		MimeType:     "image/png",
		ByteSize:     42,
		SHA256:       sha,
		StoragePath:  "/data/projects/" + projectID + "/assets/" + id + ".png",
		StorageURL:   "/files/projects/" + projectID + "/assets/" + id + ".png",
	})
	require.NoError(t, err)
	return asset
}

func TestLocalProjectLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStore(t)

	p, err := s.CreateProject(ctx, "Moodboard")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	state, err := s.GetProjectSync(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.CanvasRev)
	assert.Equal(t, int64(0), state.ViewRev)

	renamed, err := s.RenameProject(ctx, p.ID, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Name)

	items, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, s.DeleteProject(ctx, p.ID))
	_, err = s.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteProject(ctx, p.ID), ErrNotFound)
	_, err = s.RenameProject(ctx, p.ID, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalInsertAssetStartsPendingAndIsSearchable(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStore(t)
	p, err := s.CreateProject(ctx, "P")
	require.NoError(t, err)

	asset := insertTestAsset(t, s, p.ID, "sunset-beach.png", "sha-1")
	require.NotNil(t, asset.AIStatus)
	assert.Equal(t, AIStatusPending, *asset.AIStatus)
	assert.Nil(t, asset.DeletedAt)

	hits, err := s.SearchAssets(ctx, p.ID, "sun", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, asset.ID, hits[0].ID)

	hits, err = s.SearchAssets(ctx, p.ID, "  ", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestLocalDuplicateShaOnlyAmongLiveAssets(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStore(t)
	p, err := s.CreateProject(ctx, "P")
	require.NoError(t, err)

	first := insertTestAsset(t, s, p.ID, "a.png", "same")

	_, err = s.InsertAsset(ctx, NewAsset{
		ID: util.NewID(), ProjectID: p.ID, OriginalName: "b.png", MimeType: "image/png",
		SHA256: "same", StoragePath: "x", StorageURL: "y",
	})
	assert.ErrorIs(t, err, ErrConflict)

	changed, err := s.TrashAsset(ctx, first.ID, time.Now(), nil, nil)
	require.NoError(t, err)
	require.True(t, changed)

	second := insertTestAsset(t, s, p.ID, "b.png", "same")
	found, err := s.FindAssetBySHA(ctx, p.ID, "same")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)

	_, err = s.RestoreAsset(ctx, first.ID)
	assert.ErrorIs(t, err, ErrConflict)

	still, err := s.GetAssetAny(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, still.Trashed())
}

func TestLocalTrashAndRestoreAreIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStore(t)
	p, err := s.CreateProject(ctx, "P")
	require.NoError(t, err)
	asset := insertTestAsset(t, s, p.ID, "harbor.png", "sha-h")

	trashPath := "/data/projects/" + p.ID + "/trash/assets/harbor.png"
	changed, err := s.TrashAsset(ctx, asset.ID, time.Now(), &trashPath, nil)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.TrashAsset(ctx, asset.ID, time.Now(), nil, nil)
	require.NoError(t, err)
	assert.False(t, changed)

	trashed, err := s.GetAssetAny(ctx, asset.ID)
	require.NoError(t, err)
	require.NotNil(t, trashed.TrashedStoragePath)
	assert.Equal(t, trashPath, *trashed.TrashedStoragePath)

	_, err = s.GetAsset(ctx, asset.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	hits, err := s.SearchAssets(ctx, p.ID, "harbor", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	listed, err := s.ListAssets(ctx, p.ID, 50)
	require.NoError(t, err)
	assert.Empty(t, listed)

	changed, err = s.RestoreAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.RestoreAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	restored, err := s.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.DeletedAt)
	assert.Nil(t, restored.TrashedStoragePath)

	hits, err = s.SearchAssets(ctx, p.ID, "harbor", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestLocalCanvasRevisionConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStore(t)
	p, err := s.CreateProject(ctx, "P")
	require.NoError(t, err)

	objects := []CanvasObject{{ID: "o1", Type: "text", ScaleX: 1, ScaleY: 1}}
	state, err := s.ReplaceCanvasObjects(ctx, p.ID, objects, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.CanvasRev)

	base := int64(1)
	state, err = s.ReplaceCanvasObjects(ctx, p.ID, []CanvasObject{{ID: "o2", Type: "shape"}}, &base)
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.CanvasRev)

	_, err = s.ReplaceCanvasObjects(ctx, p.ID, nil, &base)
	require.ErrorIs(t, err, ErrRevisionConflict)
	var conflict *RevisionConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(2), conflict.Rev)
	assert.Equal(t, state.CanvasUpdatedAt, conflict.UpdatedAt)

	stored, err := s.GetCanvasObjects(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "o2", stored[0].ID)

	_, err = s.ReplaceCanvasObjects(ctx, "missing", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalConcurrentCanvasWritesWithSameBase(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStore(t)
	p, err := s.CreateProject(ctx, "P")
	require.NoError(t, err)

	base := int64(0)
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ReplaceCanvasObjects(ctx, p.ID, nil, &base)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrRevisionConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicts)
}

func TestLocalViewRevision(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStore(t)
	p, err := s.CreateProject(ctx, "P")
	require.NoError(t, err)

	_, err = s.GetProjectView(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	base := int64(0)
	state, err := s.SaveProjectView(ctx, ProjectView{ProjectID: p.ID, WorldX: 10, WorldY: -4, Zoom: 2}, &base)
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.ViewRev)
	assert.Equal(t, int64(0), state.CanvasRev)

	_, err = s.SaveProjectView(ctx, ProjectView{ProjectID: p.ID, Zoom: 1}, &base)
	var conflict *RevisionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(1), conflict.Rev)

	view, err := s.GetProjectView(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, view.WorldX)
	assert.Equal(t, 2.0, view.Zoom)
}

func TestLocalCanvasRefsAndHardDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStore(t)
	p, err := s.CreateProject(ctx, "P")
	require.NoError(t, err)
	asset := insertTestAsset(t, s, p.ID, "a.png", "sha-a")

	_, err = s.ReplaceCanvasObjects(ctx, p.ID, []CanvasObject{{ID: "img", Type: "image", AssetID: &asset.ID}}, nil)
	require.NoError(t, err)

	refs, err := s.CountCanvasRefs(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refs)

	require.NoError(t, s.DeleteAsset(ctx, asset.ID))
	refs, err = s.CountCanvasRefs(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, refs)

	objects, err := s.GetCanvasObjects(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Nil(t, objects[0].AssetID)

	assert.ErrorIs(t, s.DeleteAsset(ctx, asset.ID), ErrNotFound)
}

func TestLocalMetadataAndAIFeedSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStore(t)
	p, err := s.CreateProject(ctx, "P")
	require.NoError(t, err)
	asset := insertTestAsset(t, s, p.ID, "IMG_0001.png", "sha-m")

	notes := "old lighthouse at dusk"
	meta, err := s.UpsertManualMetadata(ctx, asset.ID, &notes, []string{"coast"})
	require.NoError(t, err)
	assert.Equal(t, []string{"coast"}, meta.Tags)

	caption := "a red bicycle"
	tags := `["bike","street"]`
	require.NoError(t, s.UpsertAssetAI(ctx, AIResult{AssetID: asset.ID, Status: AIStatusDone, Caption: &caption, TagsJSON: &tags}))

	for _, q := range []string{"lighth", "coast", "bicycle", "stree", "img"} {
		hits, err := s.SearchAssets(ctx, p.ID, q, 10)
		require.NoError(t, err, q)
		assert.Len(t, hits, 1, q)
	}

	hits, err := s.SearchAssets(ctx, p.ID, `red "bike`, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = s.SearchAssets(ctx, p.ID, "red submarine", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLocalRetryAI(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStore(t)
	p, err := s.CreateProject(ctx, "P")
	require.NoError(t, err)
	a := insertTestAsset(t, s, p.ID, "a.png", "sha-a")
	b := insertTestAsset(t, s, p.ID, "b.png", "sha-b")

	require.NoError(t, s.UpsertAssetAI(ctx, AIResult{AssetID: a.ID, Status: AIStatusFailed}))
	require.NoError(t, s.UpsertAssetAI(ctx, AIResult{AssetID: b.ID, Status: AIStatusDone}))

	n, err := s.RetryFailedAI(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.RetryAssetAI(ctx, p.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.RetryAssetAI(ctx, "other-project", b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := s.GetAsset(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, AIStatusPending, *got.AIStatus)
}

func TestLocalVectorSearchRanksByCosine(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStore(t)
	p, err := s.CreateProject(ctx, "P")
	require.NoError(t, err)
	a := insertTestAsset(t, s, p.ID, "a.png", "sha-a")
	b := insertTestAsset(t, s, p.ID, "b.png", "sha-b")

	require.NoError(t, s.UpsertEmbedding(ctx, Embedding{AssetID: a.ID, Model: "m", Vector: []float32{1, 0, 0}}))
	require.NoError(t, s.UpsertEmbedding(ctx, Embedding{AssetID: b.ID, Model: "m", Vector: []float32{0, 1, 0}}))

	hits, err := s.VectorSearch(ctx, p.ID, []float32{0.1, 0.9, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, b.ID, hits[0].ID)
	assert.Equal(t, a.ID, hits[1].ID)

	hits, err = s.VectorSearch(ctx, p.ID, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLocalSegmentsAndAppState(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStore(t)
	p, err := s.CreateProject(ctx, "P")
	require.NoError(t, err)
	a := insertTestAsset(t, s, p.ID, "a.png", "sha-a")

	svg := "<svg/>"
	require.NoError(t, s.UpsertSegment(ctx, Segment{AssetID: a.ID, Tag: "sky", SVG: &svg}))
	seg, err := s.GetSegment(ctx, a.ID, "sky")
	require.NoError(t, err)
	assert.Equal(t, svg, *seg.SVG)
	_, err = s.GetSegment(ctx, a.ID, "sea")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetAppState(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.SetAppState(ctx, "k", "v1"))
	require.NoError(t, s.SetAppState(ctx, "k", "v2"))
	v, err := s.GetAppState(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}

func TestLocalRebuildSearchIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStore(t)
	p, err := s.CreateProject(ctx, "P")
	require.NoError(t, err)
	insertTestAsset(t, s, p.ID, "alpha.png", "sha-1")
	trashed := insertTestAsset(t, s, p.ID, "beta.png", "sha-2")
	_, err = s.TrashAsset(ctx, trashed.ID, time.Now(), nil, nil)
	require.NoError(t, err)

	_, err = s.DB().ExecContext(ctx, `DELETE FROM asset_search`)
	require.NoError(t, err)

	n, err := s.RebuildSearchIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := s.SearchAssets(ctx, p.ID, "alpha", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestFTSQuery(t *testing.T) {
	assert.Equal(t, "", FTSQuery("   "))
	assert.Equal(t, `"sun"*`, FTSQuery("sun"))
	assert.Equal(t, `"red"* AND "bike"*`, FTSQuery(`red "bike"`))
	assert.Equal(t, `"a"*`, FTSQuery(`" a`))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 1, ClampLimit(0))
	assert.Equal(t, 1, ClampLimit(-5))
	assert.Equal(t, 50, ClampLimit(50))
	assert.Equal(t, MaxListLimit, ClampLimit(1000))
}
