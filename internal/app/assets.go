package app

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"canvasvault/api/internal/media"
	"canvasvault/api/internal/search"
	"canvasvault/api/internal/storage"
	"canvasvault/api/internal/store"
	"canvasvault/api/internal/util"
)

const (
	maxUploadBytes  = 100 << 20
	maxPreviewBytes = 3_000_000
)

var allowedImageTypes = map[string]struct{}{
	"image/jpeg":    {},
	"image/png":     {},
	"image/webp":    {},
	"image/gif":     {},
	"image/heic":    {},
	"image/svg+xml": {},
}

func allowedUploadType(contentType string) bool {
	if strings.HasPrefix(contentType, "video/") {
		return true
	}
	_, ok := allowedImageTypes[contentType]
	return ok
}

// Upload is one multipart file. Body must be seekable: it is read once for
// the hash and again for storage.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.ReadSeeker
}

func duplicateAsset(assetID string) *DomainError {
	return domainError(http.StatusConflict, "DUPLICATE_ASSET", "Duplicate asset", map[string]any{"assetId": assetID})
}

// projectAsset loads a live asset and checks it belongs to the project.
func (s *Service) projectAsset(ctx context.Context, b Backend, projectID, assetID string) (store.Asset, error) {
	if _, err := b.Adapter.GetProject(ctx, projectID); err != nil {
		return store.Asset{}, err
	}
	asset, err := b.Adapter.GetAsset(ctx, assetID)
	if err != nil {
		return store.Asset{}, err
	}
	if asset.ProjectID != projectID {
		return store.Asset{}, errNotFound
	}
	return asset, nil
}

func (s *Service) ListAssets(ctx context.Context, b Backend, projectID string, limit int) ([]store.Asset, error) {
	if _, err := b.Adapter.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return b.Adapter.ListAssets(ctx, projectID, store.ClampLimit(limit))
}

func (s *Service) GetAsset(ctx context.Context, b Backend, id string) (store.Asset, error) {
	return b.Adapter.GetAsset(ctx, id)
}

// UploadAsset stores a new file and records it with a pending AI row. A file
// whose sha256 matches a live asset of the project is rejected.
func (s *Service) UploadAsset(ctx context.Context, b Backend, projectID string, in Upload) (store.Asset, error) {
	if _, err := b.Adapter.GetProject(ctx, projectID); err != nil {
		return store.Asset{}, err
	}
	contentType := strings.ToLower(strings.TrimSpace(strings.Split(in.ContentType, ";")[0]))
	if !allowedUploadType(contentType) {
		return store.Asset{}, domainError(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Unsupported file type", map[string]any{"mimeType": contentType})
	}
	if in.Size > maxUploadBytes {
		return store.Asset{}, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File too large", nil)
	}

	hasher := sha256.New()
	size, err := io.Copy(hasher, in.Body)
	if err != nil {
		return store.Asset{}, fmt.Errorf("hash upload: %w", err)
	}
	sum := hex.EncodeToString(hasher.Sum(nil))

	existing, err := b.Adapter.FindAssetBySHA(ctx, projectID, sum)
	if err == nil {
		return store.Asset{}, duplicateAsset(existing.ID)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Asset{}, err
	}

	id := util.NewID()
	ext := storage.ExtensionFor(contentType)
	if ext == "" {
		ext = strings.ToLower(path.Ext(in.FileName))
	}

	var width, height *int
	var thumb *storage.Object
	if media.Decodable(contentType) {
		width, height = s.probeDimensions(in.Body)
		thumb = s.saveThumbnail(ctx, b, projectID, id, in.Body)
	}

	if _, err := in.Body.Seek(0, io.SeekStart); err != nil {
		return store.Asset{}, fmt.Errorf("rewind upload: %w", err)
	}
	obj, err := b.Files.Save(ctx, storage.KindAssets, projectID, id+ext, in.Body, size, contentType)
	if err != nil {
		return store.Asset{}, fmt.Errorf("save asset file: %w", err)
	}

	record := store.NewAsset{
		ID:           id,
		ProjectID:    projectID,
		OriginalName: firstNonBlank(strings.TrimSpace(in.FileName), id+ext),
		MimeType:     contentType,
		ByteSize:     size,
		SHA256:       sum,
		StoragePath:  obj.Path,
		StorageURL:   obj.URL,
		Width:        width,
		Height:       height,
	}
	if thumb != nil {
		record.ThumbPath = &thumb.Path
		record.ThumbURL = &thumb.URL
	}

	asset, err := b.Adapter.InsertAsset(ctx, record)
	if err != nil {
		s.removeFiles(ctx, b, obj.Path, pathOf(thumb))
		if errors.Is(err, store.ErrConflict) {
			if existing, findErr := b.Adapter.FindAssetBySHA(ctx, projectID, sum); findErr == nil {
				return store.Asset{}, duplicateAsset(existing.ID)
			}
		}
		return store.Asset{}, err
	}

	s.indexAsset(ctx, b, asset)
	s.log.Info("asset uploaded", "asset_id", asset.ID, "project_id", projectID, "mode", b.Mode, "bytes", size)
	return asset, nil
}

func (s *Service) probeDimensions(body io.ReadSeeker) (*int, *int) {
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return nil, nil
	}
	w, h, err := media.Dimensions(body)
	if err != nil {
		s.log.Debug("read image dimensions failed", "error", err)
		return nil, nil
	}
	return &w, &h
}

func (s *Service) saveThumbnail(ctx context.Context, b Backend, projectID, assetID string, body io.ReadSeeker) *storage.Object {
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return nil
	}
	data, err := media.Thumbnail(body, media.ThumbSize)
	if err != nil {
		s.log.Warn("render thumbnail failed", "asset_id", assetID, "error", err)
		return nil
	}
	obj, err := b.Files.Save(ctx, storage.KindThumbs, projectID, assetID+".jpg", bytes.NewReader(data), int64(len(data)), "image/jpeg")
	if err != nil {
		s.log.Warn("save thumbnail failed", "asset_id", assetID, "error", err)
		return nil
	}
	return &obj
}

func pathOf(obj *storage.Object) string {
	if obj == nil {
		return ""
	}
	return obj.Path
}

func (s *Service) removeFiles(ctx context.Context, b Backend, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := b.Files.Remove(ctx, p); err != nil {
			s.log.Warn("remove file failed", "path", p, "mode", b.Mode, "error", err)
		}
	}
}

// indexAsset pushes the asset to the remote lexical index. Local mode keeps
// its index in the database.
func (s *Service) indexAsset(ctx context.Context, b Backend, asset store.Asset) {
	if !b.Cloud() {
		return
	}
	var meta *store.ManualMetadata
	if m, err := b.Adapter.GetManualMetadata(ctx, asset.ID); err == nil {
		meta = &m
	}
	s.search.IndexAsset(search.RecordFor(b.UserID, asset, meta))
}

type fileMove struct {
	src string
	dst string
}

// TrashAsset soft-deletes an asset. The database row is committed first;
// file moves afterwards are best-effort and a file that did not move keeps
// no trash path.
func (s *Service) TrashAsset(ctx context.Context, b Backend, id string) (map[string]any, error) {
	asset, err := b.Adapter.GetAssetAny(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset.Trashed() {
		return map[string]any{"ok": true, "trashed": true}, nil
	}
	if err := s.ensureUnreferenced(ctx, b, id); err != nil {
		return nil, err
	}

	storageMove := s.planTrashMove(ctx, b, asset.ProjectID, storage.KindAssets, asset.StoragePath)
	var thumbMove *fileMove
	if asset.ThumbPath != nil {
		thumbMove = s.planTrashMove(ctx, b, asset.ProjectID, storage.KindThumbs, *asset.ThumbPath)
	}

	changed, err := b.Adapter.TrashAsset(ctx, id, s.now(), moveDst(storageMove), moveDst(thumbMove))
	var referenced *store.AssetReferencedError
	if errors.As(err, &referenced) {
		return nil, assetReferenced(referenced.Refs)
	}
	if err != nil {
		return nil, err
	}
	if !changed {
		return map[string]any{"ok": true, "trashed": true}, nil
	}
	if b.Cloud() {
		s.search.DeleteAsset(id)
	}

	storageDst := s.applyMove(ctx, b, storageMove)
	thumbDst := s.applyMove(ctx, b, thumbMove)
	if (storageMove != nil && storageDst == nil) || (thumbMove != nil && thumbDst == nil) {
		if err := b.Adapter.SetTrashedPaths(ctx, id, storageDst, thumbDst); err != nil {
			s.log.Warn("record trashed paths failed", "asset_id", id, "mode", b.Mode, "error", err)
		}
	}

	s.log.Info("asset trashed", "asset_id", id, "project_id", asset.ProjectID, "mode", b.Mode)
	return map[string]any{"ok": true, "trashed": true}, nil
}

func (s *Service) ensureUnreferenced(ctx context.Context, b Backend, assetID string) error {
	refs, err := b.Adapter.CountCanvasRefs(ctx, assetID)
	if err != nil {
		return err
	}
	if refs > 0 {
		return assetReferenced(refs)
	}
	return nil
}

func assetReferenced(refs int) error {
	return domainError(http.StatusConflict, "ASSET_REFERENCED", "Asset is still referenced by canvas objects", map[string]any{"refs": refs})
}

func (s *Service) planTrashMove(ctx context.Context, b Backend, projectID string, kind storage.Kind, activePath string) *fileMove {
	if activePath == "" {
		return nil
	}
	exists, err := b.Files.Exists(ctx, activePath)
	if err != nil {
		s.log.Warn("stat asset file failed", "path", activePath, "mode", b.Mode, "error", err)
		return nil
	}
	if !exists {
		return nil
	}
	return &fileMove{src: activePath, dst: b.Files.TrashPath(projectID, kind, activePath)}
}

func moveDst(m *fileMove) *string {
	if m == nil {
		return nil
	}
	dst := m.dst
	return &dst
}

// applyMove returns the destination when the file moved and nil otherwise.
func (s *Service) applyMove(ctx context.Context, b Backend, m *fileMove) *string {
	if m == nil {
		return nil
	}
	if err := b.Files.Move(ctx, m.src, m.dst); err != nil {
		s.log.Warn("move file to trash failed", "src", m.src, "dst", m.dst, "mode", b.Mode, "error", err)
		return nil
	}
	return moveDst(m)
}

// RestoreAsset clears the deletion marker and then moves trashed files back.
// A restore that would duplicate a live sha256 is a conflict.
func (s *Service) RestoreAsset(ctx context.Context, b Backend, id string) (map[string]any, error) {
	asset, err := b.Adapter.GetAssetAny(ctx, id)
	if err != nil {
		return nil, err
	}
	if !asset.Trashed() {
		return map[string]any{"ok": true, "restored": true}, nil
	}

	ok, err := b.Adapter.RestoreAsset(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, domainError(http.StatusConflict, "CONFLICT", "An identical asset already exists in this project", map[string]any{"ok": false})
		}
		return nil, err
	}

	if ok {
		if asset.TrashedStoragePath != nil {
			s.restoreFile(ctx, b, *asset.TrashedStoragePath, asset.StoragePath)
		}
		if asset.TrashedThumbPath != nil && asset.ThumbPath != nil {
			s.restoreFile(ctx, b, *asset.TrashedThumbPath, *asset.ThumbPath)
		}
		if restored, err := b.Adapter.GetAsset(ctx, id); err == nil {
			s.indexAsset(ctx, b, restored)
		}
		s.log.Info("asset restored", "asset_id", id, "project_id", asset.ProjectID, "mode", b.Mode)
	}
	return map[string]any{"ok": ok, "restored": true}, nil
}

func (s *Service) restoreFile(ctx context.Context, b Backend, trashed, active string) {
	err := b.Files.Move(ctx, trashed, active)
	switch {
	case err == nil, errors.Is(err, storage.ErrNotFound):
	case errors.Is(err, storage.ErrDestinationExists):
		// The active copy wins; drop the trashed one.
		s.removeFiles(ctx, b, trashed)
	default:
		s.log.Warn("move file out of trash failed", "src", trashed, "dst", active, "mode", b.Mode, "error", err)
	}
}

// DeleteAssetPermanently removes the row and then, best-effort, every file
// the row pointed at.
func (s *Service) DeleteAssetPermanently(ctx context.Context, b Backend, id string) (map[string]any, error) {
	asset, err := b.Adapter.GetAssetAny(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnreferenced(ctx, b, id); err != nil {
		return nil, err
	}
	if err := b.Adapter.DeleteAsset(ctx, id); err != nil {
		return nil, err
	}
	if b.Cloud() {
		s.search.DeleteAsset(id)
	}

	paths := []string{asset.StoragePath}
	for _, p := range []*string{asset.ThumbPath, asset.TrashedStoragePath, asset.TrashedThumbPath} {
		if p != nil {
			paths = append(paths, *p)
		}
	}
	s.removeFiles(ctx, b, paths...)
	s.log.Info("asset deleted", "asset_id", id, "project_id", asset.ProjectID, "mode", b.Mode)
	return map[string]any{"ok": true}, nil
}

// MetadataUpdate carries the fields present in a metadata PUT. Unset fields
// keep their stored value.
type MetadataUpdate struct {
	NotesSet bool
	Notes    *string
	TagsSet  bool
	Tags     []string
}

func (s *Service) GetMetadata(ctx context.Context, b Backend, projectID, assetID string) (*store.ManualMetadata, error) {
	if _, err := s.projectAsset(ctx, b, projectID, assetID); err != nil {
		return nil, err
	}
	meta, err := b.Adapter.GetManualMetadata(ctx, assetID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Service) UpdateMetadata(ctx context.Context, b Backend, projectID, assetID string, update MetadataUpdate) (*store.ManualMetadata, error) {
	asset, err := s.projectAsset(ctx, b, projectID, assetID)
	if err != nil {
		return nil, err
	}
	var notes *string
	var tags []string
	current, err := b.Adapter.GetManualMetadata(ctx, assetID)
	switch {
	case err == nil:
		notes, tags = current.Notes, current.Tags
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	if update.NotesSet {
		notes = update.Notes
	}
	if update.TagsSet {
		tags = cleanTags(update.Tags)
	}

	meta, err := b.Adapter.UpsertManualMetadata(ctx, assetID, notes, tags)
	if err != nil {
		return nil, err
	}
	if b.Cloud() {
		s.search.IndexAsset(search.RecordFor(b.UserID, asset, &meta))
	}
	return &meta, nil
}

func cleanTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func (s *Service) GetSegment(ctx context.Context, b Backend, projectID, assetID, term string) (store.Segment, error) {
	if _, err := s.projectAsset(ctx, b, projectID, assetID); err != nil {
		return store.Segment{}, err
	}
	return b.Adapter.GetSegment(ctx, assetID, term)
}

func (s *Service) ListSegments(ctx context.Context, b Backend, projectID, assetID string) ([]store.Segment, error) {
	if _, err := s.projectAsset(ctx, b, projectID, assetID); err != nil {
		return nil, err
	}
	return b.Adapter.ListSegments(ctx, assetID)
}

// RetryAI resets one asset, or every failed asset of the project, to
// pending. It returns the number of rows changed.
func (s *Service) RetryAI(ctx context.Context, b Backend, projectID, assetID string) (int64, error) {
	if _, err := b.Adapter.GetProject(ctx, projectID); err != nil {
		return 0, err
	}
	var (
		changes int64
		err     error
	)
	if assetID != "" {
		changes, err = b.Adapter.RetryAssetAI(ctx, projectID, assetID)
	} else {
		changes, err = b.Adapter.RetryFailedAI(ctx, projectID)
	}
	if err != nil {
		return 0, err
	}
	s.log.Info("ai retry queued", "project_id", projectID, "asset_id", assetID, "changes", changes, "mode", b.Mode)
	return changes, nil
}

func (s *Service) SearchAssets(ctx context.Context, b Backend, projectID, text string, mode search.Mode, limit int) (search.Result, error) {
	if _, err := b.Adapter.GetProject(ctx, projectID); err != nil {
		return search.Result{}, err
	}
	current := s.settings.Get()
	return s.search.Search(ctx, b.Adapter, search.Query{
		ProjectID:     projectID,
		UserID:        b.UserID,
		Text:          text,
		Mode:          mode,
		Limit:         store.ClampLimit(limit),
		EmbedEndpoint: current.AI.Endpoint,
		EmbedToken:    current.AI.Token,
	})
}

func (s *Service) SavePreview(ctx context.Context, b Backend, projectID, contentType string, data []byte) error {
	if _, err := b.Adapter.GetProject(ctx, projectID); err != nil {
		return err
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return domainError(http.StatusBadRequest, "INVALID_BODY", "Expected image/* body", nil)
	}
	if len(data) > maxPreviewBytes {
		return domainError(http.StatusRequestEntityTooLarge, "PREVIEW_TOO_LARGE", "Preview too large", nil)
	}
	return b.Files.WritePreview(ctx, projectID, data, contentType)
}

func (s *Service) OpenPreview(ctx context.Context, b Backend, projectID string) (io.ReadCloser, error) {
	rc, err := b.Files.OpenPreview(ctx, projectID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errNotFound
	}
	return rc, err
}

func (s *Service) OpenFile(ctx context.Context, b Backend, projectID string, kind storage.Kind, fileName string) (io.ReadCloser, storage.Info, error) {
	rc, info, err := b.Files.Open(ctx, projectID, kind, fileName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, storage.Info{}, errNotFound
	}
	return rc, info, err
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
