package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"canvasvault/api/internal/settings"
	"canvasvault/api/internal/storage"
	"canvasvault/api/internal/store"
)

const migratedAtKey = "cloud_migration_completed_at"

// MigrateToCloud copies every local project into the cloud backend. Failures
// are collected per project or asset and do not stop the run.
func (s *Service) MigrateToCloud(ctx context.Context, target Backend) (map[string]any, error) {
	if !target.Cloud() {
		return nil, domainError(http.StatusBadRequest, "NOT_CLOUD_MODE", "Must be in cloud mode to migrate", nil)
	}
	projects, err := s.local.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return map[string]any{"message": "No local projects to migrate", "migrated": 0}, nil
	}

	migrated := 0
	errs := []string{}
	for _, project := range projects {
		projectErrs, err := s.migrateProject(ctx, target, project)
		errs = append(errs, projectErrs...)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Failed to migrate project %s: %v", project.ID, err))
			continue
		}
		migrated++
	}

	if err := s.local.SetAppState(ctx, migratedAtKey, s.now().UTC().Format(time.RFC3339)); err != nil {
		s.log.Warn("record cloud migration failed", "error", err)
	}
	s.log.Info("local projects migrated to cloud", "user_id", target.UserID, "migrated", migrated, "errors", len(errs))

	out := map[string]any{
		"message":  fmt.Sprintf("Migrated %d project(s)", migrated),
		"migrated": migrated,
	}
	if len(errs) > 0 {
		out["errors"] = errs
	}
	return out, nil
}

func (s *Service) migrateProject(ctx context.Context, target Backend, project store.Project) ([]string, error) {
	cloudProject, err := target.Adapter.CreateProject(ctx, project.Name)
	if err != nil {
		return nil, err
	}
	assets, err := s.local.ListAllAssets(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	var errs []string
	for _, asset := range assets {
		if asset.Trashed() {
			continue
		}
		assetErrs, err := s.migrateAsset(ctx, target, cloudProject.ID, asset)
		errs = append(errs, assetErrs...)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Failed to migrate asset %s: %v", asset.ID, err))
		}
	}

	objects, err := s.local.GetCanvasObjects(ctx, project.ID)
	if err != nil {
		return errs, err
	}
	if len(objects) > 0 {
		for i := range objects {
			objects[i].ProjectID = cloudProject.ID
		}
		if _, err := target.Adapter.ReplaceCanvasObjects(ctx, cloudProject.ID, objects, nil); err != nil {
			return errs, fmt.Errorf("copy canvas: %w", err)
		}
	}

	view, err := s.local.GetProjectView(ctx, project.ID)
	switch {
	case err == nil:
		view.ProjectID = cloudProject.ID
		if _, err := target.Adapter.SaveProjectView(ctx, view, nil); err != nil {
			return errs, fmt.Errorf("copy view: %w", err)
		}
	case !isNotFound(err):
		return errs, err
	}
	return errs, nil
}

func (s *Service) migrateAsset(ctx context.Context, target Backend, cloudProjectID string, asset store.Asset) ([]string, error) {
	var errs []string
	storagePath, storageURL := asset.StoragePath, asset.StorageURL
	if obj, err := s.copyFile(ctx, target, asset.ProjectID, cloudProjectID, storage.KindAssets, asset.StoragePath, asset.MimeType); err != nil {
		errs = append(errs, fmt.Sprintf("Failed to upload asset file for %s: %v", asset.ID, err))
	} else if obj != nil {
		storagePath, storageURL = obj.Path, obj.URL
	}

	thumbPath, thumbURL := asset.ThumbPath, asset.ThumbURL
	if asset.ThumbPath != nil {
		if obj, err := s.copyFile(ctx, target, asset.ProjectID, cloudProjectID, storage.KindThumbs, *asset.ThumbPath, "image/jpeg"); err != nil {
			errs = append(errs, fmt.Sprintf("Failed to upload thumb for %s: %v", asset.ID, err))
		} else if obj != nil {
			thumbPath, thumbURL = &obj.Path, &obj.URL
		}
	}

	inserted, err := target.Adapter.InsertAsset(ctx, store.NewAsset{
		ID:           asset.ID,
		ProjectID:    cloudProjectID,
		OriginalName: asset.OriginalName,
		MimeType:     asset.MimeType,
		ByteSize:     asset.ByteSize,
		SHA256:       asset.SHA256,
		StoragePath:  storagePath,
		StorageURL:   storageURL,
		ThumbPath:    thumbPath,
		ThumbURL:     thumbURL,
		Width:        asset.Width,
		Height:       asset.Height,
	})
	if err != nil {
		return errs, err
	}

	if asset.AIStatus != nil {
		if err := target.Adapter.UpsertAssetAI(ctx, store.AIResult{
			AssetID:      asset.ID,
			Status:       *asset.AIStatus,
			Caption:      asset.AICaption,
			TagsJSON:     asset.AITagsJSON,
			ModelVersion: asset.AIModelVersion,
		}); err != nil {
			return errs, fmt.Errorf("copy ai result: %w", err)
		}
	}

	meta, err := s.local.GetManualMetadata(ctx, asset.ID)
	switch {
	case err == nil:
		if _, err := target.Adapter.UpsertManualMetadata(ctx, asset.ID, meta.Notes, meta.Tags); err != nil {
			return errs, fmt.Errorf("copy manual metadata: %w", err)
		}
	case !isNotFound(err):
		return errs, err
	}

	segments, err := s.local.ListSegments(ctx, asset.ID)
	if err != nil {
		return errs, err
	}
	for _, seg := range segments {
		if err := target.Adapter.UpsertSegment(ctx, seg); err != nil {
			return errs, fmt.Errorf("copy segment %s: %w", seg.Tag, err)
		}
	}

	embedding, err := s.local.GetEmbedding(ctx, asset.ID)
	switch {
	case err == nil && len(embedding.Vector) > 0:
		if err := target.Adapter.UpsertEmbedding(ctx, embedding); err != nil {
			return errs, fmt.Errorf("copy embedding: %w", err)
		}
	case err != nil && !isNotFound(err):
		return errs, err
	}

	if current, err := target.Adapter.GetAsset(ctx, inserted.ID); err == nil {
		inserted = current
	}
	s.indexAsset(ctx, target, inserted)
	return errs, nil
}

// copyFile uploads one local project file. A nil object without an error
// means the local file is gone.
func (s *Service) copyFile(ctx context.Context, target Backend, localProjectID, cloudProjectID string, kind storage.Kind, localPath, contentType string) (*storage.Object, error) {
	if localPath == "" {
		return nil, nil
	}
	name := filepath.Base(localPath)
	rc, info, err := s.disk.Open(ctx, localProjectID, kind, name)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rc.Close()
	obj, err := target.Files.Save(ctx, kind, cloudProjectID, name, rc, info.Size, firstNonBlank(contentType, info.ContentType))
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, storage.ErrNotFound)
}

// CheckSchema lists which required remote tables exist.
func (s *Service) CheckSchema(ctx context.Context) (map[string]any, error) {
	if s.Mode() != settings.ModeCloud {
		return nil, domainError(http.StatusBadRequest, "NOT_CLOUD_MODE", "Not in cloud mode", nil)
	}
	if s.missingTables == nil {
		return nil, errCloudUnavailable
	}
	missing, err := s.missingTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("check schema: %w", err)
	}
	return map[string]any{
		"schemaReady":    len(missing) == 0,
		"existingTables": subtract(RequiredTables, missing),
		"missingTables":  missing,
		"totalRequired":  len(RequiredTables),
	}, nil
}

// VerifySetup reports database tables and storage buckets together. Probe
// failures are reported in the body rather than as request errors.
func (s *Service) VerifySetup(ctx context.Context) (map[string]any, error) {
	if s.Mode() != settings.ModeCloud {
		return nil, domainError(http.StatusBadRequest, "NOT_CLOUD_MODE", "Not in cloud mode", nil)
	}

	dbErrors := []string{}
	missingTables := []string{}
	if s.missingTables == nil {
		dbErrors = append(dbErrors, "remote database is not configured")
		missingTables = append(missingTables, RequiredTables...)
	} else if missing, err := s.missingTables(ctx); err != nil {
		dbErrors = append(dbErrors, err.Error())
		missingTables = append(missingTables, RequiredTables...)
	} else {
		missingTables = append(missingTables, missing...)
	}
	existingTables := subtract(RequiredTables, missingTables)

	bucketErrors := []string{}
	missingBuckets := []string{}
	if s.missingBuckets == nil {
		bucketErrors = append(bucketErrors, "object storage is not configured")
		missingBuckets = append(missingBuckets, storage.RequiredBuckets...)
	} else if missing, err := s.missingBuckets(ctx); err != nil {
		bucketErrors = append(bucketErrors, err.Error())
		missingBuckets = append(missingBuckets, storage.RequiredBuckets...)
	} else {
		missingBuckets = append(missingBuckets, missing...)
	}
	existingBuckets := subtract(storage.RequiredBuckets, missingBuckets)

	dbReady := len(missingTables) == 0 && len(dbErrors) == 0
	storageReady := len(missingBuckets) == 0 && len(bucketErrors) == 0
	return map[string]any{
		"ready": dbReady && storageReady,
		"database": map[string]any{
			"ready":          dbReady,
			"existingTables": existingTables,
			"missingTables":  missingTables,
			"errors":         dbErrors,
			"totalRequired":  len(RequiredTables),
		},
		"storage": map[string]any{
			"ready":           storageReady,
			"existingBuckets": existingBuckets,
			"missingBuckets":  missingBuckets,
			"errors":          bucketErrors,
			"totalRequired":   len(storage.RequiredBuckets),
		},
		"summary": map[string]any{
			"databaseTables": fmt.Sprintf("%d/%d", len(existingTables), len(RequiredTables)),
			"storageBuckets": fmt.Sprintf("%d/%d", len(existingBuckets), len(storage.RequiredBuckets)),
		},
	}, nil
}

func subtract(all, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, item := range remove {
		drop[item] = struct{}{}
	}
	out := []string{}
	for _, item := range all {
		if _, ok := drop[item]; !ok {
			out = append(out, item)
		}
	}
	return out
}
