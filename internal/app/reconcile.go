package app

import (
	"context"
	"fmt"
	"time"

	"canvasvault/api/internal/search"
	"canvasvault/api/internal/storage"
	"canvasvault/api/internal/store"
)

type ReconcileReport struct {
	Checked int `json:"checked"`
	Moved   int `json:"moved"`
	Cleared int `json:"cleared"`
}

// ReconcileTrash repairs local trashed assets whose file moves did not
// finish. A file still at its active path is moved into the trash; a
// recorded trash path with no file behind it is cleared.
func (s *Service) ReconcileTrash(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	assets, err := s.local.ListTrashedAssets(ctx)
	if err != nil {
		return report, err
	}
	for _, asset := range assets {
		report.Checked++
		storageDst, storageMoved, storageCleared := s.reconcileFile(ctx, asset.ProjectID, storage.KindAssets, asset.StoragePath, asset.TrashedStoragePath)
		var thumbDst *string
		var thumbMoved, thumbCleared bool
		if asset.ThumbPath != nil {
			thumbDst, thumbMoved, thumbCleared = s.reconcileFile(ctx, asset.ProjectID, storage.KindThumbs, *asset.ThumbPath, asset.TrashedThumbPath)
		}
		if !storageMoved && !storageCleared && !thumbMoved && !thumbCleared {
			continue
		}
		if err := s.local.SetTrashedPaths(ctx, asset.ID, storageDst, thumbDst); err != nil {
			return report, fmt.Errorf("record trashed paths for %s: %w", asset.ID, err)
		}
		if storageMoved || thumbMoved {
			report.Moved++
		}
		if storageCleared || thumbCleared {
			report.Cleared++
		}
	}
	s.log.Info("trash reconciled", "checked", report.Checked, "moved", report.Moved, "cleared", report.Cleared)
	return report, nil
}

// reconcileFile returns the trash path to record and whether the file was
// moved or its record cleared.
func (s *Service) reconcileFile(ctx context.Context, projectID string, kind storage.Kind, active string, trashed *string) (*string, bool, bool) {
	if trashed != nil {
		if ok, err := s.disk.Exists(ctx, *trashed); err == nil && ok {
			return trashed, false, false
		}
	}
	if active != "" {
		if ok, err := s.disk.Exists(ctx, active); err == nil && ok {
			dst := s.disk.TrashPath(projectID, kind, active)
			if trashed != nil {
				dst = *trashed
			}
			if err := s.disk.Move(ctx, active, dst); err != nil {
				s.log.Warn("reconcile move failed", "src", active, "dst", dst, "error", err)
				return trashed, false, false
			}
			return &dst, true, false
		}
	}
	if trashed != nil {
		return nil, false, true
	}
	return nil, false, false
}

// ReindexLocal rebuilds the local full-text index from the asset rows.
func (s *Service) ReindexLocal(ctx context.Context) (int, error) {
	return s.local.RebuildSearchIndex(ctx)
}

// ReindexRemote pushes every live cloud asset to the remote lexical index.
func (s *Service) ReindexRemote(ctx context.Context, remote *store.RemoteStore) (int, error) {
	owners, err := remote.AssetOwners(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, userID := range owners {
		scoped := remote.ForUser(userID)
		projects, err := scoped.ListProjects(ctx)
		if err != nil {
			return total, err
		}
		for _, project := range projects {
			assets, err := scoped.ListAllAssets(ctx, project.ID)
			if err != nil {
				return total, err
			}
			records := make([]search.AssetRecord, 0, len(assets))
			for _, asset := range assets {
				var meta *store.ManualMetadata
				if m, err := scoped.GetManualMetadata(ctx, asset.ID); err == nil {
					meta = &m
				}
				records = append(records, search.RecordFor(userID, asset, meta))
			}
			total += s.search.ReindexAssets(records)
		}
	}
	return total, nil
}

// RunRemoteReindex calls ReindexRemote every interval until ctx is done.
func (s *Service) RunRemoteReindex(ctx context.Context, remote *store.RemoteStore, interval time.Duration) {
	runEvery(ctx, interval, func(ctx context.Context) {
		n, err := s.ReindexRemote(ctx, remote)
		if err != nil {
			s.log.Warn("scheduled remote reindex failed", "indexed", n, "error", err)
			return
		}
		s.log.Debug("scheduled remote reindex", "indexed", n)
	})
}

func runEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
