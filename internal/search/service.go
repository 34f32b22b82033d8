package search

import (
	"context"
	"sort"
	"strings"

	"canvasvault/api/internal/logger"
	"canvasvault/api/internal/store"
)

// rrfK is the reciprocal-rank-fusion damping constant.
const rrfK = 60

// Service runs asset searches against a backend adapter. In cloud mode it
// tries the remote lexical index first and falls back to the adapter's own
// full-text search.
type Service struct {
	index    Searcher
	indexer  Indexer
	embedder Embedder
	log      *logger.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured; embedder may be nil to disable vector search.
func NewService(meili *Meili, embedder Embedder, log *logger.Logger) *Service {
	s := &Service{embedder: embedder, log: log}
	if meili != nil {
		s.index = meili
		s.indexer = meili
	}
	return s
}

// Result carries the ranked assets and the mode that produced them.
type Result struct {
	Assets []store.Asset
	Mode   Mode
}

// Search ranks assets of one project. vector and hybrid degrade to fts when
// no embedding is available.
func (s *Service) Search(ctx context.Context, adapter store.Adapter, q Query) (Result, error) {
	switch q.Mode {
	case ModeVector:
		vec, ok := s.embedQuery(ctx, q)
		if !ok {
			return s.fts(ctx, adapter, q)
		}
		assets, err := adapter.VectorSearch(ctx, q.ProjectID, vec, q.Limit)
		if err != nil {
			s.log.Warn("vector search failed, falling back to fts", "project_id", q.ProjectID, "error", err)
			return s.fts(ctx, adapter, q)
		}
		return Result{Assets: assets, Mode: ModeVector}, nil

	case ModeHybrid:
		lexical, err := s.fts(ctx, adapter, q)
		if err != nil {
			return Result{}, err
		}
		vec, ok := s.embedQuery(ctx, q)
		if !ok {
			return lexical, nil
		}
		semantic, err := adapter.VectorSearch(ctx, q.ProjectID, vec, q.Limit)
		if err != nil {
			s.log.Warn("vector search failed, using fts ranking only", "project_id", q.ProjectID, "error", err)
			return lexical, nil
		}
		return Result{Assets: Fuse(q.Limit, lexical.Assets, semantic), Mode: ModeHybrid}, nil

	default:
		return s.fts(ctx, adapter, q)
	}
}

func (s *Service) fts(ctx context.Context, adapter store.Adapter, q Query) (Result, error) {
	if q.UserID != "" && s.index != nil && s.index.Healthy() && strings.TrimSpace(q.Text) != "" {
		ids, err := s.index.SearchAssetIDs(ctx, q)
		if err == nil {
			assets, err := adapter.GetAssetsByIDs(ctx, q.ProjectID, ids)
			if err == nil {
				return Result{Assets: assets, Mode: ModeFTS}, nil
			}
			s.log.Warn("load indexed assets failed, falling back to database search", "error", err)
		} else {
			s.log.Warn("meilisearch error, falling back to database search", "error", err)
		}
	}

	assets, err := adapter.SearchAssets(ctx, q.ProjectID, q.Text, q.Limit)
	if err != nil {
		return Result{}, err
	}
	return Result{Assets: assets, Mode: ModeFTS}, nil
}

func (s *Service) embedQuery(ctx context.Context, q Query) ([]float32, bool) {
	if s.embedder == nil || strings.TrimSpace(q.EmbedEndpoint) == "" || strings.TrimSpace(q.Text) == "" {
		return nil, false
	}
	vec, err := s.embedder.Embed(ctx, q.EmbedEndpoint, q.EmbedToken, q.Text)
	if err != nil {
		s.log.Warn("embed query failed", "error", err)
		return nil, false
	}
	if len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

// Fuse merges rankings by reciprocal rank: score(d) = sum 1/(k + rank).
// Ties keep first-seen order.
func Fuse(limit int, rankings ...[]store.Asset) []store.Asset {
	type entry struct {
		asset store.Asset
		score float64
		order int
	}
	byID := map[string]*entry{}
	order := 0
	for _, ranking := range rankings {
		for rank, asset := range ranking {
			e, ok := byID[asset.ID]
			if !ok {
				e = &entry{asset: asset, order: order}
				order++
				byID[asset.ID] = e
			}
			e.score += 1.0 / float64(rrfK+rank+1)
		}
	}

	entries := make([]*entry, 0, len(byID))
	for _, e := range byID {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].order < entries[j].order
	})

	limit = store.ClampLimit(limit)
	out := make([]store.Asset, 0, len(entries))
	for _, e := range entries {
		if len(out) == limit {
			break
		}
		out = append(out, e.asset)
	}
	return out
}

// IndexAsset pushes one asset to the remote index (fire-and-forget).
func (s *Service) IndexAsset(record AssetRecord) {
	if s.indexer == nil || s.index == nil || !s.index.Healthy() {
		return
	}
	go func() {
		if err := s.indexer.IndexAssets([]AssetRecord{record}); err != nil {
			s.log.Warn("index asset failed", "asset_id", record.ID, "error", err)
		}
	}()
}

// DeleteAsset removes an asset from the remote index (fire-and-forget).
func (s *Service) DeleteAsset(id string) {
	if s.indexer == nil || s.index == nil || !s.index.Healthy() {
		return
	}
	go func() {
		if err := s.indexer.DeleteAsset(id); err != nil {
			s.log.Warn("delete indexed asset failed", "asset_id", id, "error", err)
		}
	}()
}

// ReindexAssets bulk-pushes records; errors are logged.
func (s *Service) ReindexAssets(records []AssetRecord) int {
	if s.indexer == nil || s.index == nil || !s.index.Healthy() || len(records) == 0 {
		return 0
	}
	if err := s.indexer.IndexAssets(records); err != nil {
		s.log.Warn("reindex assets failed", "count", len(records), "error", err)
		return 0
	}
	return len(records)
}

// RecordFor builds the index record of an asset.
func RecordFor(userID string, asset store.Asset, meta *store.ManualMetadata) AssetRecord {
	rec := AssetRecord{
		ID:           asset.ID,
		ProjectID:    asset.ProjectID,
		UserID:       userID,
		OriginalName: asset.OriginalName,
		Tags:         []string{},
		ManualTags:   []string{},
	}
	if asset.AICaption != nil {
		rec.Caption = *asset.AICaption
	}
	if asset.AITagsJSON != nil {
		rec.Tags = ParseTags(*asset.AITagsJSON)
	}
	if meta != nil {
		if meta.Notes != nil {
			rec.Notes = *meta.Notes
		}
		if meta.Tags != nil {
			rec.ManualTags = meta.Tags
		}
	}
	return rec
}
