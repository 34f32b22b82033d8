package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"canvasvault/api/internal/logger"
)

const idxAssets = "canvasvault_assets"

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     *logger.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the asset index.
// The client starts unhealthy if the first health check fails; a background
// loop keeps probing.
func NewMeili(url, apiKey string, log *logger.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		log:    log,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Warn("meilisearch unavailable", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxAssets,
		PrimaryKey: "id",
	}); err != nil {
		m.log.Debug("create index (may already exist)", "index", idxAssets, "error", err)
	}

	index := m.client.Index(idxAssets)
	filterable := []interface{}{"userId", "projectId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn("update filterable attributes", "index", idxAssets, "error", err)
	}
	searchable := []string{"originalName", "caption", "tags", "manualTags", "notes"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn("update searchable attributes", "index", idxAssets, "error", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// SearchAssetIDs returns asset ids for one user's project in rank order.
func (m *Meili) SearchAssetIDs(_ context.Context, q Query) ([]string, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if strings.TrimSpace(q.UserID) == "" {
		return nil, fmt.Errorf("meilisearch query requires a user")
	}

	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 50
	}
	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID: idxAssets,
			Query:    q.Text,
			Limit:    limit,
			Filter: []string{
				fmt.Sprintf("userId = %q", q.UserID),
				fmt.Sprintf("projectId = %q", q.ProjectID),
			},
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	ids := []string{}
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			if id := decodeString(hit, "id"); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// IndexAssets adds or replaces asset records.
func (m *Meili) IndexAssets(records []AssetRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxAssets).AddDocuments(records, nil)
	return err
}

// DeleteAsset removes an asset from the index.
func (m *Meili) DeleteAsset(id string) error {
	_, err := m.client.Index(idxAssets).DeleteDocument(id, nil)
	return err
}
