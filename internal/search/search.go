package search

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Mode selects the ranking strategy.
type Mode string

const (
	ModeFTS    Mode = "fts"
	ModeVector Mode = "vector"
	ModeHybrid Mode = "hybrid"
)

var ErrInvalidMode = errors.New("mode must be fts, vector or hybrid")

// ParseMode accepts the query-string value; blank means fts.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.TrimSpace(raw)) {
	case "", ModeFTS:
		return ModeFTS, nil
	case ModeVector:
		return ModeVector, nil
	case ModeHybrid:
		return ModeHybrid, nil
	default:
		return "", ErrInvalidMode
	}
}

// Query describes a project-scoped asset search. UserID is set in cloud mode
// and enables the remote lexical index.
type Query struct {
	ProjectID string
	UserID    string
	Text      string
	Mode      Mode
	Limit     int

	EmbedEndpoint string
	EmbedToken    string
}

// Searcher is a lexical index that returns asset ids in rank order.
type Searcher interface {
	SearchAssetIDs(ctx context.Context, q Query) ([]string, error)
	Healthy() bool
}

// Indexer pushes asset records into a lexical index.
type Indexer interface {
	IndexAssets(records []AssetRecord) error
	DeleteAsset(id string) error
}

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, endpoint, token, text string) ([]float32, error)
}

// AssetRecord is the data we index for an asset.
type AssetRecord struct {
	ID           string   `json:"id"`
	ProjectID    string   `json:"projectId"`
	UserID       string   `json:"userId"`
	OriginalName string   `json:"originalName"`
	Caption      string   `json:"caption"`
	Tags         []string `json:"tags"`
	Notes        string   `json:"notes"`
	ManualTags   []string `json:"manualTags"`
}

// ParseTags decodes a JSON string array. Anything else yields no tags.
func ParseTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}
