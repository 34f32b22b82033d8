package app

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	"canvasvault/api/internal/store"
)

type CanvasObjectInput struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	AssetID   *string  `json:"asset_id"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	ScaleX    *float64 `json:"scale_x"`
	ScaleY    *float64 `json:"scale_y"`
	Rotation  *float64 `json:"rotation"`
	Width     *float64 `json:"width"`
	Height    *float64 `json:"height"`
	ZIndex    *int64   `json:"z_index"`
	PropsJSON *string  `json:"props_json"`
}

type SaveCanvasInput struct {
	Objects       []CanvasObjectInput `json:"objects"`
	BaseCanvasRev *int64              `json:"baseCanvasRev"`
}

type SaveViewInput struct {
	WorldX      *float64 `json:"world_x"`
	WorldY      *float64 `json:"world_y"`
	Zoom        *float64 `json:"zoom"`
	BaseViewRev *int64   `json:"baseViewRev"`
}

func finite(values ...*float64) bool {
	for _, v := range values {
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			return false
		}
	}
	return true
}

func optionalFinite(values ...*float64) bool {
	for _, v := range values {
		if v != nil && !finite(v) {
			return false
		}
	}
	return true
}

func (in SaveCanvasInput) normalize(projectID string) ([]store.CanvasObject, error) {
	if in.Objects == nil {
		return nil, invalidBody("")
	}
	if in.BaseCanvasRev != nil && *in.BaseCanvasRev < 0 {
		return nil, invalidBody("")
	}
	seen := make(map[string]struct{}, len(in.Objects))
	out := make([]store.CanvasObject, 0, len(in.Objects))
	for _, o := range in.Objects {
		id := strings.TrimSpace(o.ID)
		if id == "" {
			return nil, invalidBody("")
		}
		if _, dup := seen[id]; dup {
			return nil, invalidBody("Duplicate canvas object id")
		}
		seen[id] = struct{}{}
		if _, ok := store.CanvasObjectTypes[o.Type]; !ok {
			return nil, invalidBody("")
		}
		if !finite(o.X, o.Y, o.ScaleX, o.ScaleY, o.Rotation) || !optionalFinite(o.Width, o.Height) || o.ZIndex == nil {
			return nil, invalidBody("")
		}
		assetID := o.AssetID
		if assetID != nil && strings.TrimSpace(*assetID) == "" {
			assetID = nil
		}
		out = append(out, store.CanvasObject{
			ID:        id,
			ProjectID: projectID,
			Type:      o.Type,
			AssetID:   assetID,
			X:         *o.X,
			Y:         *o.Y,
			ScaleX:    *o.ScaleX,
			ScaleY:    *o.ScaleY,
			Rotation:  *o.Rotation,
			Width:     o.Width,
			Height:    o.Height,
			ZIndex:    *o.ZIndex,
			PropsJSON: o.PropsJSON,
		})
	}
	return out, nil
}

func (s *Service) GetCanvas(ctx context.Context, b Backend, projectID string) (map[string]any, error) {
	if _, err := b.Adapter.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	objects, err := b.Adapter.GetCanvasObjects(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sync, err := b.Adapter.GetProjectSync(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"projectId":       projectID,
		"objects":         objects,
		"canvasRev":       sync.CanvasRev,
		"canvasUpdatedAt": sync.CanvasUpdatedAt,
	}, nil
}

// SaveCanvas replaces the project's canvas objects. With a base revision the
// write only lands if the stored revision still matches.
func (s *Service) SaveCanvas(ctx context.Context, b Backend, projectID string, in SaveCanvasInput) (map[string]any, error) {
	if _, err := b.Adapter.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	objects, err := in.normalize(projectID)
	if err != nil {
		return nil, err
	}
	sync, err := b.Adapter.ReplaceCanvasObjects(ctx, projectID, objects, in.BaseCanvasRev)
	if err != nil {
		var conflict *store.RevisionConflictError
		if errors.As(err, &conflict) {
			s.log.Info("canvas write rejected", "project_id", projectID, "current_rev", conflict.Rev, "mode", b.Mode)
			return nil, domainError(http.StatusConflict, "REVISION_CONFLICT", "Conflict: canvas is newer on disk", map[string]any{
				"canvasRev":       conflict.Rev,
				"canvasUpdatedAt": conflict.UpdatedAt,
			})
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalidBody("Canvas references an unknown asset")
		}
		return nil, err
	}
	return map[string]any{
		"ok":              true,
		"canvasRev":       sync.CanvasRev,
		"canvasUpdatedAt": sync.CanvasUpdatedAt,
	}, nil
}

func (s *Service) GetView(ctx context.Context, b Backend, projectID string) (map[string]any, error) {
	if _, err := b.Adapter.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	view := map[string]any{"world_x": 0.0, "world_y": 0.0, "zoom": 1.0}
	stored, err := b.Adapter.GetProjectView(ctx, projectID)
	switch {
	case err == nil:
		view = map[string]any{
			"project_id": stored.ProjectID,
			"world_x":    stored.WorldX,
			"world_y":    stored.WorldY,
			"zoom":       stored.Zoom,
			"updated_at": stored.UpdatedAt,
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	sync, err := b.Adapter.GetProjectSync(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"projectId":     projectID,
		"view":          view,
		"viewRev":       sync.ViewRev,
		"viewUpdatedAt": sync.ViewUpdatedAt,
	}, nil
}

func (s *Service) SaveView(ctx context.Context, b Backend, projectID string, in SaveViewInput) (map[string]any, error) {
	if _, err := b.Adapter.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if !finite(in.WorldX, in.WorldY, in.Zoom) || *in.Zoom <= 0 {
		return nil, invalidBody("")
	}
	if in.BaseViewRev != nil && *in.BaseViewRev < 0 {
		return nil, invalidBody("")
	}
	sync, err := b.Adapter.SaveProjectView(ctx, store.ProjectView{
		ProjectID: projectID,
		WorldX:    *in.WorldX,
		WorldY:    *in.WorldY,
		Zoom:      *in.Zoom,
	}, in.BaseViewRev)
	if err != nil {
		var conflict *store.RevisionConflictError
		if errors.As(err, &conflict) {
			return nil, domainError(http.StatusConflict, "REVISION_CONFLICT", "Conflict: view is newer on disk", map[string]any{
				"viewRev":       conflict.Rev,
				"viewUpdatedAt": conflict.UpdatedAt,
			})
		}
		return nil, err
	}
	return map[string]any{
		"ok":            true,
		"viewRev":       sync.ViewRev,
		"viewUpdatedAt": sync.ViewUpdatedAt,
	}, nil
}
