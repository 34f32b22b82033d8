package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"canvasvault/api/internal/logger"
	"canvasvault/api/internal/search"
	"canvasvault/api/internal/settings"
	"canvasvault/api/internal/storage"
	"canvasvault/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	log        *logger.Logger
	corsOrigin string
}

func NewHTTPServer(service *Service, log *logger.Logger, corsOrigin string) *HTTPServer {
	if log == nil {
		log = logger.NewNop()
	}
	return &HTTPServer{service: service, log: log, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/auth/") {
		s.handleAuth(w, r, strings.TrimPrefix(r.URL.Path, "/api/auth/"))
		return
	}

	if r.URL.Path == "/api/settings" {
		s.handleSettings(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/cloud/check-schema" {
		payload, err := s.service.CheckSchema(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/cloud/verify-setup" {
		payload, err := s.service.VerifySetup(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/migration/to-cloud" {
		if s.service.Mode() != settings.ModeCloud {
			writeError(w, http.StatusBadRequest, "NOT_CLOUD_MODE", "Must be in cloud mode to migrate", nil)
			return
		}
		backend, ok := s.backend(w, r)
		if !ok {
			return
		}
		payload, err := s.service.MigrateToCloud(r.Context(), backend)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if strings.HasPrefix(r.URL.Path, "/files/projects/") {
		s.handleFiles(w, r, splitPath(strings.TrimPrefix(r.URL.Path, "/files/projects/")))
		return
	}

	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api"))
	if !strings.HasPrefix(r.URL.Path, "/api/") || len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[0] {
	case "projects":
		if len(parts) == 1 && r.Method == http.MethodGet && r.URL.Query().Get("local") == "true" {
			projects, err := s.service.ListProjects(r.Context(), s.service.LocalBackend())
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
			return
		}
		backend, ok := s.backend(w, r)
		if !ok {
			return
		}
		s.handleProjects(w, r, backend, parts[1:])
	case "assets":
		if len(parts) < 2 {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		backend, ok := s.backend(w, r)
		if !ok {
			return
		}
		s.handleAssets(w, r, backend, parts[1], parts[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready := true
	checks := map[string]any{}
	for name, err := range s.service.Ready(ctx) {
		if err != nil {
			ready = false
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"ok":     ready,
		"status": status,
		"mode":   s.service.Mode(),
		"checks": checks,
	})
}

// backend resolves the request's persistence backend, writing the error
// response itself when it cannot.
func (s *HTTPServer) backend(w http.ResponseWriter, r *http.Request) (Backend, bool) {
	var sess *Session
	if s.service.Mode() == settings.ModeCloud {
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				sess = &parsed
			}
		}
	}
	backend, err := s.service.Backend(sess)
	if err != nil {
		s.writeServiceError(w, r, err)
		return Backend{}, false
	}
	return backend, true
}

func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request, b Backend, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			projects, err := s.service.ListProjects(ctx, b)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid body", nil)
				return
			}
			project, err := s.service.CreateProject(ctx, b, body.Name)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"project": project})
		default:
			methodNotAllowed(w)
		}
		return
	}

	projectID := parts[0]
	rest := parts[1:]

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			project, err := s.service.GetProject(ctx, b, projectID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"project": project})
		case http.MethodPatch:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid body", nil)
				return
			}
			project, err := s.service.RenameProject(ctx, b, projectID, body.Name)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"project": project})
		case http.MethodDelete:
			if err := s.service.DeleteProject(ctx, b, projectID); err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			methodNotAllowed(w)
		}
		return
	}

	switch rest[0] {
	case "assets":
		s.handleProjectAssets(w, r, b, projectID, rest[1:])
	case "canvas":
		s.handleCanvas(w, r, b, projectID)
	case "view":
		s.handleView(w, r, b, projectID)
	case "preview":
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		data, err := io.ReadAll(io.LimitReader(r.Body, maxPreviewBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid body", nil)
			return
		}
		if err := s.service.SavePreview(ctx, b, projectID, r.Header.Get("Content-Type"), data); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "ai":
		if len(rest) != 2 || rest[1] != "retry" || r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		var body struct {
			AssetID *string `json:"assetId"`
		}
		if err := decodeStrict(r, &body); err != nil || (body.AssetID != nil && strings.TrimSpace(*body.AssetID) == "") {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid body", nil)
			return
		}
		assetID := ""
		if body.AssetID != nil {
			assetID = strings.TrimSpace(*body.AssetID)
		}
		changes, err := s.service.RetryAI(ctx, b, projectID, assetID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "changes": changes})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleProjectAssets(w http.ResponseWriter, r *http.Request, b Backend, projectID string, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			limit, err := parseLimit(r)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			assets, err := s.service.ListAssets(ctx, b, projectID, limit)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"projectId": projectID, "assets": assets})
		case http.MethodPost:
			s.handleUpload(w, r, b, projectID)
		default:
			methodNotAllowed(w)
		}
		return
	}

	if parts[0] == "search" && len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		limit, err := parseLimit(r)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		mode, err := search.ParseMode(r.URL.Query().Get("mode"))
		if err != nil {
			s.writeServiceError(w, r, invalidQuery(""))
			return
		}
		result, err := s.service.SearchAssets(ctx, b, projectID, r.URL.Query().Get("q"), mode, limit)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projectId": projectID, "assets": result.Assets, "mode": result.Mode})
		return
	}

	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	assetID := parts[0]

	switch parts[1] {
	case "metadata":
		switch r.Method {
		case http.MethodGet:
			meta, err := s.service.GetMetadata(ctx, b, projectID, assetID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, metadataPayload(projectID, assetID, meta))
		case http.MethodPut:
			update, err := decodeMetadataUpdate(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid body", nil)
				return
			}
			meta, err := s.service.UpdateMetadata(ctx, b, projectID, assetID, update)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, metadataPayload(projectID, assetID, meta))
		default:
			methodNotAllowed(w)
		}
	case "segments":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		term := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("term")))
		if term == "" {
			segments, err := s.service.ListSegments(ctx, b, projectID, assetID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			items := make([]map[string]any, 0, len(segments))
			for _, seg := range segments {
				items = append(items, map[string]any{
					"tag":       seg.Tag,
					"svg":       seg.SVG,
					"bboxJson":  seg.BBoxJSON,
					"updatedAt": seg.UpdatedAt,
				})
			}
			writeJSON(w, http.StatusOK, map[string]any{"projectId": projectID, "assetId": assetID, "segments": items})
			return
		}
		seg, err := s.service.GetSegment(ctx, b, projectID, assetID, term)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"projectId": projectID,
			"assetId":   assetID,
			"term":      term,
			"svg":       seg.SVG,
			"bboxJson":  seg.BBoxJSON,
			"updatedAt": seg.UpdatedAt,
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, b Backend, projectID string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Expected multipart form with a file field", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Expected multipart form with a file field", nil)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = storage.ContentTypeFor(header.Filename)
	}
	asset, err := s.service.UploadAsset(r.Context(), b, projectID, Upload{
		FileName:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"asset": asset})
}

func (s *HTTPServer) handleCanvas(w http.ResponseWriter, r *http.Request, b Backend, projectID string) {
	switch r.Method {
	case http.MethodGet:
		payload, err := s.service.GetCanvas(r.Context(), b, projectID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPut:
		var body SaveCanvasInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid body", nil)
			return
		}
		payload, err := s.service.SaveCanvas(r.Context(), b, projectID, body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleView(w http.ResponseWriter, r *http.Request, b Backend, projectID string) {
	switch r.Method {
	case http.MethodGet:
		payload, err := s.service.GetView(r.Context(), b, projectID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPut:
		var body SaveViewInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid body", nil)
			return
		}
		payload, err := s.service.SaveView(r.Context(), b, projectID, body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleAssets(w http.ResponseWriter, r *http.Request, b Backend, assetID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 1 && rest[0] == "restore" && r.Method == http.MethodPost {
		payload, err := s.service.RestoreAsset(ctx, b, assetID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}
	if len(rest) != 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch r.Method {
	case http.MethodGet:
		asset, err := s.service.GetAsset(ctx, b, assetID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"asset": asset})
	case http.MethodDelete:
		var (
			payload map[string]any
			err     error
		)
		if r.URL.Query().Get("permanent") == "true" {
			payload, err = s.service.DeleteAssetPermanently(ctx, b, assetID)
		} else {
			payload, err = s.service.TrashAsset(ctx, b, assetID)
		}
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		methodNotAllowed(w)
	}
}

// handleFiles serves /files/projects/{id}/preview and
// /files/projects/{id}/{assets|thumbs}/{name}.
func (s *HTTPServer) handleFiles(w http.ResponseWriter, r *http.Request, parts []string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	backend, ok := s.backend(w, r)
	if !ok {
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "preview":
		rc, err := s.service.OpenPreview(r.Context(), backend, parts[0])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "image/webp")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = io.Copy(w, rc)
		}
	case len(parts) == 3 && storage.Kind(parts[1]).Valid():
		rc, info, err := s.service.OpenFile(r.Context(), backend, parts[0], storage.Kind(parts[1]), parts[2])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", info.ContentType)
		if info.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		}
		w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = io.Copy(w, rc)
		}
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		current := s.service.Settings()
		writeJSON(w, http.StatusOK, map[string]any{
			"settings": current.Public(),
			"defaults": map[string]any{"aiTokenSet": current.TokenSet()},
		})
	case http.MethodPut:
		var update settings.Update
		if err := decodeBody(r, &update); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid body", nil)
			return
		}
		next, err := s.service.UpdateSettings(update)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "settings": next.Public()})
	default:
		methodNotAllowed(w)
	}
}

func metadataPayload(projectID, assetID string, meta *store.ManualMetadata) map[string]any {
	payload := map[string]any{
		"projectId": projectID,
		"assetId":   assetID,
		"notes":     nil,
		"tags":      nil,
	}
	if meta != nil {
		payload["notes"] = meta.Notes
		if meta.Tags != nil {
			payload["tags"] = meta.Tags
		}
		payload["updatedAt"] = meta.UpdatedAt
	}
	return payload
}

func decodeMetadataUpdate(r *http.Request) (MetadataUpdate, error) {
	var raw map[string]json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		return MetadataUpdate{}, err
	}
	if raw == nil {
		return MetadataUpdate{}, fmt.Errorf("metadata body must be an object")
	}
	var update MetadataUpdate
	if value, ok := raw["notes"]; ok {
		update.NotesSet = true
		if err := json.Unmarshal(value, &update.Notes); err != nil {
			return MetadataUpdate{}, fmt.Errorf("notes: %w", err)
		}
	}
	if value, ok := raw["tags"]; ok {
		update.TagsSet = true
		if err := json.Unmarshal(value, &update.Tags); err != nil {
			return MetadataUpdate{}, fmt.Errorf("tags: %w", err)
		}
	}
	return update, nil
}

func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return store.DefaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidQuery("")
	}
	return limit, nil
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "request_id", requestIDFrom(r.Context()), "path", r.URL.Path, "code", code, "error", err)
	}
	writeError(w, status, code, message, details)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.log.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
			"mode", s.service.Mode(),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError merges map details into the top-level body so clients read
// fields such as refs or canvasRev directly.
func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{}
	switch d := details.(type) {
	case nil:
	case map[string]any:
		for k, v := range d {
			response[k] = v
		}
	default:
		response["details"] = d
	}
	response["code"] = code
	response["error"] = message
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return fmt.Errorf("missing JSON body")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// decodeStrict rejects unknown fields. An empty body decodes as {}.
func decodeStrict(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
