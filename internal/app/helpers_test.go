package app

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"canvasvault/api/internal/authpw"
	"canvasvault/api/internal/config"
	"canvasvault/api/internal/session"
	"canvasvault/api/internal/settings"
	"canvasvault/api/internal/storage"
	"canvasvault/api/internal/store"
	"canvasvault/api/internal/util"
)

type testEnv struct {
	svc    *Service
	server *HTTPServer
	local  *store.LocalStore
	disk   *storage.Disk
}

func newLocalBackend(t *testing.T) (*store.LocalStore, *storage.Disk) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	db, err := store.OpenSQLite(ctx, filepath.Join(dir, "canvasvault.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(ctx, db, store.DialectSQLite))

	disk, err := storage.NewDisk(filepath.Join(dir, "data"))
	require.NoError(t, err)
	return store.NewLocalStore(db), disk
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	local, disk := newLocalBackend(t)
	svc := New(Deps{
		Config: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
			AppURL:     "http://localhost:5173",
		},
		Settings: settings.Open(filepath.Join(t.TempDir(), "settings.json")),
		Local:    local,
		Disk:     disk,
	})
	return &testEnv{svc: svc, server: NewHTTPServer(svc, nil, "*"), local: local, disk: disk}
}

// withCloud points cloud mode at a second local store and disk and enables
// auth with an in-memory user store and miniredis sessions.
func (e *testEnv) withCloud(t *testing.T) (*store.LocalStore, *storage.Disk) {
	t.Helper()
	cloud, cloudDisk := newLocalBackend(t)
	e.svc.remoteFor = func(string) (store.Adapter, storage.Files) {
		return cloud, cloudDisk
	}

	mr := miniredis.RunT(t)
	sessions := session.NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	users := newFakeUsers()
	e.svc.users = users
	e.svc.sessions = sessions
	e.svc.authpw = authpw.NewService(users, false)
	return cloud, cloudDisk
}

func (e *testEnv) setMode(t *testing.T, mode settings.Mode) {
	t.Helper()
	_, err := e.svc.UpdateSettings(settings.Update{Mode: &mode})
	require.NoError(t, err)
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]store.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]store.User{}}
}

func (f *fakeUsers) CreateUser(_ context.Context, email, hash string, verified bool, token string, _ *time.Time) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return store.User{}, store.ErrConflict
		}
	}
	u := store.User{ID: util.NewID(), Email: email, PasswordHash: hash, EmailVerified: verified, VerificationToken: token}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) VerifyUserEmail(_ context.Context, token string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if token != "" && u.VerificationToken == token {
			u.EmailVerified = true
			u.VerificationToken = ""
			f.users[id] = u
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (e *testEnv) do(t *testing.T, method, target, body string, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return e.serve(t, req)
}

func (e *testEnv) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	var payload map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") && rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), rr.Body.String())
	}
	return rr, payload
}

func (e *testEnv) upload(t *testing.T, projectID, fileName, contentType string, data []byte, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + fileName + `"`}
	h["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID+"/assets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return e.serve(t, req)
}

func (e *testEnv) createProject(t *testing.T, name string, headers ...string) string {
	t.Helper()
	rr, payload := e.do(t, http.MethodPost, "/api/projects", `{"name":"`+name+`"}`, headers...)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return payload["project"].(map[string]any)["id"].(string)
}

func pngBytes(t *testing.T, w, h int, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: shade, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
