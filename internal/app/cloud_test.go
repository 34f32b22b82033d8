package app

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasvault/api/internal/settings"
	"canvasvault/api/internal/storage"
	"canvasvault/api/internal/store"
)

func signup(t *testing.T, env *testEnv, email string) map[string]any {
	t.Helper()
	rr, payload := env.do(t, http.MethodPost, "/api/auth/signup", `{"email":"`+email+`","password":"correct-horse"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.NotNil(t, payload["session"])
	return payload["session"].(map[string]any)
}

func TestCloudModeRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	cloud, _ := env.withCloud(t)
	env.setMode(t, settings.ModeCloud)

	rr, payload := env.do(t, http.MethodGet, "/api/projects", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", payload["code"])

	rr, _ = env.do(t, http.MethodGet, "/api/projects", "", "Authorization", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	sess := signup(t, env, "ada@example.com")
	bearer := "Bearer " + sess["accessToken"].(string)

	projectID := env.createProject(t, "Cloud board", "Authorization", bearer)
	_, err := cloud.GetProject(context.Background(), projectID)
	require.NoError(t, err)
	local, err := env.local.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, local)

	rr, payload = env.do(t, http.MethodGet, "/api/projects", "", "Authorization", bearer)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, payload["projects"], 1)
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	env.withCloud(t)
	env.setMode(t, settings.ModeCloud)

	rr, payload := env.do(t, http.MethodGet, "/api/auth/session", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, payload["user"])
	assert.Nil(t, payload["session"])

	first := signup(t, env, "grace@example.com")

	rr, payload = env.do(t, http.MethodPost, "/api/auth/signup", `{"email":"grace@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "EMAIL_EXISTS", payload["code"])

	rr, payload = env.do(t, http.MethodPost, "/api/auth/signup", `{"email":"nope","password":"correct-horse"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr, payload = env.do(t, http.MethodPost, "/api/auth/login", `{"email":"grace@example.com","password":"wrong-horse"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", payload["code"])

	rr, payload = env.do(t, http.MethodPost, "/api/auth/login", `{"email":"grace@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	loginSession := payload["session"].(map[string]any)
	bearer := "Bearer " + loginSession["accessToken"].(string)

	rr, payload = env.do(t, http.MethodGet, "/api/auth/session", "", "Authorization", bearer)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "grace@example.com", payload["user"].(map[string]any)["email"])

	refreshBody := `{"refreshToken":"` + first["refreshToken"].(string) + `"}`
	rr, payload = env.do(t, http.MethodPost, "/api/auth/refresh", refreshBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEmpty(t, payload["session"].(map[string]any)["accessToken"])

	rr, _ = env.do(t, http.MethodPost, "/api/auth/refresh", refreshBody)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, _ = env.do(t, http.MethodPost, "/api/auth/logout", `{"refreshToken":"`+loginSession["refreshToken"].(string)+`"}`, "Authorization", bearer)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, _ = env.do(t, http.MethodGet, "/api/projects", "", "Authorization", bearer)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, _ = env.do(t, http.MethodPost, "/api/auth/refresh", `{"refreshToken":"`+loginSession["refreshToken"].(string)+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCloudUnavailableWithoutSessionService(t *testing.T) {
	env := newTestEnv(t)
	cloud, cloudDisk := newLocalBackend(t)
	env.svc.remoteFor = func(string) (store.Adapter, storage.Files) {
		return cloud, cloudDisk
	}
	env.setMode(t, settings.ModeCloud)

	rr, payload := env.do(t, http.MethodGet, "/api/projects", "", "Authorization", "Bearer some-token")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "CLOUD_UNAVAILABLE", payload["code"])

	rr, payload = env.do(t, http.MethodGet, "/api/projects", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "CLOUD_UNAVAILABLE", payload["code"])
}

func TestAuthUnavailableWithoutRemote(t *testing.T) {
	env := newTestEnv(t)
	rr, payload := env.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "AUTH_UNAVAILABLE", payload["code"])
}

func TestMigrateToCloudCopiesProjects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	projectID := env.createProject(t, "Local board")
	rr, payload := env.upload(t, projectID, "a.png", "image/png", pngBytes(t, 64, 32, 120))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assetID := payload["asset"].(map[string]any)["id"].(string)

	rr, _ = env.do(t, http.MethodPut, "/api/projects/"+projectID+"/assets/"+assetID+"/metadata", `{"notes":"keep","tags":["dusk"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	object := `{"id":"img","type":"image","asset_id":"` + assetID + `","x":5,"y":6,"scale_x":1,"scale_y":1,"rotation":0,"z_index":3}`
	rr, _ = env.do(t, http.MethodPut, "/api/projects/"+projectID+"/canvas", `{"objects":[`+object+`]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr, _ = env.do(t, http.MethodPut, "/api/projects/"+projectID+"/view", `{"world_x":3,"world_y":4,"zoom":2}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, env.local.UpsertEmbedding(ctx, store.Embedding{AssetID: assetID, Model: "clip", Vector: []float32{1, 0, 0}}))

	rr, payload = env.do(t, http.MethodPost, "/api/migration/to-cloud", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "NOT_CLOUD_MODE", payload["code"])

	cloud, cloudDisk := env.withCloud(t)
	env.setMode(t, settings.ModeCloud)
	sess := signup(t, env, "lin@example.com")

	rr, payload = env.do(t, http.MethodPost, "/api/migration/to-cloud", "", "Authorization", "Bearer "+sess["accessToken"].(string))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, float64(1), payload["migrated"])
	assert.Nil(t, payload["errors"])

	projects, err := cloud.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	cloudProjectID := projects[0].ID
	assert.Equal(t, "Local board", projects[0].Name)

	assets, err := cloud.ListAllAssets(ctx, cloudProjectID)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, assetID, assets[0].ID)
	exists, err := cloudDisk.Exists(ctx, assets[0].StoragePath)
	require.NoError(t, err)
	assert.True(t, exists)

	meta, err := cloud.GetManualMetadata(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, []string{"dusk"}, meta.Tags)

	objects, err := cloud.GetCanvasObjects(ctx, cloudProjectID)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, assetID, *objects[0].AssetID)

	embedding, err := cloud.GetEmbedding(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, embedding.Vector)
	nearest, err := cloud.VectorSearch(ctx, cloudProjectID, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, nearest, 1)

	view, err := cloud.GetProjectView(ctx, cloudProjectID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, view.Zoom)

	migratedAt, err := env.local.GetAppState(ctx, migratedAtKey)
	require.NoError(t, err)
	assert.NotEmpty(t, migratedAt)
}

func TestCloudSetupChecks(t *testing.T) {
	env := newTestEnv(t)

	rr, payload := env.do(t, http.MethodGet, "/api/cloud/check-schema", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "NOT_CLOUD_MODE", payload["code"])

	env.setMode(t, settings.ModeCloud)
	rr, payload = env.do(t, http.MethodGet, "/api/cloud/check-schema", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "CLOUD_UNAVAILABLE", payload["code"])

	env.svc.missingTables = func(context.Context) ([]string, error) {
		return []string{"app_state"}, nil
	}
	rr, payload = env.do(t, http.MethodGet, "/api/cloud/check-schema", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, payload["schemaReady"])
	assert.Equal(t, []any{"app_state"}, payload["missingTables"])
	assert.Len(t, payload["existingTables"], len(RequiredTables)-1)

	rr, payload = env.do(t, http.MethodGet, "/api/cloud/verify-setup", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, payload["ready"])
	storageReport := payload["storage"].(map[string]any)
	assert.Len(t, storageReport["missingBuckets"], len(storage.RequiredBuckets))
	summary := payload["summary"].(map[string]any)
	assert.Equal(t, "9/10", summary["databaseTables"])
}

func TestCloudTrashUsesCloudFiles(t *testing.T) {
	env := newTestEnv(t)
	_, cloudDisk := env.withCloud(t)
	env.setMode(t, settings.ModeCloud)
	bearer := "Bearer " + signup(t, env, "mo@example.com")["accessToken"].(string)

	projectID := env.createProject(t, "C", "Authorization", bearer)
	rr, payload := env.upload(t, projectID, "c.png", "image/png", pngBytes(t, 10, 10, 77), "Authorization", bearer)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	asset := payload["asset"].(map[string]any)

	rr, _ = env.do(t, http.MethodDelete, "/api/assets/"+asset["id"].(string), "", "Authorization", bearer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	path := asset["storage_path"].(string)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(cloudDisk.TrashPath(projectID, storage.KindAssets, path))
	assert.NoError(t, err)
}
