// api/handlers/data_handler_integration_test.go
package handlers_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/nebula-dataapi/api"
	"github.com/Annany2002/nebula-dataapi/config"
	"github.com/Annany2002/nebula-dataapi/internal/auth"
	"github.com/Annany2002/nebula-dataapi/internal/cache"
	"github.com/Annany2002/nebula-dataapi/internal/engine"
	"github.com/Annany2002/nebula-dataapi/internal/registry"
	"github.com/Annany2002/nebula-dataapi/internal/storage"
)

const testSecret = "test_secret_key_for_integration_tests_1234567890"

// testDBSetup creates a temporary SQLite DB with the test models applied.
func testDBSetup(t *testing.T) (*sql.DB, *registry.Registry, *config.Config) {
	t.Helper()

	testCfg := &config.Config{
		ServerPort:         ":0",
		JWTSecret:          testSecret,
		JWTExpiration:      time.Minute * 5,
		MetadataDbDir:      t.TempDir(),
		MetadataDbFile:     "test_metadata.db",
		Debug:              true,
		CORSAllowedOrigins: []string{"*"},
	}

	db, err := storage.ConnectMetadataDB(testCfg)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
	})

	gdb, err := storage.OpenGorm(db)
	require.NoError(t, err)
	reg := registry.New(gdb)
	require.NoError(t, reg.Migrate(context.Background()))
	require.NoError(t, reg.LoadFile(context.Background(), "testdata/models.yaml"))

	return db, reg, testCfg
}

// setupTestServer creates a test server instance with a test DB.
func setupTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, reg, cfg := testDBSetup(t)
	responses := cache.New(64, time.Minute)
	svc := engine.New(reg, db, engine.WithCache(responses))

	router := api.SetupRouter(api.Dependencies{Engine: svc, Registry: reg, Cache: responses}, cfg)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return server, reg
}

func bearer(t *testing.T, userID string) map[string]string {
	t.Helper()
	token, err := auth.GenerateJWT(userID, testSecret, time.Minute)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

// call sends body as JSON and decodes the JSON response into a map.
func call(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(res.Body).Decode(&decoded)
	return res, decoded
}

func TestPing(t *testing.T) {
	server, _ := setupTestServer(t)
	res, err := http.Get(server.URL + "/ping")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRecordLifecycle(t *testing.T) {
	server, _ := setupTestServer(t)
	base := server.URL + "/api/v1/data/notes"
	alice := bearer(t, "alice")

	var id int
	t.Run("Create Forbidden For Anonymous", func(t *testing.T) {
		res, body := call(t, http.MethodPost, base, map[string]any{"title": "x"}, nil)
		assert.Equal(t, http.StatusForbidden, res.StatusCode)
		assert.Equal(t, "access denied by security rules", body["error"])
	})

	t.Run("Create Success", func(t *testing.T) {
		res, body := call(t, http.MethodPost, base, map[string]any{"title": "hello", "owner_id": "alice", "api_token": "t0k"}, alice)
		require.Equal(t, http.StatusCreated, res.StatusCode)
		data := body["data"].(map[string]any)
		assert.Equal(t, "hello", data["title"])
		assert.NotContains(t, data, "api_token", "hidden fields never leave the server")
		id = int(data["id"].(float64))
	})

	t.Run("Create Validation Failed", func(t *testing.T) {
		res, body := call(t, http.MethodPost, base, map[string]any{"owner_id": "alice"}, alice)
		assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
		assert.Equal(t, "Validation failed", body["message"])
		assert.Contains(t, body["errors"], "title")
	})

	t.Run("Malformed Body", func(t *testing.T) {
		res, _ := call(t, http.MethodPost, base, "[1,2", alice)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("Show Owner Only", func(t *testing.T) {
		res, body := call(t, http.MethodGet, fmt.Sprintf("%s/%d", base, id), nil, alice)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "hello", body["data"].(map[string]any)["title"])

		res, _ = call(t, http.MethodGet, fmt.Sprintf("%s/%d", base, id), nil, bearer(t, "bob"))
		assert.Equal(t, http.StatusForbidden, res.StatusCode)
	})

	t.Run("Update", func(t *testing.T) {
		res, body := call(t, http.MethodPut, fmt.Sprintf("%s/%d", base, id), map[string]any{"title": "renamed"}, alice)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "renamed", body["data"].(map[string]any)["title"])
	})

	t.Run("Soft Delete And Restore", func(t *testing.T) {
		res, body := call(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, id), nil, alice)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "Record deleted successfully", body["message"])

		res, _ = call(t, http.MethodGet, fmt.Sprintf("%s/%d", base, id), nil, alice)
		assert.Equal(t, http.StatusNotFound, res.StatusCode)

		res, _ = call(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, id), nil, alice)
		assert.Equal(t, http.StatusOK, res.StatusCode, "deleting a trashed record is a no-op")

		res, body = call(t, http.MethodPost, fmt.Sprintf("%s/%d/restore", base, id), nil, alice)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Nil(t, body["data"].(map[string]any)["deleted_at"])

		res, body = call(t, http.MethodGet, base, nil, alice)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Len(t, body["data"], 1)
	})

	t.Run("Force Delete", func(t *testing.T) {
		res, _ := call(t, http.MethodDelete, fmt.Sprintf("%s/%d?force=1", base, id), nil, alice)
		require.Equal(t, http.StatusOK, res.StatusCode)
		res, _ = call(t, http.MethodPost, fmt.Sprintf("%s/%d/restore", base, id), nil, alice)
		assert.Equal(t, http.StatusNotFound, res.StatusCode, "purged rows cannot be restored")
	})
}

func TestNotFound(t *testing.T) {
	server, _ := setupTestServer(t)
	alice := bearer(t, "alice")

	tests := []struct {
		name string
		path string
	}{
		{"Unknown Model", "/api/v1/data/ghosts"},
		{"Non Numeric ID", "/api/v1/data/items/abc"},
		{"Missing Record", "/api/v1/data/items/999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, body := call(t, http.MethodGet, server.URL+tt.path, nil, alice)
			assert.Equal(t, http.StatusNotFound, res.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRestoreWithoutSoftDeletes(t *testing.T) {
	server, _ := setupTestServer(t)
	res, _ := call(t, http.MethodPost, server.URL+"/api/v1/data/items/1/restore", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestListEnvelope(t *testing.T) {
	server, _ := setupTestServer(t)
	base := server.URL + "/api/v1/data/items"
	for i := 0; i < 3; i++ {
		res, _ := call(t, http.MethodPost, base, map[string]any{"name": fmt.Sprintf("item-%d", i), "done": i == 1}, nil)
		require.Equal(t, http.StatusCreated, res.StatusCode)
	}

	res, body := call(t, http.MethodGet, base+"?per_page=2&page=2", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(2), meta["current_page"])
	assert.Equal(t, float64(2), meta["last_page"])
	assert.Equal(t, float64(2), meta["per_page"])
	assert.Equal(t, float64(3), meta["total"])
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "item-0", data[0].(map[string]any)["name"], "default order is id desc")

	res, body = call(t, http.MethodGet, base+"?filter[done]=1", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	data = body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, true, data[0].(map[string]any)["done"])
}

func TestSchemaEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)
	res, body := call(t, http.MethodGet, server.URL+"/api/v1/data/notes/schema", nil, bearer(t, "alice"))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "notes", body["model"].(map[string]any)["table_name"])
	assert.Len(t, body["fields"], 3)
	assert.Len(t, body["endpoints"], 7, "soft delete models expose restore")
}

func TestBulkCreate(t *testing.T) {
	server, _ := setupTestServer(t)
	url := server.URL + "/api/v1/data/items/bulk"

	t.Run("Success", func(t *testing.T) {
		rows := []map[string]any{{"name": "a"}, {"name": "b"}}
		res, body := call(t, http.MethodPost, url, map[string]any{"data": rows}, nil)
		require.Equal(t, http.StatusCreated, res.StatusCode)
		data := body["data"].(map[string]any)
		assert.Equal(t, float64(2), data["count"])
		assert.Equal(t, "items", data["table"])
	})

	t.Run("Malformed", func(t *testing.T) {
		for _, raw := range []string{`{"data": []}`, `{"data": [1, 2]}`, `{"rows": [{}]}`, `[]`} {
			res, _ := call(t, http.MethodPost, url, raw, nil)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode, raw)
		}
	})

	t.Run("Too Large", func(t *testing.T) {
		rows := make([]map[string]any, engine.MaxBatchSize+1)
		for i := range rows {
			rows[i] = map[string]any{"name": fmt.Sprintf("n%d", i)}
		}
		res, _ := call(t, http.MethodPost, url, map[string]any{"data": rows}, nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, res.StatusCode)
	})

	t.Run("Duplicate Within Batch", func(t *testing.T) {
		rows := []map[string]any{{"name": "x", "code": "same"}, {"name": "y", "code": "same"}}
		res, body := call(t, http.MethodPost, url, map[string]any{"data": rows}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
		assert.Contains(t, body["errors"], "data.1.code")
	})

	res, body := call(t, http.MethodGet, server.URL+"/api/v1/data/items", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, float64(2), body["meta"].(map[string]any)["total"], "failed batches persist nothing")
}

func TestAuthentication(t *testing.T) {
	server, reg := setupTestServer(t)
	base := server.URL + "/api/v1/data/items"

	readKey, _, err := reg.CreateAPIKey(context.Background(), "reader", "alice", []string{"read"}, nil, nil)
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	expiredKey, _, err := reg.CreateAPIKey(context.Background(), "old", "alice", nil, nil, &past)
	require.NoError(t, err)

	tests := []struct {
		name    string
		method  string
		headers map[string]string
		status  int
	}{
		{"Read Key Lists", http.MethodGet, map[string]string{"Authorization": "ApiKey " + readKey}, http.StatusOK},
		{"Read Key Via Header", http.MethodGet, map[string]string{"X-API-Key": readKey}, http.StatusOK},
		{"Read Key Cannot Create", http.MethodPost, map[string]string{"X-API-Key": readKey}, http.StatusForbidden},
		{"Expired Key", http.MethodGet, map[string]string{"X-API-Key": expiredKey}, http.StatusUnauthorized},
		{"Unknown Key", http.MethodGet, map[string]string{"X-API-Key": "neb_doesnotexist"}, http.StatusUnauthorized},
		{"Garbage Bearer", http.MethodGet, map[string]string{"Authorization": "Bearer not.a.jwt"}, http.StatusUnauthorized},
		{"Unsupported Scheme", http.MethodGet, map[string]string{"Authorization": "Basic abc"}, http.StatusUnauthorized},
		{"Anonymous", http.MethodGet, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := call(t, tt.method, base, map[string]any{"name": "n"}, tt.headers)
			assert.Equal(t, tt.status, res.StatusCode)
		})
	}
}

func TestResponseCache(t *testing.T) {
	server, _ := setupTestServer(t)
	base := server.URL + "/api/v1/data/items"

	res, _ := call(t, http.MethodGet, base, nil, nil)
	assert.Equal(t, "MISS", res.Header.Get("X-Cache"))
	res, body := call(t, http.MethodGet, base, nil, nil)
	assert.Equal(t, "HIT", res.Header.Get("X-Cache"))
	assert.Empty(t, body["data"])

	res, _ = call(t, http.MethodGet, base+"?nocache=1", nil, nil)
	assert.Equal(t, "BYPASS", res.Header.Get("X-Cache"))

	res, _ = call(t, http.MethodPost, base, map[string]any{"name": "fresh"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, body = call(t, http.MethodGet, base, nil, nil)
	assert.Equal(t, "MISS", res.Header.Get("X-Cache"), "writes invalidate the table")
	assert.Len(t, body["data"], 1)

	res, _ = call(t, http.MethodGet, base, nil, bearer(t, "alice"))
	assert.Equal(t, "MISS", res.Header.Get("X-Cache"), "entries are scoped per caller")
}
