package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"markdown-annotator/auth"
	"markdown-annotator/internal/config"
	"markdown-annotator/internal/metrics"
	"markdown-annotator/internal/testutil"
	"markdown-annotator/internal/worker"
	"markdown-annotator/redis"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type client struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func (c *client) do(method, path string, body interface{}) (int, map[string]interface{}, []byte) {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w.Code, decoded, w.Body.Bytes()
}

func newTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth.Configure("app-test-secret", time.Hour)

	cfg := config.Config{Environment: "test", BaseURL: "http://example.test", FrontendAddress: "http://example.test"}
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	pool := worker.NewWorkerPool(1, 8, time.Second)
	t.Cleanup(pool.Shutdown)

	svc := newServices(testutil.NewDB(t), redis.NewCache(nil, 0), pool, m, cfg)
	return newRouter(svc, m, registry, cfg)
}

func login(t *testing.T, router *gin.Engine, username string) *client {
	anon := &client{t: t, router: router}
	code, _, _ := anon.do("POST", "/register", map[string]string{
		"username": username, "password": "secret1", "confirm": "secret1",
	})
	require.Equal(t, http.StatusCreated, code)

	code, body, _ := anon.do("POST", "/login", map[string]string{"username": username, "password": "secret1"})
	require.Equal(t, http.StatusOK, code)
	return &client{t: t, router: router, token: body["access_token"].(string)}
}

func TestApp_AnnotationFlow(t *testing.T) {
	router := newTestRouter(t)
	alice := login(t, router, "alice")
	bob := login(t, router, "bob")
	carol := login(t, router, "carol")

	code, body, _ := alice.do("POST", "/documents", map[string]string{"title": "Doc1", "markdown": "Hello world"})
	require.Equal(t, http.StatusCreated, code)
	docID := uint64(body["id"].(float64))
	annotations := fmt.Sprintf("/api/documents/%d/annotations", docID)

	code, _, _ = bob.do("POST", annotations, map[string]int{"start": 0, "end": 5})
	assert.Equal(t, http.StatusForbidden, code)

	code, _, _ = alice.do("POST", fmt.Sprintf("/share/%d", docID), map[string]string{"username": "bob", "role": "annotator"})
	require.Equal(t, http.StatusOK, code)

	code, body, _ = bob.do("POST", annotations, map[string]interface{}{"start": 0, "end": 5, "note": "greeting"})
	require.Equal(t, http.StatusCreated, code)
	annotationID := uint64(body["id"].(float64))
	assert.Equal(t, "Hello", body["anchor"])

	var list []map[string]interface{}
	code, _, raw := bob.do("GET", annotations, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list, 1)
	assert.Equal(t, true, list[0]["can_delete"])
	assert.Equal(t, "greeting", list[0]["content"])

	code, _, _ = carol.do("GET", annotations, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _, _ = alice.do("PUT", fmt.Sprintf("/documents/%d", docID), map[string]string{"markdown": "Hello again world"})
	require.Equal(t, http.StatusCreated, code)

	code, _, raw = alice.do("GET", annotations, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Empty(t, list)

	code, body, _ = bob.do("GET", fmt.Sprintf("/api/annotations/%d", annotationID), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["version_number"])

	code, body, _ = carol.do("GET", fmt.Sprintf("/documents/%d", docID), nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["code"])
}

func TestApp_AnonymousAnnotateIsUnauthenticated(t *testing.T) {
	router := newTestRouter(t)
	alice := login(t, router, "alice")

	code, body, _ := alice.do("POST", "/documents", map[string]string{"title": "Doc", "markdown": "text"})
	require.Equal(t, http.StatusCreated, code)
	docID := uint64(body["id"].(float64))

	anon := &client{t: t, router: router}
	code, _, _ = anon.do("POST", fmt.Sprintf("/api/documents/%d/annotations", docID), map[string]int{"start": 0, "end": 2})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body, _ = alice.do("GET", fmt.Sprintf("/documents/%d/share-link", docID), nil)
	require.Equal(t, http.StatusOK, code)
	link := body["url"].(string)
	token := link[strings.Index(link, "?t=")+3:]

	code, body, _ = anon.do("GET", fmt.Sprintf("/documents/%d?t=%s", docID, token), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Doc", body["title"])
}

func TestApp_OperationalEndpoints(t *testing.T) {
	router := newTestRouter(t)
	anon := &client{t: t, router: router}

	code, body, _ := anon.do("GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, _, raw := anon.do("GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(raw), "annotator_http_request_duration_seconds")
}
