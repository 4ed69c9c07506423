package middleware

import (
	"context"
	"encoding/json"
	defError "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"markdown-annotator/auth"
	"markdown-annotator/internal/domain"
	"markdown-annotator/internal/errors"
	"markdown-annotator/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type MockUserProvider struct {
	mock.Mock
}

func (m *MockUserProvider) GetUserByID(ctx context.Context, id uint64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger(), ErrorHandler())
	router.Use(mw...)
	router.GET("/who", func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusOK, gin.H{"user": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user.Username})
	})
	return router
}

func get(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/who", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthMiddleware(t *testing.T) {
	auth.Configure("middleware-test-secret", time.Hour)
	users := new(MockUserProvider)
	users.On("GetUserByID", mock.Anything, uint64(1)).Return(&domain.User{ID: 1, Username: "alice"}, nil)
	users.On("GetUserByID", mock.Anything, uint64(2)).Return(nil, gorm.ErrRecordNotFound)

	m := &Auth{UserService: users}
	router := newRouter(m.AuthMiddleWare())

	w := get(router, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, errors.CodeUnauthenticated, decode(t, w)["code"])

	w = get(router, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := auth.GenerateAccessToken(1)
	require.NoError(t, err)
	w = get(router, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode(t, w)["user"])

	stale, err := auth.GenerateAccessToken(2)
	require.NoError(t, err)
	w = get(router, stale)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalAuth(t *testing.T) {
	auth.Configure("middleware-test-secret", time.Hour)
	users := new(MockUserProvider)
	users.On("GetUserByID", mock.Anything, uint64(1)).Return(&domain.User{ID: 1, Username: "alice"}, nil)

	m := &Auth{UserService: users}
	router := newRouter(m.OptionalAuth())

	w := get(router, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["user"])

	w = get(router, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := auth.GenerateAccessToken(1)
	require.NoError(t, err)
	w = get(router, token)
	assert.Equal(t, "alice", decode(t, w)["user"])
}

func TestErrorHandler_Mapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"api error", errors.NoVersion("nothing yet"), http.StatusConflict, errors.CodeNoVersion},
		{"record not found", gorm.ErrRecordNotFound, http.StatusNotFound, errors.CodeNotFound},
		{"raw error", defError.New("boom"), http.StatusInternalServerError, errors.CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.Use(ErrorHandler())
			router.GET("/fail", func(c *gin.Context) {
				c.Error(tc.err)
			})

			req := httptest.NewRequest("GET", "/fail", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, tc.code, body["code"])
			assert.NotContains(t, w.Body.String(), "boom")
		})
	}
}

func TestRequestLogger_SetsID(t *testing.T) {
	router := newRouter()

	w := get(router, "")
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest("GET", "/who", nil)
	req.Header.Set(RequestIDHeader, id)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, id, w.Header().Get(RequestIDHeader))
}

func TestMetrics_ObservesRoute(t *testing.T) {
	m := metrics.NewNop()
	router := newRouter(Metrics(m))

	get(router, "")
	get(router, "")

	assert.Equal(t, 1, promtest.CollectAndCount(m.RequestDuration))
}
