package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func testRouter(apiKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyMiddleware(apiKey))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		provided   string
		wantStatus int
	}{
		{
			name:       "auth disabled when no key configured",
			configured: "",
			provided:   "",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid key accepted",
			configured: "secret",
			provided:   "secret",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing key rejected",
			configured: "secret",
			provided:   "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong key rejected",
			configured: "secret",
			provided:   "guess",
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRouter(tt.configured)

			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.provided != "" {
				req.Header.Set("X-API-Key", tt.provided)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
