package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/mikebank/transfer-service/config"
)

func authTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SecretKeyAuthMiddleware())
	router.GET("/transfers/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestSecretKeyAuthMiddleware(t *testing.T) {
	config.MockConfig(&config.Configuration{
		Server:         config.ServerConfig{Secure: true, SecretKey: "top-secret"},
		DataSource:     config.DataSourceConfig{Dns: "postgres://localhost/test"},
		Redis:          config.RedisConfig{Dns: "localhost:6379"},
		AccountService: config.AccountServiceConfig{Url: "http://localhost:4100"},
	})

	router := authTestRouter()

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"valid key", "top-secret", http.StatusOK},
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "not-the-key", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/transfers/trf_1", nil)
			if tt.key != "" {
				req.Header.Set(KeyHeader, tt.key)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
