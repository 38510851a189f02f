package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"referral-ledger/pkg/config"
	"referral-ledger/pkg/errutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type fakeHealth struct{}

func (fakeHealth) Liveness(c *gin.Context)  { c.Status(http.StatusOK) }
func (fakeHealth) Readiness(c *gin.Context) { c.Status(http.StatusServiceUnavailable) }

func TestEngineRoutes(t *testing.T) {
	r := NewEngine(&config.Config{AppEnv: "test"})
	registerHealthEndpoint(r, fakeHealth{})
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errutil.Conflict("taken", errors.New("duplicate")))
	})

	for path, want := range map[string]int{
		"/healthz": http.StatusOK,
		"/readyz":  http.StatusServiceUnavailable,
		"/metrics": http.StatusOK,
		"/boom":    http.StatusConflict,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, want, w.Code, path)
	}
}
