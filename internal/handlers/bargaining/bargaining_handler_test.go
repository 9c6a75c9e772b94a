package bargaining

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bargain-service/internal/domain/catalog"
	"bargain-service/internal/middleware"
	"bargain-service/internal/repository/memory"
	service "bargain-service/internal/service/bargaining"
	"bargain-service/internal/service/quota"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const userID int64 = 7

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newRouter(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := memory.NewStore()
	ledger := quota.NewLedger(db.Memberships(), db.Plans(), db.Settings(), 10, zap.NewNop())
	h := NewBargainingHandler(service.NewBargainingService(db.Settings(), ledger, db.Storefront(), db, zap.NewNop()))

	r := gin.New()
	authed := r.Group("/", func(c *gin.Context) {
		if c.GetHeader("X-Test-User") != "" {
			middleware.SetUser(c, userID)
		}
		c.Next()
	})
	authed.GET("/limits", h.GetLimits)
	authed.GET("/settings", h.GetSettings)
	authed.POST("/enable", h.Enable)
	authed.POST("/disable", h.Disable)
	authed.POST("/bulk", h.BulkUpdate)
	return r, db
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", "1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func seedProducts(db *memory.Store, n int) {
	for i := 1; i <= n; i++ {
		db.PutVariant(&catalog.Variant{
			UserID:            userID,
			ProductID:         fmt.Sprintf("p%d", i),
			VariantID:         "v1",
			Price:             100,
			InventoryQuantity: 3,
		})
	}
}

func TestGetLimits_RequiresUser(t *testing.T) {
	r, _ := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/limits", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "unauthenticated", env.Error)
}

func TestGetLimits_FreeTier(t *testing.T) {
	r, _ := newRouter(t)

	code, env := do(t, r, http.MethodGet, "/limits", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	var limits struct {
		MaxProducts      int    `json:"max_products"`
		CurrentlyEnabled int    `json:"currently_enabled"`
		PlanSlug         string `json:"plan_slug"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &limits))
	assert.Equal(t, 10, limits.MaxProducts)
	assert.Equal(t, 0, limits.CurrentlyEnabled)
	assert.Equal(t, "free", limits.PlanSlug)
}

func TestEnable_ThenListAndDisable(t *testing.T) {
	r, db := newRouter(t)
	seedProducts(db, 1)

	code, env := do(t, r, http.MethodPost, "/enable", gin.H{
		"product_id":      "p1",
		"variant_id":      "v1",
		"min_price_type":  "percentage",
		"min_price_value": 80,
		"behavior":        "high",
	})
	require.Equal(t, http.StatusOK, code, env.Message)

	var result struct {
		Setting struct {
			MinPrice float64 `json:"min_price"`
			Enabled  bool    `json:"enabled"`
			Behavior string  `json:"behavior"`
		} `json:"setting"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Setting.Enabled)
	assert.InDelta(t, 80.0, result.Setting.MinPrice, 0.001)
	assert.Equal(t, "high", result.Setting.Behavior)

	code, env = do(t, r, http.MethodGet, "/settings?product_ids=p1,%20p2", nil)
	require.Equal(t, http.StatusOK, code)
	var settings []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &settings))
	assert.Len(t, settings, 1)

	code, _ = do(t, r, http.MethodPost, "/disable", gin.H{"product_id": "p1", "variant_id": "v1"})
	require.Equal(t, http.StatusOK, code)

	n, err := db.Settings().CountEnabledDistinctProducts(t.Context(), userID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnable_ErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		body     gin.H
		wantCode int
		wantKind string
	}{
		{
			name:     "missing variant id",
			body:     gin.H{"product_id": "p1"},
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_input",
		},
		{
			name:     "unknown variant",
			body:     gin.H{"product_id": "p1", "variant_id": "nope"},
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_input",
		},
		{
			name:     "out of stock",
			body:     gin.H{"product_id": "empty", "variant_id": "v1"},
			wantCode: http.StatusUnprocessableEntity,
			wantKind: "no_inventory",
		},
		{
			name:     "unknown behavior",
			body:     gin.H{"product_id": "p1", "variant_id": "v1", "behavior": "aggressive"},
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, db := newRouter(t)
			seedProducts(db, 1)
			db.PutVariant(&catalog.Variant{UserID: userID, ProductID: "empty", VariantID: "v1", Price: 20})

			code, env := do(t, r, http.MethodPost, "/enable", tt.body)
			assert.Equal(t, tt.wantCode, code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantKind, env.Error)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestEnable_QuotaExceeded(t *testing.T) {
	r, db := newRouter(t)
	seedProducts(db, 11)

	for i := 1; i <= 10; i++ {
		code, env := do(t, r, http.MethodPost, "/enable", gin.H{"product_id": fmt.Sprintf("p%d", i), "variant_id": "v1"})
		require.Equal(t, http.StatusOK, code, env.Message)
	}

	code, env := do(t, r, http.MethodPost, "/enable", gin.H{"product_id": "p11", "variant_id": "v1"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "quota_exceeded", env.Error)
	assert.Contains(t, env.Message, "Free")
}

func TestBulkUpdate_ReportsSkipped(t *testing.T) {
	r, db := newRouter(t)
	seedProducts(db, 1)
	db.PutVariant(&catalog.Variant{UserID: userID, ProductID: "p1", VariantID: "v2", Price: 50})

	code, env := do(t, r, http.MethodPost, "/bulk", gin.H{
		"selections": []gin.H{{
			"product_id": "p1",
			"settings": gin.H{
				"enabled":         true,
				"min_price_type":  "percentage",
				"min_price_value": 90,
			},
		}},
	})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Contains(t, env.Message, "skipped")

	var result struct {
		Updated []json.RawMessage `json:"updated"`
		Skipped []struct {
			VariantID string `json:"variant_id"`
			Reason    string `json:"reason"`
		} `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result.Updated, 1)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "v2", result.Skipped[0].VariantID)
	assert.Equal(t, "no_inventory", result.Skipped[0].Reason)
}

func TestBulkUpdate_RejectsEmptySelections(t *testing.T) {
	r, _ := newRouter(t)

	code, env := do(t, r, http.MethodPost, "/bulk", gin.H{"selections": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_input", env.Error)
}
