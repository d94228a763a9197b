package controllers_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/inventory-reservation-service/cache"
	"github.com/yashrajoria/inventory-reservation-service/controllers"
	"github.com/yashrajoria/inventory-reservation-service/events"
	"github.com/yashrajoria/inventory-reservation-service/models"
	"github.com/yashrajoria/inventory-reservation-service/repository"
	"github.com/yashrajoria/inventory-reservation-service/routes"
	"github.com/yashrajoria/inventory-reservation-service/services"
	"go.uber.org/zap"
)

const jwtSecret = "controller-test-secret"

type fixture struct {
	router *gin.Engine
	repo   *repository.MemoryInventoryRepository
	token  string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	repo := repository.NewMemoryInventoryRepository()
	repo.Seed("sku-1", 10, nil)

	bus := events.NewBus("test", logger)
	status := services.NewStockStatusService(repo, cache.NewMemoryStockCache(100, time.Minute), nil, 3, logger)
	alerts := services.NewAlertEmitter(status, bus, nil, logger)
	manager := services.NewReservationManager(repo, status, bus, alerts, nil, nil, services.HoldPolicy{}, logger)
	sweeper := services.NewExpirySweeper(repo, status, bus, nil, time.Minute, 100, logger)
	admin := services.NewInventoryAdmin(repo, status, bus, alerts, sweeper, nil, nil, logger)

	r := gin.New()
	routes.RegisterRoutes(r,
		controllers.NewInventoryController(manager),
		controllers.NewAdminController(admin),
		controllers.NewStreamController(bus, 50*time.Millisecond),
		routes.Options{JWTSecret: jwtSecret},
	)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)

	return &fixture{router: r, repo: repo, token: tok}
}

func (f *fixture) do(method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestReserveAndConfirm(t *testing.T) {
	f := setup(t)

	w := f.do(http.MethodPost, "/inventory/reservations", gin.H{"product_id": "sku-1", "quantity": 4, "holder": "cart-9"}, false)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res models.Reservation
	decode(t, w, &res)
	assert.Equal(t, models.ReservationActive, res.Status)

	w = f.do(http.MethodPost, "/inventory/reservations/"+res.ID.String()+"/confirm", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/inventory/reservations/"+res.ID.String()+"/confirm", nil, false)
	assert.Equal(t, http.StatusConflict, w.Code)
	var errBody map[string]string
	decode(t, w, &errBody)
	assert.Equal(t, "INVALID_TRANSITION", errBody["code"])

	w = f.do(http.MethodGet, "/inventory/stock/sku-1", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.StockStatus
	decode(t, w, &status)
	assert.Equal(t, 6, status.TotalQuantity)
	assert.Equal(t, 6, status.Available)
}

func TestReserve_Errors(t *testing.T) {
	f := setup(t)

	w := f.do(http.MethodPost, "/inventory/reservations", gin.H{"product_id": "sku-1", "quantity": 11, "holder": "h"}, false)
	assert.Equal(t, http.StatusConflict, w.Code)
	var errBody map[string]string
	decode(t, w, &errBody)
	assert.Equal(t, "INSUFFICIENT_STOCK", errBody["code"])
	assert.Equal(t, "insufficient stock for product sku-1: requested 11, available 10", errBody["error"])

	w = f.do(http.MethodPost, "/inventory/reservations", gin.H{"product_id": "sku-1", "quantity": 0, "holder": "h"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/inventory/reservations", gin.H{"product_id": "ghost", "quantity": 1, "holder": "h"}, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReservationLookups(t *testing.T) {
	f := setup(t)

	w := f.do(http.MethodPost, "/inventory/reservations", gin.H{"product_id": "sku-1", "quantity": 1, "holder": "cart-1"}, false)
	require.Equal(t, http.StatusCreated, w.Code)
	var res models.Reservation
	decode(t, w, &res)

	w = f.do(http.MethodGet, "/inventory/reservations/"+res.ID.String(), nil, false)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/inventory/reservations?holder=cart-1", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Count)

	w = f.do(http.MethodGet, "/inventory/reservations", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/inventory/reservations/not-a-uuid", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/inventory/reservations/"+res.ID.String()+"/cancel", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodPost, "/inventory/reservations/00000000-0000-0000-0000-000000000001/cancel", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRequiresToken(t *testing.T) {
	f := setup(t)
	w := f.do(http.MethodPost, "/inventory/admin/sweep", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	f := setup(t)

	w := f.do(http.MethodPost, "/inventory/admin/bulk", gin.H{"items": []gin.H{
		{"product_id": "sku-1", "quantity": 5, "type": "increment"},
		{"product_id": "sku-2", "quantity": 3, "type": "decrement"},
	}}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var bulk struct {
		Succeeded int                       `json:"succeeded"`
		Failed    int                       `json:"failed"`
		Results   []models.AdjustmentResult `json:"results"`
	}
	decode(t, w, &bulk)
	assert.Equal(t, 1, bulk.Succeeded)
	assert.Equal(t, 1, bulk.Failed)
	assert.Equal(t, 15, bulk.Results[0].NewTotal)

	w = f.do(http.MethodPost, "/inventory/admin/bulk", gin.H{"items": []gin.H{{"product_id": "sku-1", "quantity": 1, "type": "explode"}}}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, "/inventory/admin/thresholds/sku-1", gin.H{"threshold": 20}, true)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.StockStatus
	decode(t, w, &status)
	assert.Equal(t, 20, status.Threshold)
	assert.True(t, status.LowStock)

	w = f.do(http.MethodPut, "/inventory/admin/thresholds/sku-1", gin.H{}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/inventory/admin/snapshots", gin.H{"reason": "stocktake"}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	var snap models.InventorySnapshot
	decode(t, w, &snap)
	assert.Equal(t, 1, snap.ProductCount)

	w = f.do(http.MethodGet, "/inventory/admin/snapshots/"+snap.ID.String(), nil, true)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/inventory/admin/sweep", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"expired":0}`, w.Body.String())
}

func TestEventStream(t *testing.T) {
	f := setup(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/inventory/events/stream?product_id=sku-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	waitFor := func(substr string) {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream closed before %q", substr)
				if strings.Contains(line, substr) {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", substr)
			}
		}
	}

	waitFor("ready")

	body := strings.NewReader(`{"product_id":"sku-1","quantity":1,"holder":"cart-1"}`)
	postResp, err := http.Post(srv.URL+"/inventory/reservations", "application/json", body)
	require.NoError(t, err)
	postResp.Body.Close()
	require.Equal(t, http.StatusCreated, postResp.StatusCode)

	waitFor("reservation_created")
	waitFor("heartbeat")
}
