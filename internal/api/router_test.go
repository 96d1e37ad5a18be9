package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"machine-monitor-backend/internal/db"
	"machine-monitor-backend/internal/hub"
	"machine-monitor-backend/internal/model"
	"machine-monitor-backend/internal/store"
)

type testEnv struct {
	router *gin.Engine
	store  store.Store
	hub    *hub.Registry
}

func newTestEnv(t *testing.T, mutate func(*RouterOptions)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gormDB, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gormDB))

	s := store.NewGormStore(gormDB)
	reg := hub.NewRegistry()
	opts := RouterOptions{
		Store:     s,
		Hub:       reg,
		Gatherer:  prometheus.NewRegistry(),
		RateLimit: rate.Inf,
		RateBurst: 1,
		CacheTTL:  time.Minute,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &testEnv{router: NewRouter(opts), store: s, hub: reg}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestMachines_CRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/machines", `{"id":"M100","name":"Loom","type":"Weaving Machine","serial_number":"SN-100","purchase_cost":1200.5}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"message":"Machine added","id":"M100"}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/machines/M100", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[model.Machine](t, w)
	assert.Equal(t, "Loom", got.Name)
	assert.Equal(t, model.StatusActive, got.Status)
	require.NotNil(t, got.PurchaseCost)
	assert.Equal(t, 1200.5, *got.PurchaseCost)

	w = env.do(http.MethodPut, "/api/machines/M100", `{"id":"OTHER","name":"Loom 2","type":"Weaving Machine","serial_number":"SN-100","status":"Under Maintenance"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/machines/M100", "")
	got = decode[model.Machine](t, w)
	assert.Equal(t, "M100", got.ID)
	assert.Equal(t, "Loom 2", got.Name)
	assert.Equal(t, model.StatusUnderMaintenance, got.Status)
	assert.Nil(t, got.PurchaseCost, "PUT replaces every field")

	w = env.do(http.MethodDelete, "/api/machines/M100", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/machines/M100", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/machines/M100", "").Code)
}

func TestMachines_CreateValidation(t *testing.T) {
	testCases := []struct {
		name         string
		body         string
		expectedCode int
	}{
		{"missing name", `{"id":"M1","type":"T","serial_number":"S"}`, http.StatusBadRequest},
		{"unknown status", `{"id":"M1","name":"N","type":"T","serial_number":"S","status":"Broken"}`, http.StatusBadRequest},
		{"malformed json", `{"id":`, http.StatusBadRequest},
		{"explicit fault status", `{"id":"M1","name":"N","type":"T","serial_number":"S","status":"Fault"}`, http.StatusCreated},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			w := env.do(http.MethodPost, "/api/machines", tc.body)
			assert.Equal(t, tc.expectedCode, w.Code, w.Body.String())
		})
	}
}

func TestMachines_CreateDuplicateAndGeneratedID(t *testing.T) {
	env := newTestEnv(t, nil)
	body := `{"id":"M1","name":"N","type":"T","serial_number":"S"}`

	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/machines", body).Code)
	w := env.do(http.MethodPost, "/api/machines", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string]string](t, w), "error")

	w = env.do(http.MethodPost, "/api/machines", `{"name":"N","type":"T","serial_number":"S"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[map[string]string](t, w)["id"]
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestMachines_UpdateUnknown(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodPut, "/api/machines/NOPE", `{"name":"N","type":"T","serial_number":"S"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMachines_ListIsFlushedOnWrite(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, db.Seed(context.Background(), env.store.DB()))

	w := env.do(http.MethodGet, "/api/machines", "")
	require.Equal(t, http.StatusOK, w.Code)
	machines := decode[[]model.Machine](t, w)
	require.Len(t, machines, 12)
	assert.Equal(t, "M001", machines[0].ID)
	assert.Equal(t, "M012", machines[11].ID)

	cached := env.do(http.MethodGet, "/api/machines", "")
	assert.Equal(t, "HIT", cached.Header().Get("X-Cache"))

	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/machines", `{"id":"M013","name":"N","type":"T","serial_number":"S"}`).Code)

	w = env.do(http.MethodGet, "/api/machines", "")
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.Len(t, decode[[]model.Machine](t, w), 13)
}

func TestFaults_List(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, db.Seed(context.Background(), env.store.DB()))
	for i := 0; i < 3; i++ {
		_, err := env.store.RecordFault(context.Background(), "M001", "Overheating", "Automatic detection of Overheating")
		require.NoError(t, err)
	}

	w := env.do(http.MethodGet, "/api/faults?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	faults := decode[[]model.FaultLog](t, w)
	require.Len(t, faults, 2)
	assert.Greater(t, faults[0].ID, faults[1].ID)

	w = env.do(http.MethodGet, "/api/faults?limit=9999", "")
	assert.Empty(t, w.Header().Get("X-Cache"), "a different limit is a different entry")
	assert.Len(t, decode[[]model.FaultLog](t, w), 3)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/faults?limit=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/faults?limit=0", "").Code)
}

func TestSubscriptions(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, db.Seed(context.Background(), env.store.DB()))
	endpoint := "https://push.example.com/send/abc?x=1&y=2"

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/subscriptions", `{}`).Code)

	w := env.do(http.MethodPut, "/api/subscriptions", `{"endpoint":"`+endpoint+`","p256dh":"k","auth":"a","subscribed_machines":["M003","M001","UNKNOWN"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"subscribed_machines":["M001","M003"]}`, w.Body.String())

	path := "/api/subscriptions?endpoint=" + strings.NewReplacer("?", "%3F", "&", "%26", "=", "%3D").Replace(endpoint)
	w = env.do(http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribed_machines":["M001","M003"]}`, w.Body.String())

	w = env.do(http.MethodPut, "/api/subscriptions", `{"endpoint":"`+endpoint+`","p256dh":"k2","auth":"a2"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do(http.MethodGet, path, "")
	assert.JSONEq(t, `{"subscribed_machines":[]}`, w.Body.String())

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/subscriptions", `{"endpoint":"`+endpoint+`"}`).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, path, "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/subscriptions", "").Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	disabled := newTestEnv(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, disabled.do(http.MethodGet, "/api/vapid_public_key", "").Code)

	enabled := newTestEnv(t, func(o *RouterOptions) {
		o.Webpush = &webpush.Options{VAPIDPublicKey: "BPublicKey"}
	})
	w := enabled.do(http.MethodGet, "/api/vapid_public_key", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"BPublicKey"}`, w.Body.String())
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","viewers":0}`, w.Body.String())

	env.hub.Add(idleViewer("v1"))
	env.hub.Add(idleViewer("v2"))
	w = env.do(http.MethodGet, "/healthz", "")
	assert.JSONEq(t, `{"status":"ok","viewers":2}`, w.Body.String())

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/metrics", "").Code)
}

type idleViewer string

func (v idleViewer) ID() string                { return string(v) }
func (v idleViewer) Open() bool                { return true }
func (v idleViewer) Send(payload []byte) error { return nil }

func TestRateLimitAppliesToAPI(t *testing.T) {
	env := newTestEnv(t, func(o *RouterOptions) {
		o.RateLimit = rate.Limit(0.001)
		o.RateBurst = 1
	})

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/machines", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodGet, "/api/machines", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", "").Code)
}

func TestStaticFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>dashboard</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))
	env := newTestEnv(t, func(o *RouterOptions) { o.StaticDir = dir })

	w := env.do(http.MethodGet, "/app.js", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log(1)", w.Body.String())

	w = env.do(http.MethodGet, "/machines/M001", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dashboard")

	w = env.do(http.MethodGet, "/", "")
	assert.Contains(t, w.Body.String(), "dashboard")

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/unknown", "").Code)
}

func TestWebsocketOnRootAndWS(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	for _, path := range []string{"/", "/ws"} {
		conn, _, err := websocket.DefaultDialer.Dial(base+path, nil)
		require.NoError(t, err, path)
		require.Eventually(t, func() bool { return env.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

		assert.Equal(t, 1, env.hub.Broadcast([]byte(`{"type":"SENSOR_UPDATE","data":[]}`)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"SENSOR_UPDATE","data":[]}`, string(msg))

		require.NoError(t, conn.Close())
		require.Eventually(t, func() bool { return env.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	}
}
