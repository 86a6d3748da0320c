package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mindfocus/internal/api/ws"
	"github.com/your-org/mindfocus/internal/models"
	"github.com/your-org/mindfocus/internal/queue"
	"github.com/your-org/mindfocus/internal/storage"
	"github.com/your-org/mindfocus/pkg/dto"
)

const testKey = "test-key"

type fakeBroker struct {
	mu       sync.Mutex
	commands []queue.Command
	frames   map[string][]models.LandmarkFrame
	reply    func(queue.Command) (*queue.Reply, error)
}

func (b *fakeBroker) RequestControl(_ context.Context, cmd queue.Command) (*queue.Reply, error) {
	b.mu.Lock()
	b.commands = append(b.commands, cmd)
	reply := b.reply
	b.mu.Unlock()
	if reply == nil {
		return &queue.Reply{OK: true}, nil
	}
	return reply(cmd)
}

func (b *fakeBroker) PublishLandmarks(_ context.Context, runID string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frames == nil {
		b.frames = make(map[string][]models.LandmarkFrame)
	}
	b.frames[runID] = append(b.frames[runID], data.(models.LandmarkFrame))
	return nil
}

func (b *fakeBroker) Ping() error { return nil }

func (b *fakeBroker) lastCommand() queue.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commands[len(b.commands)-1]
}

type testAPI struct {
	db     *storage.SQLiteStore
	broker *fakeBroker
	srv    http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	broker := &fakeBroker{}
	return &testAPI{
		db:     db,
		broker: broker,
		srv: NewRouter(RouterConfig{
			APIKey:              testKey,
			DB:                  db,
			Broker:              broker,
			Hub:                 hub,
			ControlTimeout:      time.Second,
			CalibrationDuration: time.Minute,
		}),
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-API-Key", testKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *testAPI) createUser(t *testing.T, email string) uuid.UUID {
	t.Helper()
	w := a.do(t, http.MethodPost, "/v1/users", dto.CreateUserRequest{Email: email, DisplayName: "Test"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.UserResponse](t, w).ID
}

func TestRequiresAPIKey(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/users/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	a.srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w = httptest.NewRecorder()
	a.srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[map[string]interface{}](t, w)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, 0.0, health["ws_clients"])
}

func TestUsers(t *testing.T) {
	a := newTestAPI(t)
	id := a.createUser(t, "fay@example.com")

	w := a.do(t, http.MethodPost, "/v1/users", dto.CreateUserRequest{Email: "fay@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/v1/users", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/v1/users/"+id.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fay@example.com", decode[dto.UserResponse](t, w).Email)

	w = a.do(t, http.MethodGet, "/v1/users/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/v1/users/xyz", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	a := newTestAPI(t)
	id := a.createUser(t, "gus@example.com")

	w := a.do(t, http.MethodGet, "/v1/users/"+id.String()+"/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[dto.SettingsResponse](t, w)
	assert.False(t, st.CameraMonitoringEnabled)
	assert.True(t, st.YawnAlertsEnabled)

	on, off := true, false
	w = a.do(t, http.MethodPut, "/v1/users/"+id.String()+"/settings",
		dto.UpdateSettingsRequest{CameraMonitoringEnabled: &on, YawnAlertsEnabled: &off})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st = decode[dto.SettingsResponse](t, w)
	assert.True(t, st.Applied)
	assert.True(t, st.CameraMonitoringEnabled)
	assert.False(t, st.YawnAlertsEnabled)
	assert.True(t, st.BlinkAlertsEnabled, "absent fields keep their value")

	cmd := a.broker.lastCommand()
	assert.Equal(t, queue.ActionSettingsApply, cmd.Action)
	require.NotNil(t, cmd.Settings)
	assert.True(t, cmd.Settings.CameraMonitoringEnabled)

	// Saved even when the worker cannot be reached.
	a.broker.mu.Lock()
	a.broker.reply = func(queue.Command) (*queue.Reply, error) { return nil, errors.New("no responders") }
	a.broker.mu.Unlock()
	w = a.do(t, http.MethodPut, "/v1/users/"+id.String()+"/settings", dto.UpdateSettingsRequest{GPSEnabled: &off})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[dto.SettingsResponse](t, w).Applied)

	saved, err := a.db.GetSettings(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.False(t, saved.GPSEnabled)
	assert.True(t, saved.CameraMonitoringEnabled)
}

func TestBaseline(t *testing.T) {
	a := newTestAPI(t)
	id := a.createUser(t, "hal@example.com")

	w := a.do(t, http.MethodGet, "/v1/users/"+id.String()+"/baseline", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, a.db.UpsertBaseline(context.Background(), &models.Baseline{UserID: id, EARMean: 0.29, BlinkPerMin: 14}))
	w = a.do(t, http.MethodGet, "/v1/users/"+id.String()+"/baseline", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.29, decode[dto.BaselineResponse](t, w).EARMean)
}

func TestStartSessionStatuses(t *testing.T) {
	a := newTestAPI(t)
	userID := uuid.New()
	lat := 48.85

	a.broker.reply = func(cmd queue.Command) (*queue.Reply, error) {
		return &queue.Reply{OK: true, Session: &models.Session{
			ID: uuid.New(), UserID: cmd.UserID, StartedAt: time.Now(), Latitude: cmd.Latitude,
		}}, nil
	}
	w := a.do(t, http.MethodPost, "/v1/users/"+userID.String()+"/sessions", dto.StartSessionRequest{Latitude: &lat, Longitude: &lat})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[dto.SessionResponse](t, w)
	assert.True(t, resp.Running)
	require.NotNil(t, resp.Latitude)
	assert.Equal(t, lat, *resp.Latitude)
	assert.Equal(t, queue.ActionSessionStart, a.broker.lastCommand().Action)

	// No body is fine.
	w = a.do(t, http.MethodPost, "/v1/users/"+userID.String()+"/sessions", nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	bad := 120.0
	w = a.do(t, http.MethodPost, "/v1/users/"+userID.String()+"/sessions", dto.StartSessionRequest{Latitude: &bad})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for code, status := range map[string]int{
		queue.CodeUnavailable: http.StatusBadGateway,
		queue.CodeConflict:    http.StatusConflict,
		queue.CodeNotFound:    http.StatusNotFound,
	} {
		code := code
		a.broker.mu.Lock()
		a.broker.reply = func(queue.Command) (*queue.Reply, error) {
			return &queue.Reply{Error: "nope", Code: code}, nil
		}
		a.broker.mu.Unlock()
		w = a.do(t, http.MethodPost, "/v1/users/"+userID.String()+"/sessions", nil)
		assert.Equal(t, status, w.Code, code)
	}

	a.broker.mu.Lock()
	a.broker.reply = func(queue.Command) (*queue.Reply, error) { return nil, context.DeadlineExceeded }
	a.broker.mu.Unlock()
	w = a.do(t, http.MethodPost, "/v1/sessions/"+uuid.NewString()+"/stop", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSessionHistoryMetricsAndDelete(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()
	userID := a.createUser(t, "ida@example.com")

	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		s := &models.Session{ID: uuid.New(), UserID: userID, StartedAt: start.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, a.db.CreateSession(ctx, s))
		score := 60.0 + float64(i)
		require.NoError(t, a.db.CloseSession(ctx, s.ID, models.SessionClose{
			EndedAt: s.StartedAt.Add(20 * time.Minute), FocusAvg: &score,
		}))
		ids = append(ids, s.ID)
	}
	running := &models.Session{ID: uuid.New(), UserID: userID, StartedAt: start.Add(5 * time.Hour)}
	require.NoError(t, a.db.CreateSession(ctx, running))

	w := a.do(t, http.MethodGet, "/v1/users/"+userID.String()+"/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[dto.SessionListResponse](t, w)
	require.Equal(t, 3, list.Total)
	assert.Equal(t, ids[2], list.Sessions[0].ID)
	assert.Equal(t, 1200, list.Sessions[0].DurationSeconds)

	w = a.do(t, http.MethodGet, "/v1/users/"+userID.String()+"/sessions/last", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ids[2], decode[dto.SessionResponse](t, w).ID)

	var metrics []models.Metric
	for i := 0; i < 5; i++ {
		metrics = append(metrics, models.Metric{ID: uuid.New(), SessionID: ids[0], BucketSec: i * 30, FocusScore: float64(50 + i)})
	}
	require.NoError(t, a.db.InsertMetrics(ctx, metrics))

	w = a.do(t, http.MethodGet, "/v1/sessions/"+ids[0].String()+"/metrics?max_points=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	series := decode[dto.MetricSeriesResponse](t, w)
	assert.Equal(t, 5, series.Total)
	require.Len(t, series.Points, 2)
	assert.Equal(t, 0, series.Points[0].BucketSec)
	assert.Equal(t, 120, series.Points[1].BucketSec)

	w = a.do(t, http.MethodGet, "/v1/sessions/"+ids[0].String()+"/metrics?max_points=1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodDelete, "/v1/sessions/"+running.ID.String(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodDelete, "/v1/sessions/"+ids[0].String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = a.do(t, http.MethodGet, "/v1/sessions/"+ids[0].String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	left, err := a.db.ListMetrics(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, left)

	w = a.do(t, http.MethodGet, "/v1/sessions/"+ids[1].String()+"/export", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "exports are disabled without MinIO")
}

func TestCalibrationEndpoints(t *testing.T) {
	a := newTestAPI(t)
	userID := uuid.New()
	calID := uuid.New()

	a.broker.reply = func(cmd queue.Command) (*queue.Reply, error) {
		switch cmd.Action {
		case queue.ActionCalibrationStart:
			return &queue.Reply{OK: true, CalibrationID: &calID}, nil
		case queue.ActionCalibrationStop:
			return &queue.Reply{Error: "insufficient calibration data", Code: queue.CodeInsufficient}, nil
		}
		return &queue.Reply{OK: true}, nil
	}

	w := a.do(t, http.MethodPost, "/v1/users/"+userID.String()+"/calibrations", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode[dto.CalibrationResponse](t, w)
	assert.Equal(t, calID, resp.CalibrationID)
	assert.Equal(t, 60, resp.DurationSec)

	w = a.do(t, http.MethodPost, "/v1/calibrations/"+calID.String()+"/pause", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, queue.ActionCalibrationPause, a.broker.lastCommand().Action)
	assert.Equal(t, calID, a.broker.lastCommand().RunID)

	w = a.do(t, http.MethodPost, "/v1/calibrations/"+calID.String()+"/stop", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestFrameIngest(t *testing.T) {
	a := newTestAPI(t)
	runID := uuid.New()

	w := a.do(t, http.MethodPost, "/v1/runs/"+runID.String()+"/frames", dto.FrameRequest{
		CapturedAt: "2024-06-01T08:00:00.250Z",
		Points:     []dto.LandmarkPoint{{X: 0.1, Y: 0.2}, {X: 0.3, Y: 0.4, Z: -0.01}},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/v1/runs/"+runID.String()+"/frames", dto.FrameRequest{})
	require.Equal(t, http.StatusAccepted, w.Code)

	a.broker.mu.Lock()
	frames := a.broker.frames[runID.String()]
	a.broker.mu.Unlock()
	require.Len(t, frames, 2)
	assert.Equal(t, runID, frames[0].RunID)
	assert.Len(t, frames[0].Points, 2)
	assert.Equal(t, -0.01, frames[0].Points[1].Z)
	assert.Equal(t, 250*time.Millisecond, time.Duration(frames[0].CapturedAt.Nanosecond()))
	assert.Empty(t, frames[1].Points)

	w = a.do(t, http.MethodPost, "/v1/runs/"+runID.String()+"/frames", dto.FrameRequest{CapturedAt: "yesterday"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
