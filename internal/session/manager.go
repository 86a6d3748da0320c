// Package session runs focus sessions and baseline calibrations inside the
// worker. Every run is owned by one goroutine that serialises landmark
// frames, control commands and the engine timers, so the engine itself
// needs no locking.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/mindfocus/internal/config"
	"github.com/your-org/mindfocus/internal/focus"
	"github.com/your-org/mindfocus/internal/models"
	"github.com/your-org/mindfocus/internal/observability"
)

var (
	ErrNotFound       = errors.New("run not found")
	ErrAlreadyRunning = errors.New("user already has an active run")
	ErrUnknownUser    = errors.New("unknown user")
	ErrNotCreated     = errors.New("session could not be created")
	ErrInboxFull      = errors.New("run inbox full")
	ErrClosed         = errors.New("manager is shutting down")
)

// Store is the persistence the runtime needs.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetSettings(ctx context.Context, userID uuid.UUID) (*models.Settings, error)
	GetBaseline(ctx context.Context, userID uuid.UUID) (*models.Baseline, error)
	UpsertBaseline(ctx context.Context, b *models.Baseline) error
	CreateSession(ctx context.Context, s *models.Session) error
	CloseSession(ctx context.Context, id uuid.UUID, c models.SessionClose) error
	InsertMetrics(ctx context.Context, metrics []models.Metric) error
	ListMetrics(ctx context.Context, sessionID uuid.UUID) ([]models.Metric, error)
}

// Publisher delivers engine output to devices and the API.
type Publisher interface {
	PublishEvent(ctx context.Context, runID string, data interface{}) error
	PublishHaptic(ctx context.Context, runID string) error
}

// Archiver stores JSON documents in object storage.
type Archiver interface {
	PutJSON(ctx context.Context, key string, v interface{}) error
}

type kind string

const (
	kindSession     kind = "session"
	kindCalibration kind = "calibration"
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for frame and command timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithArchiver enables session exports and calibration captures.
func WithArchiver(a Archiver) Option {
	return func(m *Manager) { m.archive = a }
}

// Manager owns every active run of the worker.
type Manager struct {
	store   Store
	pub     Publisher
	archive Archiver
	cfg     config.EngineConfig
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	runs   map[uuid.UUID]*run
	byUser map[uuid.UUID]uuid.UUID
}

func NewManager(store Store, pub Publisher, cfg config.EngineConfig, opts ...Option) *Manager {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 256
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = 256
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 500 * time.Millisecond
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:  store,
		pub:    pub,
		cfg:    cfg,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[uuid.UUID]*run),
		byUser: make(map[uuid.UUID]uuid.UUID),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a session for userID and starts its run. The session id is
// also the run id devices publish frames under. Location is dropped when
// the user has GPS disabled.
func (m *Manager) Start(ctx context.Context, userID uuid.UUID, lat, lon *float64) (*models.Session, error) {
	if err := m.reserve(userID); err != nil {
		return nil, err
	}

	settings, baseline, err := m.loadUser(ctx, userID)
	if err != nil {
		m.release(userID)
		return nil, err
	}

	now := m.now()
	sess := &models.Session{
		ID:        uuid.New(),
		UserID:    userID,
		StartedAt: now,
	}
	if settings.GPSEnabled {
		sess.Latitude = lat
		sess.Longitude = lon
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		m.release(userID)
		return nil, fmt.Errorf("%w: %w", ErrNotCreated, err)
	}

	eng := focus.NewSessionEngine(baseline, *settings, now)
	r := m.register(sess.ID, userID, kindSession)

	m.wg.Add(1)
	go m.runSession(r, eng, *sess)

	slog.Info("session started",
		"session_id", sess.ID,
		"user_id", userID,
		"has_baseline", baseline != nil,
		"camera_monitoring", settings.CameraMonitoringEnabled,
	)
	return sess, nil
}

// StartCalibration starts a baseline calibration run for userID and returns
// its run id.
func (m *Manager) StartCalibration(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	if err := m.reserve(userID); err != nil {
		return uuid.Nil, err
	}

	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		m.release(userID)
		return uuid.Nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		m.release(userID)
		return uuid.Nil, ErrUnknownUser
	}

	r := m.register(uuid.New(), userID, kindCalibration)
	cal := focus.NewCalibration(m.cfg.CalibrationDuration)

	m.wg.Add(1)
	go m.runCalibration(r, cal)

	slog.Info("calibration started", "run_id", r.id, "user_id", userID)
	return r.id, nil
}

// Pause pauses a session or calibration run.
func (m *Manager) Pause(ctx context.Context, runID uuid.UUID) error {
	_, err := m.call(ctx, runID, "", request{action: actionPause})
	return err
}

// Resume resumes a paused session or calibration run.
func (m *Manager) Resume(ctx context.Context, runID uuid.UUID) error {
	_, err := m.call(ctx, runID, "", request{action: actionResume})
	return err
}

// StopSession flushes and closes a session and returns the closed row.
func (m *Manager) StopSession(ctx context.Context, runID uuid.UUID) (*models.Session, error) {
	resp, err := m.call(ctx, runID, kindSession, request{action: actionStop})
	if err != nil {
		return resp.session, err
	}
	return resp.session, nil
}

// StopCalibration ends a calibration early and saves the baseline computed
// from what was collected.
func (m *Manager) StopCalibration(ctx context.Context, runID uuid.UUID) (*models.Baseline, error) {
	resp, err := m.call(ctx, runID, kindCalibration, request{action: actionStop})
	if err != nil {
		return nil, err
	}
	return resp.baseline, nil
}

// ApplySettings hands new settings to the user's active session, if any.
func (m *Manager) ApplySettings(ctx context.Context, userID uuid.UUID, s models.Settings) error {
	runID, ok := m.ActiveRun(userID)
	if !ok {
		return nil
	}

	_, err := m.call(ctx, runID, kindSession, request{action: actionSettings, settings: s})
	if errors.Is(err, ErrNotFound) {
		// Calibration runs ignore settings, and a run may have just ended.
		return nil
	}
	return err
}

// HandleFrame queues a landmark frame for its run without blocking. A full
// inbox drops the frame.
func (m *Manager) HandleFrame(f models.LandmarkFrame) error {
	r := m.lookup(f.RunID)
	if r == nil {
		return ErrNotFound
	}

	env := envelope{frame: &f, at: m.now()}
	select {
	case <-r.done:
		return ErrNotFound
	default:
	}
	select {
	case r.inbox <- env:
		return nil
	default:
		observability.FramesDropped.Inc()
		return ErrInboxFull
	}
}

// ActiveCount returns the number of running sessions and calibrations.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

// ActiveRun returns the run id of the user's active session or calibration.
func (m *Manager) ActiveRun(userID uuid.UUID) (uuid.UUID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUser[userID]
	return id, ok && id != uuid.Nil
}

// StopAll stops every run the way an explicit stop would and waits for
// them to finish or for ctx to expire. No run can be started afterwards.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for runs: %w", ctx.Err())
	}
}

// loadUser returns the settings (defaults if never saved) and the baseline
// (nil if never calibrated) of a known user.
func (m *Manager) loadUser(ctx context.Context, userID uuid.UUID) (*models.Settings, *models.Baseline, error) {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: get user: %w", ErrNotCreated, err)
	}
	if user == nil {
		return nil, nil, ErrUnknownUser
	}

	settings, err := m.store.GetSettings(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: get settings: %w", ErrNotCreated, err)
	}
	if settings == nil {
		d := models.DefaultSettings(userID)
		settings = &d
	}

	baseline, err := m.store.GetBaseline(ctx, userID)
	if err != nil {
		// A session without its baseline would score against the defaults.
		return nil, nil, fmt.Errorf("%w: get baseline: %w", ErrNotCreated, err)
	}
	return settings, baseline, nil
}

func (m *Manager) reserve(userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.byUser[userID]; ok {
		return ErrAlreadyRunning
	}
	m.byUser[userID] = uuid.Nil
	return nil
}

func (m *Manager) release(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byUser[userID]; ok && id == uuid.Nil {
		delete(m.byUser, userID)
	}
}

func (m *Manager) register(id, userID uuid.UUID, k kind) *run {
	r := &run{
		id:     id,
		userID: userID,
		kind:   k,
		inbox:  make(chan envelope, m.cfg.InboxSize),
		done:   make(chan struct{}),
	}
	m.mu.Lock()
	m.runs[id] = r
	m.byUser[userID] = id
	m.mu.Unlock()

	observability.ActiveRuns.WithLabelValues(string(k)).Inc()
	return r
}

// detach makes the run unreachable, so the user can start a new run. It may
// be called more than once.
func (m *Manager) detach(r *run) {
	m.mu.Lock()
	delete(m.runs, r.id)
	if m.byUser[r.userID] == r.id {
		delete(m.byUser, r.userID)
	}
	m.mu.Unlock()
}

func (m *Manager) unregister(r *run) {
	m.detach(r)
	close(r.done)
	observability.ActiveRuns.WithLabelValues(string(r.kind)).Dec()
	m.wg.Done()
}

func (m *Manager) lookup(id uuid.UUID) *run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runs[id]
}

// call delivers a command to a run and waits for its answer. An empty want
// accepts either kind.
func (m *Manager) call(ctx context.Context, id uuid.UUID, want kind, req request) (response, error) {
	r := m.lookup(id)
	if r == nil || (want != "" && r.kind != want) {
		return response{}, ErrNotFound
	}

	req.reply = make(chan response, 1)
	select {
	case r.inbox <- envelope{cmd: &req, at: m.now()}:
	case <-r.done:
		return response{}, ErrNotFound
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, resp.err
	case <-r.done:
		select {
		case resp := <-req.reply:
			return resp, resp.err
		default:
			return response{}, ErrNotFound
		}
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}
