package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/mindfocus/internal/face"
	"github.com/your-org/mindfocus/internal/focus"
	"github.com/your-org/mindfocus/internal/models"
	"github.com/your-org/mindfocus/internal/observability"
	"github.com/your-org/mindfocus/internal/storage"
)

type action int

const (
	actionPause action = iota + 1
	actionResume
	actionStop
	actionSettings
)

// flushGrace is how long a periodic flush waits after a bucket ends before
// writing it.
const flushGrace = 2 * time.Second

// run is the handle the manager keeps for one actor goroutine.
type run struct {
	id     uuid.UUID
	userID uuid.UUID
	kind   kind
	inbox  chan envelope
	done   chan struct{}
}

// envelope carries either a frame or a command. at is when the worker
// received it; frames are timed on arrival, not on device capture time.
type envelope struct {
	frame *models.LandmarkFrame
	cmd   *request
	at    time.Time
}

type request struct {
	action   action
	settings models.Settings
	reply    chan response
}

type response struct {
	session  *models.Session
	baseline *models.Baseline
	err      error
}

func (r request) answer(resp response) {
	if r.reply != nil {
		r.reply <- resp
	}
}

func metricsOf(points []face.Point) *face.Metrics {
	m, ok := face.Extract(points)
	if !ok {
		observability.FramesWithoutFace.Inc()
		return nil
	}
	return &m
}

// runSession is the actor loop of one focus session.
func (m *Manager) runSession(r *run, eng *focus.SessionEngine, sess models.Session) {
	defer m.unregister(r)

	out := newOutbox(r.id.String(), m.pub, m.cfg.OutboxSize)
	a := &sessionActor{m: m, r: r, eng: eng, sess: sess, out: out}

	tick := time.NewTicker(m.cfg.TickInterval)
	defer tick.Stop()
	sweep := time.NewTicker(m.cfg.SweepInterval)
	defer sweep.Stop()
	flush := time.NewTicker(m.cfg.FlushInterval)
	defer flush.Stop()

	a.publishState()

	for {
		select {
		case env := <-r.inbox:
			if env.frame != nil {
				a.frame(env)
				continue
			}
			if a.command(env) {
				return
			}
		case <-tick.C:
			eng.Tick()
			a.publishState()
		case <-sweep.C:
			a.emit(eng.Sweep(m.now()))
		case <-flush.C:
			a.flush()
		case <-m.ctx.Done():
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout)
			if _, err := a.close(ctx); err != nil {
				slog.Error("close session on shutdown", "session_id", r.id, "error", err)
			}
			cancel()
			return
		}
	}
}

type sessionActor struct {
	m    *Manager
	r    *run
	eng  *focus.SessionEngine
	sess models.Session
	out  *outbox

	// lastFrame is the newest frame time seen.
	lastFrame time.Time
	flushes   sync.WaitGroup
}

func (a *sessionActor) frame(env envelope) {
	observability.FramesProcessed.WithLabelValues(string(kindSession)).Inc()
	if env.at.After(a.lastFrame) {
		a.lastFrame = env.at
	}
	res := a.eng.ProcessFrame(metricsOf(env.frame.Points), env.at)
	if res.State.FaceDetected && !res.State.Paused {
		observability.FocusScore.Observe(res.State.FocusScore)
	}
	a.emit(res)
}

// command applies one control command and reports whether the run is over.
func (a *sessionActor) command(env envelope) bool {
	req := env.cmd
	switch req.action {
	case actionPause:
		a.emit(a.eng.Pause())
		a.publishState()
		req.answer(response{})
	case actionResume:
		a.emit(a.eng.Resume())
		a.publishState()
		req.answer(response{})
	case actionSettings:
		a.emit(a.eng.ApplySettings(req.settings, env.at))
		a.publishState()
		req.answer(response{})
	case actionStop:
		ctx, cancel := context.WithTimeout(context.Background(), a.m.cfg.StopTimeout)
		defer cancel()
		closed, err := a.close(ctx)
		a.m.detach(a.r)
		req.answer(response{session: closed, err: err})
		return true
	}
	return false
}

// emit publishes what one engine transition produced.
func (a *sessionActor) emit(res focus.Result) {
	now := a.m.now()
	for _, al := range res.Raised {
		observability.AlertsRaised.WithLabelValues(al.Type.String()).Inc()
		a.out.event(a.event(models.EventAlertRaised, now, func(ev *models.EngineEvent) {
			ev.Alert = al.Payload()
		}))
	}
	for _, t := range res.Cleared {
		a.out.event(a.event(models.EventAlertCleared, now, func(ev *models.EngineEvent) {
			ev.Alert = &models.AlertPayload{Type: t.String(), Message: t.Message(), Timestamp: now}
		}))
	}
	if res.Vibrate {
		observability.HapticPulses.Inc()
		a.out.haptic()
	}
	if res.Changed() {
		a.publishState()
	}
}

func (a *sessionActor) publishState() {
	a.out.event(a.event(models.EventState, a.m.now(), func(ev *models.EngineEvent) {
		ev.State = sessionSnapshot(a.eng.State(), a.eng.Alerts())
	}))
}

func (a *sessionActor) event(t models.EventType, now time.Time, fill func(*models.EngineEvent)) *models.EngineEvent {
	ev := &models.EngineEvent{
		Type:      t,
		RunID:     a.r.id,
		UserID:    a.r.userID,
		Timestamp: now,
	}
	if fill != nil {
		fill(ev)
	}
	return ev
}

// flush writes the completed buckets in the background so frames keep
// flowing while the store is slow. A bucket is complete once the clock is
// flushGrace past its end, so buckets still close when frames stop; frames
// queued longer than that miss their bucket.
func (a *sessionActor) flush() {
	cutoff := a.m.now().Add(-flushGrace)
	if a.lastFrame.After(cutoff) {
		cutoff = a.lastFrame
	}
	buckets := a.eng.DrainCompleted(cutoff)
	if len(buckets) == 0 {
		return
	}
	rows := metricRows(a.sess.ID, buckets)
	a.flushes.Add(1)
	go func() {
		defer a.flushes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.m.cfg.StopTimeout)
		defer cancel()
		if err := a.m.writeMetrics(ctx, rows); err != nil {
			slog.Error("flush session metrics", "session_id", a.sess.ID, "buckets", len(rows), "error", err)
		}
	}()
}

// close finishes the engine, persists what is left and closes the session
// row. The session_closed event is the last one published for the run.
func (a *sessionActor) close(ctx context.Context) (*models.Session, error) {
	summary := a.eng.Finish()
	a.flushes.Wait()

	var errs []error
	if rows := metricRows(a.sess.ID, summary.Buckets); len(rows) > 0 {
		if err := a.m.writeMetrics(ctx, rows); err != nil {
			errs = append(errs, fmt.Errorf("write final metrics: %w", err))
		}
	}

	closing := models.SessionClose{
		EndedAt:         a.m.now(),
		BreaksCount:     summary.BreaksCount,
		FocusAvg:        summary.Averages.FocusScore,
		EARAvg:          summary.Averages.EAR,
		MARAvg:          summary.Averages.MAR,
		HeadPitchAvgDeg: summary.Averages.HeadPitchDeg,
	}
	if err := a.m.store.CloseSession(ctx, a.sess.ID, closing); err != nil {
		errs = append(errs, fmt.Errorf("close session: %w", err))
	}

	closed := a.sess
	closed.EndedAt = &closing.EndedAt
	closed.BreaksCount = closing.BreaksCount
	closed.FocusAvg = closing.FocusAvg
	closed.EARAvg = closing.EARAvg
	closed.MARAvg = closing.MARAvg
	closed.HeadPitchAvgDeg = closing.HeadPitchAvgDeg

	a.out.close()
	ev := a.event(models.EventSessionClosed, closing.EndedAt, func(ev *models.EngineEvent) {
		ev.Session = &closed
		ev.State = sessionSnapshot(a.eng.State(), nil)
	})
	if err := a.m.pub.PublishEvent(ctx, a.r.id.String(), ev); err != nil {
		slog.Warn("publish session closed", "session_id", a.sess.ID, "error", err)
	}

	if len(errs) == 0 {
		a.m.exportSession(ctx, closed)
	}

	slog.Info("session stopped",
		"session_id", a.sess.ID,
		"user_id", a.r.userID,
		"breaks", closing.BreaksCount,
		"duration", closing.EndedAt.Sub(a.sess.StartedAt).Round(time.Second),
	)
	return &closed, errors.Join(errs...)
}

func (m *Manager) writeMetrics(ctx context.Context, rows []models.Metric) error {
	if err := m.store.InsertMetrics(ctx, rows); err != nil {
		observability.MetricFlushes.WithLabelValues("error").Inc()
		return err
	}
	observability.MetricFlushes.WithLabelValues("ok").Inc()
	observability.MetricRowsWritten.Add(float64(len(rows)))
	return nil
}

// exportSession archives the closed session with its full metric series.
func (m *Manager) exportSession(ctx context.Context, s models.Session) {
	if m.archive == nil {
		return
	}
	metrics, err := m.store.ListMetrics(ctx, s.ID)
	if err != nil {
		slog.Warn("list metrics for export", "session_id", s.ID, "error", err)
		return
	}
	export := models.SessionExport{Session: s, Metrics: metrics, ExportedAt: m.now()}
	if err := m.archive.PutJSON(ctx, storage.SessionExportKey(s.ID), export); err != nil {
		slog.Warn("archive session export", "session_id", s.ID, "error", err)
	}
}

func metricRows(sessionID uuid.UUID, buckets []focus.Bucket) []models.Metric {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]models.Metric, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, models.Metric{
			ID:           uuid.New(),
			SessionID:    sessionID,
			BucketSec:    b.Sec,
			FocusScore:   b.FocusScore,
			EAR:          b.EAR,
			MAR:          b.MAR,
			HeadPitchDeg: b.HeadPitchDeg,
		})
	}
	return rows
}

func sessionSnapshot(s focus.State, alerts []focus.Alert) *models.StateSnapshot {
	snap := &models.StateSnapshot{
		ElapsedSeconds: s.ElapsedSeconds,
		FocusScore:     s.FocusScore,
		EAR:            s.Smoothed.EAR,
		MAR:            s.Smoothed.MAR,
		HeadPitchDeg:   s.Smoothed.HeadPitchDeg,
		FaceDetected:   s.FaceDetected,
		Paused:         s.Paused,
		AutoPaused:     s.AutoPaused,
		Running:        s.Running,
	}
	for _, al := range alerts {
		snap.ActiveAlerts = append(snap.ActiveAlerts, al.Type.String())
	}
	return snap
}

func calibrationSnapshot(s focus.CalibrationState) *models.StateSnapshot {
	return &models.StateSnapshot{
		ElapsedSeconds: s.ElapsedSeconds,
		FocusScore:     s.FocusScore,
		EAR:            s.Smoothed.EAR,
		MAR:            s.Smoothed.MAR,
		HeadPitchDeg:   s.Smoothed.HeadPitchDeg,
		FaceDetected:   s.FaceDetected,
		Paused:         s.Paused,
		Running:        s.Running,
		Completed:      s.Completed,
	}
}
