package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/mindfocus/internal/focus"
	"github.com/your-org/mindfocus/internal/models"
	"github.com/your-org/mindfocus/internal/observability"
	"github.com/your-org/mindfocus/internal/storage"
)

// runCalibration is the actor loop of one calibration run. It ends when the
// full duration has elapsed, on stop, or on shutdown.
func (m *Manager) runCalibration(r *run, cal *focus.Calibration) {
	defer m.unregister(r)

	out := newOutbox(r.id.String(), m.pub, m.cfg.OutboxSize)
	publish := func(t models.EventType, fill func(*models.EngineEvent)) {
		ev := &models.EngineEvent{Type: t, RunID: r.id, UserID: r.userID, Timestamp: m.now()}
		if fill != nil {
			fill(ev)
		}
		out.event(ev)
	}
	state := func() {
		publish(models.EventCalibrationState, func(ev *models.EngineEvent) {
			ev.State = calibrationSnapshot(cal.State())
		})
	}

	tick := time.NewTicker(m.cfg.TickInterval)
	defer tick.Stop()

	cal.Start()
	state()

	for {
		select {
		case env := <-r.inbox:
			if env.frame != nil {
				observability.FramesProcessed.WithLabelValues(string(kindCalibration)).Inc()
				cal.ProcessFrame(metricsOf(env.frame.Points))
				continue
			}
			req := env.cmd
			switch req.action {
			case actionPause:
				cal.Pause()
				state()
				req.answer(response{})
			case actionResume:
				cal.Resume()
				state()
				req.answer(response{})
			case actionStop:
				cal.Stop()
				b, err := m.completeCalibration(r, cal, out)
				m.detach(r)
				req.answer(response{baseline: b, err: err})
				return
			default:
				req.answer(response{err: ErrNotFound})
			}
		case <-tick.C:
			_, done := cal.Tick()
			state()
			if done {
				if _, err := m.completeCalibration(r, cal, out); err != nil {
					slog.Warn("calibration failed", "run_id", r.id, "user_id", r.userID, "error", err)
				}
				return
			}
		case <-m.ctx.Done():
			// Shutdown abandons the run without saving a baseline.
			out.close()
			return
		}
	}
}

// completeCalibration archives the raw samples, saves the baseline and
// publishes the outcome as the run's last event.
func (m *Manager) completeCalibration(r *run, cal *focus.Calibration, out *outbox) (*models.Baseline, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout)
	defer cancel()

	now := m.now()
	samples := cal.Samples()
	if m.archive != nil {
		if err := m.archive.PutJSON(ctx, storage.CalibrationKey(r.userID, r.id), samples); err != nil {
			slog.Warn("archive calibration samples", "run_id", r.id, "error", err)
		}
	}

	snap := calibrationSnapshot(cal.State())
	b, err := focus.ComputeBaseline(r.userID, samples, now)
	if err == nil {
		if err = m.store.UpsertBaseline(ctx, &b); err != nil {
			err = fmt.Errorf("save baseline: %w", err)
		}
	}

	out.close()
	ev := &models.EngineEvent{RunID: r.id, UserID: r.userID, Timestamp: now, State: snap}
	if err != nil {
		ev.Type = models.EventCalibrationFailed
		ev.Error = err.Error()
	} else {
		ev.Type = models.EventCalibrationCompleted
		ev.Baseline = &b
	}
	if perr := m.pub.PublishEvent(ctx, r.id.String(), ev); perr != nil {
		slog.Warn("publish calibration result", "run_id", r.id, "error", perr)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("baseline saved",
		"user_id", r.userID,
		"baseline_id", b.ID,
		"samples", len(samples.EAR),
		"blink_per_min", b.BlinkPerMin,
	)
	return &b, nil
}
