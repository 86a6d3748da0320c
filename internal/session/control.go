package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/your-org/mindfocus/internal/focus"
	"github.com/your-org/mindfocus/internal/queue"
)

// HandleCommand executes a control command received from the API.
func (m *Manager) HandleCommand(ctx context.Context, cmd queue.Command) queue.Reply {
	var (
		reply queue.Reply
		err   error
	)

	switch cmd.Action {
	case queue.ActionSessionStart:
		reply.Session, err = m.Start(ctx, cmd.UserID, cmd.Latitude, cmd.Longitude)
	case queue.ActionSessionStop:
		reply.Session, err = m.StopSession(ctx, cmd.RunID)
	case queue.ActionSessionPause, queue.ActionCalibrationPause:
		err = m.Pause(ctx, cmd.RunID)
	case queue.ActionSessionResume, queue.ActionCalibrationResume:
		err = m.Resume(ctx, cmd.RunID)
	case queue.ActionCalibrationStart:
		id, serr := m.StartCalibration(ctx, cmd.UserID)
		if serr == nil {
			reply.CalibrationID = &id
		}
		err = serr
	case queue.ActionCalibrationStop:
		reply.Baseline, err = m.StopCalibration(ctx, cmd.RunID)
	case queue.ActionSettingsApply:
		if cmd.Settings == nil {
			err = fmt.Errorf("%w: settings missing", errInvalid)
			break
		}
		err = m.ApplySettings(ctx, cmd.UserID, *cmd.Settings)
	default:
		err = fmt.Errorf("%w: unknown action %q", errInvalid, cmd.Action)
	}

	if err != nil {
		reply.Error = err.Error()
		reply.Code = codeOf(err)
		if reply.Code == queue.CodeInternal || reply.Code == queue.CodeUnavailable {
			slog.Error("control command failed", "action", cmd.Action, "run_id", cmd.RunID, "user_id", cmd.UserID, "error", err)
		}
		return reply
	}
	reply.OK = true
	return reply
}

var errInvalid = errors.New("invalid command")

func codeOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownUser):
		return queue.CodeNotFound
	case errors.Is(err, ErrAlreadyRunning):
		return queue.CodeConflict
	case errors.Is(err, errInvalid):
		return queue.CodeInvalid
	case errors.Is(err, focus.ErrInsufficientData):
		return queue.CodeInsufficient
	case errors.Is(err, ErrNotCreated), errors.Is(err, ErrClosed),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return queue.CodeUnavailable
	default:
		return queue.CodeInternal
	}
}
