package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/your-org/mindfocus/internal/models"
)

// SQLiteStore is the single-file backend for local and edge deployments.
// Timestamps are stored in UTC so that text ordering matches time ordering.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// applies the schema. ":memory:" gives a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: an in-memory database exists per connection, and
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	ddl, err := schema("sqlite")
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var sqErr sqlite3.Error
	return errors.As(err, &sqErr) && sqErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, email, displayName string) (*models.User, error) {
	u := &models.User{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create user %s: %w", email, ErrDuplicate)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// --- Settings ---

func (s *SQLiteStore) GetSettings(ctx context.Context, userID uuid.UUID) (*models.Settings, error) {
	st := &models.Settings{}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, camera_monitoring_enabled, low_focus_alerts_enabled, eyes_closed_alerts_enabled,
			blink_alerts_enabled, head_pose_alerts_enabled, yawn_alerts_enabled, face_lost_alerts_enabled,
			gps_enabled, updated_at
		FROM user_settings WHERE user_id = ?`, userID,
	).Scan(&st.UserID, &st.CameraMonitoringEnabled, &st.LowFocusAlertsEnabled, &st.EyesClosedAlertsEnabled,
		&st.BlinkAlertsEnabled, &st.HeadPoseAlertsEnabled, &st.YawnAlertsEnabled, &st.FaceLostAlertsEnabled,
		&st.GPSEnabled, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) UpsertSettings(ctx context.Context, st *models.Settings) error {
	st.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, camera_monitoring_enabled, low_focus_alerts_enabled,
			eyes_closed_alerts_enabled, blink_alerts_enabled, head_pose_alerts_enabled, yawn_alerts_enabled,
			face_lost_alerts_enabled, gps_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			camera_monitoring_enabled = excluded.camera_monitoring_enabled,
			low_focus_alerts_enabled = excluded.low_focus_alerts_enabled,
			eyes_closed_alerts_enabled = excluded.eyes_closed_alerts_enabled,
			blink_alerts_enabled = excluded.blink_alerts_enabled,
			head_pose_alerts_enabled = excluded.head_pose_alerts_enabled,
			yawn_alerts_enabled = excluded.yawn_alerts_enabled,
			face_lost_alerts_enabled = excluded.face_lost_alerts_enabled,
			gps_enabled = excluded.gps_enabled,
			updated_at = excluded.updated_at`,
		st.UserID, st.CameraMonitoringEnabled, st.LowFocusAlertsEnabled, st.EyesClosedAlertsEnabled,
		st.BlinkAlertsEnabled, st.HeadPoseAlertsEnabled, st.YawnAlertsEnabled, st.FaceLostAlertsEnabled,
		st.GPSEnabled, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// --- Baselines ---

func (s *SQLiteStore) GetBaseline(ctx context.Context, userID uuid.UUID) (*models.Baseline, error) {
	b := &models.Baseline{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, ear_mean, mar_mean, head_pitch_mean_deg, blink_per_min, noise_db_mean, created_at
		FROM baselines WHERE user_id = ?`, userID,
	).Scan(&b.ID, &b.UserID, &b.EARMean, &b.MARMean, &b.HeadPitchMeanDeg, &b.BlinkPerMin, &b.NoiseDBMean, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get baseline: %w", err)
	}
	return b, nil
}

// UpsertBaseline replaces the user's baseline. b.ID is set to the id of the
// stored row.
func (s *SQLiteStore) UpsertBaseline(ctx context.Context, b *models.Baseline) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	b.CreatedAt = b.CreatedAt.UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO baselines (id, user_id, ear_mean, mar_mean, head_pitch_mean_deg, blink_per_min, noise_db_mean, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			ear_mean = excluded.ear_mean,
			mar_mean = excluded.mar_mean,
			head_pitch_mean_deg = excluded.head_pitch_mean_deg,
			blink_per_min = excluded.blink_per_min,
			noise_db_mean = excluded.noise_db_mean,
			created_at = excluded.created_at
		RETURNING id`,
		b.ID, b.UserID, b.EARMean, b.MARMean, b.HeadPitchMeanDeg, b.BlinkPerMin, b.NoiseDBMean, b.CreatedAt,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("upsert baseline: %w", err)
	}
	return nil
}

// --- Sessions ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row rowScanner) (*models.Session, error) {
	ss := &models.Session{}
	err := row.Scan(&ss.ID, &ss.UserID, &ss.StartedAt, &ss.EndedAt, &ss.BreaksCount, &ss.FocusAvg,
		&ss.EARAvg, &ss.MARAvg, &ss.HeadPitchAvgDeg, &ss.Latitude, &ss.Longitude)
	return ss, err
}

func (s *SQLiteStore) CreateSession(ctx context.Context, ss *models.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, started_at, latitude, longitude) VALUES (?, ?, ?, ?, ?)`,
		ss.ID, ss.UserID, ss.StartedAt.UTC(), ss.Latitude, ss.Longitude)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// CloseSession writes the closing values of an open session. A session that
// is already closed, or does not exist, yields ErrNotFound.
func (s *SQLiteStore) CloseSession(ctx context.Context, id uuid.UUID, c models.SessionClose) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, breaks_count = ?, focus_avg = ?, ear_avg = ?, mar_avg = ?,
			head_pitch_avg_deg = ?
		WHERE id = ? AND ended_at IS NULL`,
		c.EndedAt.UTC(), c.BreaksCount, c.FocusAvg, c.EARAvg, c.MARAvg, c.HeadPitchAvgDeg, id)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("close session %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	ss, err := scanSQLiteSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return ss, nil
}

// ListSessions returns the user's completed sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND ended_at IS NOT NULL
		ORDER BY ended_at DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		ss, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *ss)
	}
	return sessions, rows.Err()
}

// LastSession returns the user's most recently completed session.
func (s *SQLiteStore) LastSession(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	ss, err := scanSQLiteSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND ended_at IS NOT NULL
		ORDER BY ended_at DESC LIMIT 1`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last session: %w", err)
	}
	return ss, nil
}

// DeleteSession removes a session and, by cascade, its metrics.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete session %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Metrics ---

// InsertMetrics writes metric buckets in one transaction. A bucket already
// stored for the session is left untouched.
func (s *SQLiteStore) InsertMetrics(ctx context.Context, metrics []models.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert metrics: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO session_metrics (id, session_id, bucket_sec, focus_score, ear, mar, head_pitch_deg)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, bucket_sec) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert metrics: %w", err)
	}
	defer stmt.Close()

	for _, m := range metrics {
		if _, err := stmt.ExecContext(ctx, m.ID, m.SessionID, m.BucketSec, m.FocusScore, m.EAR, m.MAR, m.HeadPitchDeg); err != nil {
			return fmt.Errorf("insert metric %d: %w", m.BucketSec, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit metrics: %w", err)
	}
	return nil
}

// ListMetrics returns the session's buckets in time order.
func (s *SQLiteStore) ListMetrics(ctx context.Context, sessionID uuid.UUID) ([]models.Metric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, bucket_sec, focus_score, ear, mar, head_pitch_deg
		FROM session_metrics WHERE session_id = ? ORDER BY bucket_sec`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []models.Metric
	for rows.Next() {
		var m models.Metric
		if err := rows.Scan(&m.ID, &m.SessionID, &m.BucketSec, &m.FocusScore, &m.EAR, &m.MAR, &m.HeadPitchDeg); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
