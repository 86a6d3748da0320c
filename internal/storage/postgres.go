package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/mindfocus/internal/config"
	"github.com/your-org/mindfocus/internal/models"
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates any missing tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl, err := schema("postgres")
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, email, displayName string) (*models.User, error) {
	u := &models.User{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: displayName,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, display_name) VALUES ($1, $2, $3) RETURNING created_at`,
		u.ID, u.Email, u.DisplayName,
	).Scan(&u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("create user %s: %w", email, ErrDuplicate)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u := &models.User{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, display_name, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// --- Settings ---

func (s *PostgresStore) GetSettings(ctx context.Context, userID uuid.UUID) (*models.Settings, error) {
	st := &models.Settings{}
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, camera_monitoring_enabled, low_focus_alerts_enabled, eyes_closed_alerts_enabled,
			blink_alerts_enabled, head_pose_alerts_enabled, yawn_alerts_enabled, face_lost_alerts_enabled,
			gps_enabled, updated_at
		FROM user_settings WHERE user_id = $1`, userID,
	).Scan(&st.UserID, &st.CameraMonitoringEnabled, &st.LowFocusAlertsEnabled, &st.EyesClosedAlertsEnabled,
		&st.BlinkAlertsEnabled, &st.HeadPoseAlertsEnabled, &st.YawnAlertsEnabled, &st.FaceLostAlertsEnabled,
		&st.GPSEnabled, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) UpsertSettings(ctx context.Context, st *models.Settings) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO user_settings (user_id, camera_monitoring_enabled, low_focus_alerts_enabled,
			eyes_closed_alerts_enabled, blink_alerts_enabled, head_pose_alerts_enabled, yawn_alerts_enabled,
			face_lost_alerts_enabled, gps_enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (user_id) DO UPDATE SET
			camera_monitoring_enabled = EXCLUDED.camera_monitoring_enabled,
			low_focus_alerts_enabled = EXCLUDED.low_focus_alerts_enabled,
			eyes_closed_alerts_enabled = EXCLUDED.eyes_closed_alerts_enabled,
			blink_alerts_enabled = EXCLUDED.blink_alerts_enabled,
			head_pose_alerts_enabled = EXCLUDED.head_pose_alerts_enabled,
			yawn_alerts_enabled = EXCLUDED.yawn_alerts_enabled,
			face_lost_alerts_enabled = EXCLUDED.face_lost_alerts_enabled,
			gps_enabled = EXCLUDED.gps_enabled,
			updated_at = now()
		RETURNING updated_at`,
		st.UserID, st.CameraMonitoringEnabled, st.LowFocusAlertsEnabled, st.EyesClosedAlertsEnabled,
		st.BlinkAlertsEnabled, st.HeadPoseAlertsEnabled, st.YawnAlertsEnabled, st.FaceLostAlertsEnabled,
		st.GPSEnabled,
	).Scan(&st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// --- Baselines ---

func (s *PostgresStore) GetBaseline(ctx context.Context, userID uuid.UUID) (*models.Baseline, error) {
	b := &models.Baseline{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, ear_mean, mar_mean, head_pitch_mean_deg, blink_per_min, noise_db_mean, created_at
		FROM baselines WHERE user_id = $1`, userID,
	).Scan(&b.ID, &b.UserID, &b.EARMean, &b.MARMean, &b.HeadPitchMeanDeg, &b.BlinkPerMin, &b.NoiseDBMean, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get baseline: %w", err)
	}
	return b, nil
}

// UpsertBaseline replaces the user's baseline. b.ID is set to the id of the
// stored row.
func (s *PostgresStore) UpsertBaseline(ctx context.Context, b *models.Baseline) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO baselines (id, user_id, ear_mean, mar_mean, head_pitch_mean_deg, blink_per_min, noise_db_mean, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			ear_mean = EXCLUDED.ear_mean,
			mar_mean = EXCLUDED.mar_mean,
			head_pitch_mean_deg = EXCLUDED.head_pitch_mean_deg,
			blink_per_min = EXCLUDED.blink_per_min,
			noise_db_mean = EXCLUDED.noise_db_mean,
			created_at = EXCLUDED.created_at
		RETURNING id`,
		b.ID, b.UserID, b.EARMean, b.MARMean, b.HeadPitchMeanDeg, b.BlinkPerMin, b.NoiseDBMean, b.CreatedAt,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("upsert baseline: %w", err)
	}
	return nil
}

// --- Sessions ---

const sessionColumns = `id, user_id, started_at, ended_at, breaks_count, focus_avg, ear_avg, mar_avg,
	head_pitch_avg_deg, latitude, longitude`

func scanSession(row pgx.Row) (*models.Session, error) {
	ss := &models.Session{}
	err := row.Scan(&ss.ID, &ss.UserID, &ss.StartedAt, &ss.EndedAt, &ss.BreaksCount, &ss.FocusAvg,
		&ss.EARAvg, &ss.MARAvg, &ss.HeadPitchAvgDeg, &ss.Latitude, &ss.Longitude)
	return ss, err
}

func (s *PostgresStore) CreateSession(ctx context.Context, ss *models.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, started_at, latitude, longitude) VALUES ($1, $2, $3, $4, $5)`,
		ss.ID, ss.UserID, ss.StartedAt, ss.Latitude, ss.Longitude,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// CloseSession writes the closing values of an open session. A session that
// is already closed, or does not exist, yields ErrNotFound.
func (s *PostgresStore) CloseSession(ctx context.Context, id uuid.UUID, c models.SessionClose) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET ended_at = $2, breaks_count = $3, focus_avg = $4, ear_avg = $5, mar_avg = $6,
			head_pitch_avg_deg = $7
		WHERE id = $1 AND ended_at IS NULL`,
		id, c.EndedAt, c.BreaksCount, c.FocusAvg, c.EARAvg, c.MARAvg, c.HeadPitchAvgDeg,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("close session %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	ss, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return ss, nil
}

// ListSessions returns the user's completed sessions, newest first.
func (s *PostgresStore) ListSessions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND ended_at IS NOT NULL
		ORDER BY ended_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		ss, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *ss)
	}
	return sessions, rows.Err()
}

// LastSession returns the user's most recently completed session.
func (s *PostgresStore) LastSession(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	ss, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND ended_at IS NOT NULL
		ORDER BY ended_at DESC LIMIT 1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last session: %w", err)
	}
	return ss, nil
}

// DeleteSession removes a session and, by cascade, its metrics.
func (s *PostgresStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete session %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Metrics ---

// InsertMetrics writes metric buckets in one batch. A bucket already stored
// for the session is left untouched.
func (s *PostgresStore) InsertMetrics(ctx context.Context, metrics []models.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(
			`INSERT INTO session_metrics (id, session_id, bucket_sec, focus_score, ear, mar, head_pitch_deg)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (session_id, bucket_sec) DO NOTHING`,
			m.ID, m.SessionID, m.BucketSec, m.FocusScore, m.EAR, m.MAR, m.HeadPitchDeg,
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert metrics: %w", err)
	}
	return nil
}

// ListMetrics returns the session's buckets in time order.
func (s *PostgresStore) ListMetrics(ctx context.Context, sessionID uuid.UUID) ([]models.Metric, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, bucket_sec, focus_score, ear, mar, head_pitch_deg
		FROM session_metrics WHERE session_id = $1 ORDER BY bucket_sec`, sessionID)
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
