package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/your-org/mindfocus/internal/config"
	"github.com/your-org/mindfocus/internal/models"
)

var (
	// ErrNotFound is returned by deletes and updates that matched no row,
	// and by object reads of a missing key.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique column already holds the value.
	ErrDuplicate = errors.New("already exists")
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Store is the relational store shared by the API and the worker. Getters
// return (nil, nil) when the row does not exist.
type Store interface {
	CreateUser(ctx context.Context, email, displayName string) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	GetSettings(ctx context.Context, userID uuid.UUID) (*models.Settings, error)
	UpsertSettings(ctx context.Context, s *models.Settings) error

	GetBaseline(ctx context.Context, userID uuid.UUID) (*models.Baseline, error)
	UpsertBaseline(ctx context.Context, b *models.Baseline) error

	CreateSession(ctx context.Context, s *models.Session) error
	CloseSession(ctx context.Context, id uuid.UUID, c models.SessionClose) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListSessions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Session, error)
	LastSession(ctx context.Context, userID uuid.UUID) (*models.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error

	InsertMetrics(ctx context.Context, metrics []models.Metric) error
	ListMetrics(ctx context.Context, sessionID uuid.UUID) ([]models.Metric, error)

	Ping(ctx context.Context) error
	Close()
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		s, err := NewPostgresStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func schema(name string) (string, error) {
	data, err := schemaFS.ReadFile("schema/" + name + ".sql")
	if err != nil {
		return "", fmt.Errorf("read %s schema: %w", name, err)
	}
	return string(data), nil
}
