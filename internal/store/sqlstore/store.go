package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/pliu/prompthub/internal/domain"
	"github.com/pliu/prompthub/internal/models"
)

//go:embed migrations
var migrationsFS embed.FS

type SQLStore struct {
	db         *sql.DB
	driverName string
	log        *zap.Logger
}

// New opens the database, applies pending migrations and returns the store.
// driverName is "sqlite3" or "postgres".
func New(driverName, dataSourceName string, log *zap.Logger) (*SQLStore, error) {
	if driverName == "sqlite3" {
		dataSourceName = withSQLiteParams(dataSourceName)
	}

	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driverName == "sqlite3" {
		// SQLite serializes writers anyway, and :memory: databases exist per
		// connection.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLStore{db: db, driverName: driverName, log: log}
	if err := s.migrate(dataSourceName); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func withSQLiteParams(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_busy_timeout=5000"
}

func (s *SQLStore) migrate(dataSourceName string) error {
	src, err := iofs.New(migrationsFS, "migrations/"+s.driverName)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	var m *migrate.Migrate
	switch s.driverName {
	case "sqlite3":
		driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
		if err != nil {
			return fmt.Errorf("create migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite3", driver)
		if err != nil {
			return fmt.Errorf("create migrate instance: %w", err)
		}
		// m.Close would also close s.db.
		defer src.Close()
	case "postgres":
		m, err = migrate.NewWithSourceInstance("iofs", src, dataSourceName)
		if err != nil {
			return fmt.Errorf("create migrate instance: %w", err)
		}
		defer m.Close()
	default:
		return fmt.Errorf("unsupported driver %q", s.driverName)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	s.log.Info("migrations applied",
		zap.String("driver", s.driverName),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Helper to handle placeholders
func (s *SQLStore) rebind(query string) string {
	if s.driverName == "postgres" {
		// Replace ? with $1, $2, etc.
		n := strings.Count(query, "?")
		for i := 1; i <= n; i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 23505 = unique_violation
		return pqErr.Code == "23505"
	}
	return false
}

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	query := s.rebind("INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?) RETURNING id")

	return s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, query, user.Email, user.PasswordHash, user.CreatedAt).Scan(&user.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return &domain.ConflictError{Message: "Email already registered"}
			}
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := s.rebind("SELECT id, email, password_hash, created_at FROM users WHERE email = ?")
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := s.rebind("SELECT id, email, password_hash, created_at FROM users WHERE id = ?")
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLStore) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Message: "User not found"}
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (s *SQLStore) CreateProject(ctx context.Context, project *models.Project) error {
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now
	query := s.rebind("INSERT INTO projects (user_id, name, system_prompt, created_at, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING id")

	return s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, query,
			project.UserID,
			project.Name,
			project.SystemPrompt,
			project.CreatedAt,
			project.UpdatedAt,
		).Scan(&project.ID)
		if err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		return nil
	})
}

const projectColumns = "id, user_id, name, system_prompt, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	var p models.Project
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.SystemPrompt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func projectNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Message: "Project not found"}
	}
	return fmt.Errorf("get project: %w", err)
}

// GetProject returns the project only when it belongs to userID. A project
// owned by someone else is reported exactly like a missing one.
func (s *SQLStore) GetProject(ctx context.Context, id, userID int64) (*models.Project, error) {
	query := s.rebind("SELECT " + projectColumns + " FROM projects WHERE id = ? AND user_id = ?")
	p, err := scanProject(s.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return nil, projectNotFound(err)
	}
	return p, nil
}

func (s *SQLStore) ListProjects(ctx context.Context, userID int64) ([]models.Project, error) {
	query := s.rebind("SELECT " + projectColumns + " FROM projects WHERE user_id = ? ORDER BY id ASC")
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// UpdateProject loads the owned project, lets apply mutate it and writes it
// back, all in one transaction.
func (s *SQLStore) UpdateProject(ctx context.Context, id, userID int64, apply func(*models.Project) error) (*models.Project, error) {
	selectQuery := s.rebind("SELECT " + projectColumns + " FROM projects WHERE id = ? AND user_id = ?")
	updateQuery := s.rebind("UPDATE projects SET name = ?, system_prompt = ?, updated_at = ? WHERE id = ? AND user_id = ?")

	var updated *models.Project
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := scanProject(tx.QueryRowContext(ctx, selectQuery, id, userID))
		if err != nil {
			return projectNotFound(err)
		}
		if err := apply(p); err != nil {
			return err
		}
		p.UpdatedAt = time.Now().UTC()

		if _, err := tx.ExecContext(ctx, updateQuery, p.Name, p.SystemPrompt, p.UpdatedAt, p.ID, p.UserID); err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
