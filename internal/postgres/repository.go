package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/habit-scoreboard/internal/config"
	"github.com/habit-scoreboard/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks that the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			external_id VARCHAR(255) NOT NULL UNIQUE,
			email VARCHAR(255) NOT NULL,
			first_name VARCHAR(255),
			last_name VARCHAR(255),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS habits (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			unit VARCHAR(64) NOT NULL,
			daily_goal INT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			habit_id VARCHAR(64) NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
			submission_date DATE NOT NULL,
			actual_amount DOUBLE PRECISION NOT NULL,
			points DOUBLE PRECISION NOT NULL,
			perceived_rating VARCHAR(16) NOT NULL,
			note TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_habits_user ON habits(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_user_date ON submissions(user_id, submission_date)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_created ON submissions(created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const userColumns = `id, external_id, email, first_name, last_name, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UpsertUser creates a user or refreshes an existing one by external id
func (r *Repository) UpsertUser(ctx context.Context, req domain.UpsertUserRequest) (*domain.User, error) {
	query := `
		INSERT INTO users (id, external_id, email, first_name, last_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (external_id)
		DO UPDATE SET email = $3, first_name = $4, last_name = $5, updated_at = $6
		RETURNING ` + userColumns
	now := time.Now()
	user, err := scanUser(r.pool.QueryRow(ctx, query,
		uuid.NewString(), req.ExternalID, req.Email, req.FirstName, req.LastName, now,
	))
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}
	return user, nil
}

// GetUserByExternalID looks a user up by identity provider id
func (r *Repository) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, externalID))
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

// UpdateUserNames changes the display names of an existing user
func (r *Repository) UpdateUserNames(ctx context.Context, req domain.UpdateNamesRequest) (*domain.User, error) {
	query := `
		UPDATE users SET first_name = $2, last_name = $3, updated_at = $4
		WHERE external_id = $1
		RETURNING ` + userColumns
	user, err := scanUser(r.pool.QueryRow(ctx, query, req.ExternalID, req.FirstName, req.LastName, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("updating user names: %w", err)
	}
	return user, nil
}

// GetUserNames returns the first names of the given users keyed by id.
// Users without a row or without a first name are absent from the result.
func (r *Repository) GetUserNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	query := `SELECT id, first_name FROM users WHERE id = ANY($1) AND first_name IS NOT NULL`
	rows, err := r.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("getting user names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning user name: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading user names: %w", err)
	}
	return names, nil
}

const habitColumns = `id, user_id, name, unit, daily_goal, created_at, updated_at`

func scanHabit(row pgx.Row) (*domain.Habit, error) {
	var h domain.Habit
	err := row.Scan(&h.ID, &h.UserID, &h.Name, &h.Unit, &h.DailyGoal, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrHabitNotFound
		}
		return nil, err
	}
	return &h, nil
}

// CreateHabit stores a new habit for a user
func (r *Repository) CreateHabit(ctx context.Context, req domain.HabitRequest) (*domain.Habit, error) {
	query := `
		INSERT INTO habits (id, user_id, name, unit, daily_goal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING ` + habitColumns
	habit, err := scanHabit(r.pool.QueryRow(ctx, query,
		uuid.NewString(), req.UserID, req.Name, req.Unit, req.DailyGoal, time.Now(),
	))
	if err != nil {
		return nil, fmt.Errorf("creating habit: %w", err)
	}
	return habit, nil
}

// ListHabits returns a user's habits, oldest first
func (r *Repository) ListHabits(ctx context.Context, userID string) ([]domain.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing habits: %w", err)
	}
	defer rows.Close()

	var habits []domain.Habit
	for rows.Next() {
		habit, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning habit: %w", err)
		}
		habits = append(habits, *habit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading habits: %w", err)
	}
	return habits, nil
}

// UpdateHabit changes the editable fields of an existing habit
func (r *Repository) UpdateHabit(ctx context.Context, req domain.HabitRequest) (*domain.Habit, error) {
	query := `
		UPDATE habits SET name = $2, unit = $3, daily_goal = $4, updated_at = $5
		WHERE id = $1
		RETURNING ` + habitColumns
	habit, err := scanHabit(r.pool.QueryRow(ctx, query, req.ID, req.Name, req.Unit, req.DailyGoal, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("updating habit: %w", err)
	}
	return habit, nil
}

// CreateSubmission inserts a submission
func (r *Repository) CreateSubmission(ctx context.Context, sub domain.Submission) (*domain.Submission, error) {
	query := `
		INSERT INTO submissions (id, user_id, habit_id, submission_date, actual_amount, points, perceived_rating, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		sub.ID,
		sub.UserID,
		sub.HabitID,
		sub.SubmissionDate.Time(),
		sub.ActualAmount,
		sub.Points,
		sub.PerceivedRating,
		sub.Note,
		sub.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating submission: %w", err)
	}
	return &sub, nil
}

// ListSubmissions returns up to limit submissions ordered by date.
// An empty userID returns every user's submissions.
func (r *Repository) ListSubmissions(ctx context.Context, userID string, limit int) ([]domain.Submission, error) {
	query := `
		SELECT id, user_id, habit_id, submission_date, actual_amount, points, perceived_rating, note, created_at
		FROM submissions
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY submission_date, created_at
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		var sub domain.Submission
		var date time.Time
		err := rows.Scan(
			&sub.ID,
			&sub.UserID,
			&sub.HabitID,
			&date,
			&sub.ActualAmount,
			&sub.Points,
			&sub.PerceivedRating,
			&sub.Note,
			&sub.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning submission: %w", err)
		}
		sub.SubmissionDate = domain.DateOf(date)
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading submissions: %w", err)
	}
	return subs, nil
}

// RecentSubmissions returns the newest submissions joined with user and habit details
func (r *Repository) RecentSubmissions(ctx context.Context, limit int) ([]domain.RecentSubmission, error) {
	query := `
		SELECT s.id, s.submission_date, s.actual_amount, s.points, s.perceived_rating, s.note, s.created_at,
			   u.first_name, u.last_name, h.name, h.unit, h.daily_goal
		FROM submissions s
		LEFT JOIN users u ON u.id = s.user_id
		LEFT JOIN habits h ON h.id = s.habit_id
		ORDER BY s.created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("getting recent submissions: %w", err)
	}
	defer rows.Close()

	var recent []domain.RecentSubmission
	for rows.Next() {
		var rs domain.RecentSubmission
		var date time.Time
		err := rows.Scan(
			&rs.ID,
			&date,
			&rs.ActualAmount,
			&rs.Points,
			&rs.PerceivedRating,
			&rs.Note,
			&rs.CreatedAt,
			&rs.UserFirstName,
			&rs.UserLastName,
			&rs.HabitName,
			&rs.HabitUnit,
			&rs.HabitDailyGoal,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning recent submission: %w", err)
		}
		rs.SubmissionDate = domain.DateOf(date)
		recent = append(recent, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading recent submissions: %w", err)
	}
	return recent, nil
}
