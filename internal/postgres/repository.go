package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/world-gallery/internal/config"
	"github.com/world-gallery/internal/domain"
)

// dbPool is the subset of pgxpool.Pool used by the repository
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   dbPool
	logger *slog.Logger
	now    func() time.Time
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return NewRepositoryWithPool(pool, logger), nil
}

// NewRepositoryWithPool wraps an existing pool
func NewRepositoryWithPool(pool dbPool, logger *slog.Logger) *Repository {
	return &Repository{
		pool:   pool,
		logger: logger,
		now:    time.Now,
	}
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email VARCHAR(320) NOT NULL UNIQUE,
			display_name VARCHAR(255) NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS worlds (
			id VARCHAR(64) PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			seed VARCHAR(255),
			description TEXT,
			progress_description TEXT,
			structures TEXT,
			days_played INT NOT NULL DEFAULT 0,
			uploaded_by_name VARCHAR(255) NOT NULL,
			uploaded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			world_file_url TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS world_images (
			id BIGSERIAL PRIMARY KEY,
			world_id VARCHAR(64) NOT NULL REFERENCES worlds(id) ON DELETE CASCADE,
			image_url TEXT NOT NULL,
			position INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS world_likes (
			world_id VARCHAR(64) NOT NULL REFERENCES worlds(id) ON DELETE CASCADE,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(world_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_worlds_uploaded_at ON worlds(uploaded_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_world_images_world ON world_images(world_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_world_likes_user ON world_likes(user_id)`,
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

const worldColumns = `
	w.id, w.title, COALESCE(w.seed, ''), COALESCE(w.description, ''),
	COALESCE(w.progress_description, ''), COALESCE(w.structures, ''),
	w.days_played, w.uploaded_by_name, w.uploaded_at, w.world_file_url,
	ARRAY(
		SELECT wi.image_url FROM world_images wi
		WHERE wi.world_id = w.id
		ORDER BY wi.position, wi.id
	) AS images,
	(SELECT COUNT(*) FROM world_likes wl WHERE wl.world_id = w.id) AS like_count`

// scanWorld reads one row produced by worldColumns
func scanWorld(row pgx.Row) (domain.World, error) {
	var world domain.World
	var images []string
	err := row.Scan(
		&world.ID,
		&world.Title,
		&world.Seed,
		&world.Description,
		&world.ProgressDescription,
		&world.Structures,
		&world.DaysPlayed,
		&world.UploadedByName,
		&world.UploadedAt,
		&world.WorldFileURL,
		&images,
		&world.LikeCount,
	)
	if err != nil {
		return world, err
	}
	world.Images = make([]domain.WorldImage, len(images))
	for i, url := range images {
		world.Images[i] = domain.WorldImage{WorldID: world.ID, ImageURL: url, Position: i}
	}
	return world, nil
}

// ListWorlds returns every world with its images and like count, newest first
func (r *Repository) ListWorlds(ctx context.Context) ([]domain.World, error) {
	query := `SELECT` + worldColumns + `
		FROM worlds w
		ORDER BY w.uploaded_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing worlds: %w", err)
	}
	defer rows.Close()

	worlds := []domain.World{}
	for rows.Next() {
		world, err := scanWorld(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning world: %w", err)
		}
		worlds = append(worlds, world)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating worlds: %w", err)
	}
	return worlds, nil
}

// GetWorld retrieves a single world by ID
func (r *Repository) GetWorld(ctx context.Context, worldID string) (*domain.World, error) {
	query := `SELECT` + worldColumns + `
		FROM worlds w
		WHERE w.id = $1
	`
	world, err := scanWorld(r.pool.QueryRow(ctx, query, worldID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWorldNotFound
		}
		return nil, fmt.Errorf("getting world: %w", err)
	}
	return &world, nil
}

// CreateWorld inserts a world and its images in one transaction
func (r *Repository) CreateWorld(ctx context.Context, req domain.CreateWorldRequest) (world *domain.World, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.UploadedAt.IsZero() {
		req.UploadedAt = r.now()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO worlds (id, title, seed, description, progress_description, structures,
			days_played, uploaded_by_name, uploaded_at, world_file_url)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10)
	`,
		req.ID,
		req.Title,
		req.Seed,
		req.Description,
		req.ProgressDescription,
		req.Structures,
		req.DaysPlayed,
		req.UploadedByName,
		req.UploadedAt,
		req.WorldFileURL,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting world: %w", err)
	}

	images := make([]domain.WorldImage, 0, len(req.ImageURLs))
	for i, url := range req.ImageURLs {
		_, err = tx.Exec(ctx,
			`INSERT INTO world_images (world_id, image_url, position) VALUES ($1, $2, $3)`,
			req.ID, url, i,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting world image: %w", err)
		}
		images = append(images, domain.WorldImage{WorldID: req.ID, ImageURL: url, Position: i})
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing world: %w", err)
	}

	return &domain.World{
		ID:                  req.ID,
		Title:               req.Title,
		Seed:                req.Seed,
		Description:         req.Description,
		ProgressDescription: req.ProgressDescription,
		Structures:          req.Structures,
		DaysPlayed:          req.DaysPlayed,
		UploadedByName:      req.UploadedByName,
		UploadedAt:          req.UploadedAt,
		WorldFileURL:        req.WorldFileURL,
		Images:              images,
	}, nil
}

// InsertLike stores a like; an existing like for the pair is left untouched
func (r *Repository) InsertLike(ctx context.Context, like domain.Like) error {
	if like.CreatedAt.IsZero() {
		like.CreatedAt = r.now()
	}
	query := `
		INSERT INTO world_likes (world_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (world_id, user_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, like.WorldID, like.UserID, like.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrWorldNotFound
		}
		return fmt.Errorf("inserting like: %w", err)
	}
	return nil
}

// DeleteLike removes a like if present. Unknown worlds yield ErrWorldNotFound.
func (r *Repository) DeleteLike(ctx context.Context, worldID, userID string) error {
	query := `
		WITH removed AS (
			DELETE FROM world_likes WHERE world_id = $1 AND user_id = $2
		)
		SELECT EXISTS(SELECT 1 FROM worlds WHERE id = $1)
	`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, worldID, userID).Scan(&exists); err != nil {
		return fmt.Errorf("deleting like: %w", err)
	}
	if !exists {
		return domain.ErrWorldNotFound
	}
	return nil
}

// ToggleLike flips the like relation for (world, user) atomically.
// The world row is locked so concurrent toggles on the same world serialize.
func (r *Repository) ToggleLike(ctx context.Context, worldID, userID string) (result *domain.ToggleResult, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM worlds WHERE id = $1 FOR UPDATE`, worldID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWorldNotFound
		}
		return nil, fmt.Errorf("locking world: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM world_likes WHERE world_id = $1 AND user_id = $2`, worldID, userID)
	if err != nil {
		return nil, fmt.Errorf("deleting like: %w", err)
	}

	liked := false
	if tag.RowsAffected() == 0 {
		_, err = tx.Exec(ctx,
			`INSERT INTO world_likes (world_id, user_id, created_at) VALUES ($1, $2, $3)`,
			worldID, userID, r.now(),
		)
		if err != nil {
			return nil, fmt.Errorf("inserting like: %w", err)
		}
		liked = true
	}

	var count int64
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM world_likes WHERE world_id = $1`, worldID).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("counting likes: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing toggle: %w", err)
	}

	return &domain.ToggleResult{WorldID: worldID, Liked: liked, LikeCount: count}, nil
}

// CountLikes returns the number of likes on a world
func (r *Repository) CountLikes(ctx context.Context, worldID string) (int64, error) {
	query := `
		SELECT COUNT(wl.user_id)
		FROM worlds w
		LEFT JOIN world_likes wl ON wl.world_id = w.id
		WHERE w.id = $1
		GROUP BY w.id
	`
	var count int64
	if err := r.pool.QueryRow(ctx, query, worldID).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrWorldNotFound
		}
		return 0, fmt.Errorf("counting likes: %w", err)
	}
	return count, nil
}

// GetLikeCounts returns like counts for the given worlds; worlds without likes map to zero
func (r *Repository) GetLikeCounts(ctx context.Context, worldIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(worldIDs))
	if len(worldIDs) == 0 {
		return counts, nil
	}
	for _, id := range worldIDs {
		counts[id] = 0
	}

	query := `
		SELECT world_id, COUNT(*)
		FROM world_likes
		WHERE world_id = ANY($1)
		GROUP BY world_id
	`
	rows, err := r.pool.Query(ctx, query, worldIDs)
	if err != nil {
		return nil, fmt.Errorf("getting like counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var worldID string
		var count int64
		if err := rows.Scan(&worldID, &count); err != nil {
			return nil, fmt.Errorf("scanning like count: %w", err)
		}
		counts[worldID] = count
	}
	return counts, rows.Err()
}

// GetAllLikeCounts returns the like count of every world (for sync)
func (r *Repository) GetAllLikeCounts(ctx context.Context) (map[string]int64, error) {
	query := `
		SELECT w.id, COUNT(wl.user_id)
		FROM worlds w
		LEFT JOIN world_likes wl ON wl.world_id = w.id
		GROUP BY w.id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("getting all like counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var worldID string
		var count int64
		if err := rows.Scan(&worldID, &count); err != nil {
			return nil, fmt.Errorf("scanning like count: %w", err)
		}
		counts[worldID] = count
	}
	return counts, rows.Err()
}

// CreateUser stores a new user
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.now()
	}
	query := `
		INSERT INTO users (id, email, display_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetUserByEmail retrieves a user by email address
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT id::text, email, display_name, password_hash, created_at
		FROM users
		WHERE email = $1
	`
	return r.getUser(ctx, query, email)
}

func (r *Repository) getUser(ctx context.Context, query string, arg string) (*domain.User, error) {
	var user domain.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}
