package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/listgate/listgate/internal/cryptox"
	"github.com/listgate/listgate/internal/database"
	"github.com/listgate/listgate/internal/models"
	"github.com/listgate/listgate/internal/repositories"
)

// testMasterKey is a fixed 32-byte key for at-rest email encryption in tests
var testMasterKey = []byte("0123456789abcdef0123456789abcdef")

// TestDB manages the PostgreSQL testcontainer and database wiring
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
	Codec      *cryptox.Codec
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("listgate"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	codec, err := cryptox.NewCodec(testMasterKey)
	if err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create codec: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
		Codec:      codec,
	}, nil
}

// runMigrations executes all goose migrations
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	goose.SetLogger(log.New(io.Discard, "", 0))

	// Goose needs a stdlib DB connection
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"access_records",
		"verification_requests",
		"contents",
		"tenants",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from the database wrapper
func (db *TestDB) InitializeRepositories() (
	*repositories.TenantRepository,
	*repositories.ContentRepository,
	*repositories.VerificationRequestRepository,
	*repositories.AccessRecordRepository,
) {
	return repositories.NewTenantRepository(db.DB),
		repositories.NewContentRepository(db.DB),
		repositories.NewVerificationRequestRepository(db.DB, db.Codec),
		repositories.NewAccessRecordRepository(db.DB, db.Codec)
}

// SeedTenant inserts a tenant with the given cache window
func SeedTenant(ctx context.Context, pool *pgxpool.Pool, name string, cacheDays int) (*models.Tenant, error) {
	query := `
		INSERT INTO tenants (name, esp_provider, esp_api_key, cache_duration_days)
		VALUES ($1, 'kit', 'test-api-key', $2)
		RETURNING id, name, esp_provider, esp_api_key, cache_duration_days, created_at
	`

	var tenant models.Tenant
	err := pool.QueryRow(ctx, query, name, cacheDays).Scan(
		&tenant.ID, &tenant.Name, &tenant.ESPProvider, &tenant.ESPAPIKey,
		&tenant.CacheDurationDays, &tenant.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert tenant: %w", err)
	}

	return &tenant, nil
}

// SeedContent inserts gated content for a tenant
func SeedContent(ctx context.Context, pool *pgxpool.Pool, tenantID, slug, requiredTagID string) (*models.Content, error) {
	query := `
		INSERT INTO contents (tenant_id, slug, title, body, required_tag_id)
		VALUES ($1, $2, $3, 'subscriber-only body', $4)
		RETURNING id, tenant_id, slug, title, body, required_tag_id, created_at
	`

	var content models.Content
	err := pool.QueryRow(ctx, query, tenantID, slug, "Title for "+slug, requiredTagID).Scan(
		&content.ID, &content.TenantID, &content.Slug, &content.Title,
		&content.Body, &content.RequiredTagID, &content.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert content: %w", err)
	}

	return &content, nil
}

// BackdateCheckCycle ages an access record's check cycle so it reads as
// abandoned by its worker
func BackdateCheckCycle(ctx context.Context, pool *pgxpool.Pool, id string, age time.Duration) error {
	query := `
		UPDATE access_records
		SET updated_at = NOW() - make_interval(secs => $2)
		WHERE id = $1
	`

	_, err := pool.Exec(ctx, query, id, age.Seconds())
	if err != nil {
		return fmt.Errorf("failed to backdate check cycle: %w", err)
	}
	return nil
}

// ExpireVerificationRequest backdates a request so its link reads as expired
func ExpireVerificationRequest(ctx context.Context, pool *pgxpool.Pool, id string, age time.Duration) error {
	query := `
		UPDATE verification_requests
		SET expires_at = NOW() - make_interval(secs => $2),
		    created_at = NOW() - make_interval(secs => $2)
		WHERE id = $1
	`

	_, err := pool.Exec(ctx, query, id, age.Seconds())
	if err != nil {
		return fmt.Errorf("failed to expire verification request: %w", err)
	}
	return nil
}
