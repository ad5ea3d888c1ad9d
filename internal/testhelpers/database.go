package testhelpers

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/pageza/alchemorsel-recommender/config"
	"github.com/pageza/alchemorsel-recommender/internal/database"
)

// RequireDocker skips the test when no docker binary is available.
func RequireDocker(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed, skipping container-based test")
	}
	if testing.Short() {
		t.Skip("skipping container-based test in short mode")
	}
}

// WriteSecrets creates a secrets directory, points SECRETS_DIR at it and
// returns its path.
func WriteSecrets(t *testing.T, secrets map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, value := range secrets {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(value), 0o600); err != nil {
			t.Fatalf("failed to write secret %s: %v", name, err)
		}
	}
	t.Setenv("SECRETS_DIR", dir)
	return dir
}

// SetupTestDatabase starts a pgvector/pgvector container and returns the
// loaded configuration pointing at it together with an open connection.
func SetupTestDatabase(t *testing.T) (*config.Config, *gorm.DB) {
	RequireDocker(t)

	WriteSecrets(t, map[string]string{
		"db_user":     "postgres",
		"db_password": "postpass",
		"jwt_secret":  "test-jwt-secret",
	})
	t.Setenv("CI", "")
	t.Setenv("ENV", "test")
	t.Setenv("INDEX_BACKEND", "postgres")
	t.Setenv("EMBEDDING_PROVIDER", "hashing")
	t.Setenv("DB_NAME", "recipes")

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("failed to load configuration: %v", err)
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     cfg.Database.User,
				"POSTGRES_PASSWORD": cfg.Database.Password,
				"POSTGRES_DB":       cfg.Database.Name,
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForSQL("5432/tcp", "postgres", func(host string, port nat.Port) string {
					return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
						cfg.Database.User,
						cfg.Database.Password,
						host,
						port.Port(),
						cfg.Database.Name,
						cfg.Database.SSLMode)
				}),
			).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}
	cfg.Database.Host = host
	cfg.Database.Port = mappedPort.Port()

	t.Logf("connecting to database at %s:%s as user %s", host, mappedPort.Port(), cfg.Database.User)
	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	return cfg, db
}
