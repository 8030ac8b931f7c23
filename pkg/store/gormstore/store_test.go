package gormstore

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/targc/numbervault/pkg/database"
	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/store/storetest"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testStore *Store

// TestMain starts a throwaway Postgres. Without docker the package's tests
// are skipped rather than failed.
func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "numbervault",
				"POSTGRES_PASSWORD": "numbervault",
				"POSTGRES_DB":       "numbervault",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.WithError(err).Warn("Postgres container unavailable, skipping gormstore tests")
		os.Exit(m.Run())
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	dsn := fmt.Sprintf("host=%s port=%s user=numbervault password=numbervault dbname=numbervault sslmode=disable", host, port.Port())

	db, err := database.Connect(dsn)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	testStore = New(db)

	code := m.Run()

	_ = container.Terminate(ctx)

	os.Exit(code)
}

func requireStore(t *testing.T) *Store {
	t.Helper()
	if testStore == nil {
		t.Skip("postgres not available")
	}
	return testStore
}

func TestStoreContract(t *testing.T) {
	requireStore(t)

	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return testStore
	})
}

func TestRevisionMustIncrease(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()

	n := storetest.NewNumber(storetest.UniqueNumber())
	require.NoError(t, s.SaveAll(ctx, []*models.TelephoneNumber{n}))

	err := s.DB.
		WithContext(ctx).
		Model(&models.TelephoneNumber{}).
		Where("id = ?", n.ID).
		Update("status", models.StatusActivated).
		Error

	assert.Error(t, err)
}

func TestNumberIsImmutable(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()

	n := storetest.NewNumber(storetest.UniqueNumber())
	require.NoError(t, s.SaveAll(ctx, []*models.TelephoneNumber{n}))

	err := s.DB.
		WithContext(ctx).
		Model(&models.TelephoneNumber{}).
		Where("id = ?", n.ID).
		Updates(map[string]interface{}{"number": storetest.UniqueNumber(), "revision": 2}).
		Error

	assert.Error(t, err)
}

func TestHolderCheckConstraint(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()

	n := storetest.NewNumber(storetest.UniqueNumber())
	n.Status = models.StatusAllocated

	assert.Error(t, s.SaveAll(ctx, []*models.TelephoneNumber{n}))
}

func TestHistoryIsAppendOnly(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()

	n := storetest.NewNumber(storetest.UniqueNumber())
	require.NoError(t, s.SaveAll(ctx, []*models.TelephoneNumber{n}))

	entry := &models.StatusHistory{
		ID:                uuid.Must(uuid.NewV7()),
		TelephoneNumberID: n.ID,
		NewStatus:         models.StatusAvailable,
		UserID:            "system",
		Reason:            "seed",
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, s.DB.WithContext(ctx).Create(entry).Error)

	err := s.DB.
		WithContext(ctx).
		Delete(&models.StatusHistory{}, "id = ?", entry.ID).
		Error

	assert.Error(t, err)
}
