package integration

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/velmor/realmgo/internal/db"
)

// IntegrationSuite is the base suite for integration tests. The PostgreSQL
// container is started once in TestMain; each suite gets an isolated schema
// via acquireSchema().
type IntegrationSuite struct {
	suite.Suite
	db   *db.DB
	repo *db.InstanceRepository
	ctx  context.Context
}

// SetupSuite runs once before all tests in the suite.
func (s *IntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	// A manually provided DB_ADDR takes precedence (for CI/CD)
	dbAddr := os.Getenv("DB_ADDR")
	if dbAddr == "" {
		dbAddr = acquireSchema(s.T())
	}

	// Run migrations first
	if err := db.RunMigrations(s.ctx, dbAddr); err != nil {
		s.T().Fatalf("failed to run migrations: %v", err)
	}

	var err error
	s.db, err = db.New(s.ctx, dbAddr)
	if err != nil {
		s.T().Fatalf("failed to connect to database: %v", err)
	}
	s.repo = db.NewInstanceRepository(s.db.Pool())
}

// SetupTest clears test data before each test.
func (s *IntegrationSuite) SetupTest() {
	if err := s.cleanupTestData(); err != nil {
		s.T().Fatalf("failed to cleanup test data: %v", err)
	}
}

// TearDownSuite runs once after all tests in the suite.
func (s *IntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	// Container is terminated in TestMain, schema is dropped via t.Cleanup
}

// cleanupTestData truncates all instance tables.
func (s *IntegrationSuite) cleanupTestData() error {
	_, err := s.db.Pool().Exec(s.ctx,
		"TRUNCATE TABLE instances, instance_resets, character_instances, group_instances CASCADE")
	if err != nil {
		return fmt.Errorf("truncating test tables: %w", err)
	}
	return nil
}

// TestIntegrationSuite is the entry point for IntegrationSuite.
func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	suite.Run(t, new(IntegrationSuite))
}
