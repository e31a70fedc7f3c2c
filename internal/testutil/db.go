package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/internal/migration"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OrgID is the organization every helper scopes data to.
const OrgID snowflake.ID = 1001

var dbSeq atomic.Int64

// OpenDB returns a private in-memory SQLite database with the full schema.
// A single connection keeps the shared-cache database alive and serializes
// writers the way row locks would.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Node returns a snowflake generator for tests.
func Node(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// Context returns a context scoped to OrgID.
func Context() context.Context {
	return orgcontext.WithOrgID(context.Background(), int64(OrgID))
}

// InsertParty writes a party row directly with a zero balance.
func InsertParty(t *testing.T, db *gorm.DB, node *snowflake.Node, role partydomain.Role) *partydomain.Party {
	t.Helper()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	party := &partydomain.Party{
		ID:             node.Generate(),
		OrgID:          OrgID,
		DisplayName:    fmt.Sprintf("%s %d", role, dbSeq.Add(1)),
		Role:           role,
		RunningBalance: decimal.Zero,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.Create(party).Error; err != nil {
		t.Fatalf("insert party: %v", err)
	}
	return party
}

// Balance reads the stored running balance of a party.
func Balance(t *testing.T, db *gorm.DB, partyID snowflake.ID) decimal.Decimal {
	t.Helper()
	var party partydomain.Party
	if err := db.Where("id = ?", partyID).First(&party).Error; err != nil {
		t.Fatalf("load party: %v", err)
	}
	return party.RunningBalance
}
