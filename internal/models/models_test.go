package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

// The schema must migrate on sqlite: the model tags may not carry
// postgres-only DDL (ids are assigned in BeforeCreate, not by the database).
func TestSchemaMigratesOnSQLite(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, db.AutoMigrate(
		&User{}, &Project{}, &Generation{}, &GenerationVersion{},
	))
}

func TestBeforeCreateAssignsIDs(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, db.AutoMigrate(
		&User{}, &Project{}, &Generation{}, &GenerationVersion{},
	))
	now := time.Now().UTC()

	u := &User{Email: "alice@example.com", PasswordHash: "x", Name: "Alice"}
	require.NoError(t, db.Create(u).Error)
	require.NotEqual(t, uuid.Nil, u.ID)

	p := &Project{ProjectKey: "TES", CreatedBy: u.Email, FirstGeneratedAt: now, LastGeneratedAt: now}
	require.NoError(t, db.Create(p).Error)
	require.NotEqual(t, uuid.Nil, p.ID)

	g := &Generation{IssueKey: "TES-1", CreatedBy: u.Email, Mode: ModeManual,
		Status: StatusPending, StartedAt: now, CurrentVersion: 1}
	require.NoError(t, db.Create(g).Error)
	require.NotEqual(t, uuid.Nil, g.ID)

	v := &GenerationVersion{GenerationID: g.ID, VersionNumber: 1, Content: "c", EditedBy: u.Email}
	require.NoError(t, db.Create(v).Error)
	require.NotEqual(t, uuid.Nil, v.ID)

	// a caller-provided id is kept
	fixed := uuid.New()
	g2 := &Generation{ID: fixed, IssueKey: "TES-2", CreatedBy: u.Email, Mode: ModeManual,
		Status: StatusPending, StartedAt: now, CurrentVersion: 1}
	require.NoError(t, db.Create(g2).Error)
	require.Equal(t, fixed, g2.ID)
}
