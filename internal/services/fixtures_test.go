package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ensemble/backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "ensemble_test.db") + "?_busy_timeout=5000"
	db, err := models.Open(sqlite.Open(dsn), logger.Silent)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := models.AutoMigrateDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fixture struct {
	db     *gorm.DB
	team   *models.Team
	app    *models.Application
	admin  *Caller
	member *Caller
	other  *Caller // member of another team
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{db: db}

	f.team = createTeam(t, db, "Payments Ops")
	other := createTeam(t, db, "Storage Ops")
	f.app = createApplication(t, db, f.team.ID, "Payments Gateway")

	f.admin = createCaller(t, db, "alice", f.team.ID, models.TeamRoleAdmin)
	f.member = createCaller(t, db, "bob", f.team.ID, models.TeamRoleMember)
	f.other = createCaller(t, db, "carol", other.ID, models.TeamRoleAdmin)
	return f
}

func createTeam(t *testing.T, db *gorm.DB, name string) *models.Team {
	t.Helper()
	team := &models.Team{Name: name, IsActive: true, Status: models.TeamStatusApproved}
	if err := db.Create(team).Error; err != nil {
		t.Fatalf("create team: %v", err)
	}
	return team
}

func createApplication(t *testing.T, db *gorm.DB, teamID uint, name string) *models.Application {
	t.Helper()
	app := &models.Application{TeamID: teamID, Name: name, IsActive: true}
	if err := db.Create(app).Error; err != nil {
		t.Fatalf("create application: %v", err)
	}
	return app
}

func createCaller(t *testing.T, db *gorm.DB, username string, teamID uint, role string) *Caller {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", Role: models.UserRoleUser, IsActive: true}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if teamID != 0 {
		perm := &models.TeamPermission{TeamID: teamID, UserID: user.ID, Role: role}
		if err := db.Create(perm).Error; err != nil {
			t.Fatalf("create permission: %v", err)
		}
	}
	caller, err := NewPermissionService(db).LoadCaller(user.ID)
	if err != nil {
		t.Fatalf("load caller: %v", err)
	}
	return caller
}

// testClock hands out strictly increasing timestamps.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func mustNoErr(t *testing.T, err error, what string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", what, err)
	}
}
