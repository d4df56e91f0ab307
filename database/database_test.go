package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"inkwell/common"
	"inkwell/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), common.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestRunMigrations_Twice(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, RunMigrations(db))
	require.NoError(t, RunMigrations(db))

	var roles int64
	require.NoError(t, db.Model(&models.Role{}).Count(&roles).Error)
	assert.Equal(t, int64(3), roles)

	var defaults int64
	require.NoError(t, db.Model(&models.Role{}).Where("is_default = ?", true).Count(&defaults).Error)
	assert.Equal(t, int64(1), defaults)
}

func TestSeedFake(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, RunMigrations(db))

	require.NoError(t, SeedFake(db, 5, 12, 42))

	var users, posts int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	assert.Positive(t, users)
	assert.LessOrEqual(t, users, int64(5))
	assert.Equal(t, int64(12), posts)

	var u models.User
	require.NoError(t, db.First(&u).Error)
	assert.True(t, u.Confirmed)
	assert.True(t, u.VerifyPassword(FakePassword))
	assert.NotEmpty(t, u.AvatarHash)

	var p models.Post
	require.NoError(t, db.First(&p).Error)
	assert.NotEmpty(t, p.BodyHTML)
}

func TestSeedFake_NoUsers(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, RunMigrations(db))

	require.NoError(t, SeedFake(db, 0, 10, 1))

	var posts int64
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	assert.Zero(t, posts)
}
