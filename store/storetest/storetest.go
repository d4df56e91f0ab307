// Package storetest opens migrated in-memory stores for package tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"inkwell/common"
	"inkwell/database"
	"inkwell/models"
	"inkwell/store"
)

// Open returns a store over a fresh in-memory sqlite database with the
// schema and roles in place.
func Open(t testing.TB) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), common.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.RunMigrations(db))
	return store.New(db)
}

// UserOpts tweaks a generated user.
type UserOpts struct {
	Role        string
	Unconfirmed bool
	Password    string
}

// CreateUser inserts name@example.com with the given role (User by default).
func CreateUser(t testing.TB, s *store.Store, name string, opts ...UserOpts) *models.User {
	t.Helper()
	var o UserOpts
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Role == "" {
		o.Role = models.RoleUser
	}
	if o.Password == "" {
		o.Password = "cat"
	}

	ctx := context.Background()
	role, err := s.RoleByName(ctx, o.Role)
	require.NoError(t, err)

	u := &models.User{Username: name, RoleID: &role.ID, Role: role, Confirmed: !o.Unconfirmed}
	u.SetEmail(name + "@example.com")
	require.NoError(t, u.SetPassword(o.Password))
	require.NoError(t, s.CreateUser(ctx, u))
	return u
}

func CreatePost(t testing.TB, s *store.Store, author *models.User, body string) *models.Post {
	t.Helper()
	p := &models.Post{Body: body, AuthorID: author.ID}
	require.NoError(t, s.CreatePost(context.Background(), p))
	return p
}

func CreateComment(t testing.TB, s *store.Store, author *models.User, post *models.Post, body string) *models.Comment {
	t.Helper()
	c := &models.Comment{Body: body, AuthorID: author.ID, PostID: post.ID}
	require.NoError(t, s.CreateComment(context.Background(), c))
	return c
}
