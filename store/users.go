package store

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"inkwell/models"
)

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = NormalizeEmail(u.Email)
	return translate(s.conn(ctx).Omit(clause.Associations).Create(u).Error)
}

// SaveUser writes every column of u. Uniqueness is checked by the database.
func (s *Store) SaveUser(ctx context.Context, u *models.User) error {
	u.Email = NormalizeEmail(u.Email)
	return translate(s.conn(ctx).Omit(clause.Associations).Save(u).Error)
}

// TouchUser updates only the last-seen timestamp.
func (s *Store) TouchUser(ctx context.Context, u *models.User) error {
	u.Ping()
	return translate(s.conn(ctx).Model(u).UpdateColumn("last_seen", u.LastSeen).Error)
}

func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Preload("Role").First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.conn(ctx).Preload("Role").Where("email = ?", NormalizeEmail(email)).First(&u).Error
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Preload("Role").Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// EmailTaken reports whether email belongs to an account other than exceptID.
func (s *Store) EmailTaken(ctx context.Context, email string, exceptID uint) (bool, error) {
	var n int64
	err := s.conn(ctx).Model(&models.User{}).
		Where("email = ? AND id <> ?", NormalizeEmail(email), exceptID).
		Count(&n).Error
	return n > 0, translate(err)
}

func (s *Store) UsernameTaken(ctx context.Context, username string, exceptID uint) (bool, error) {
	var n int64
	err := s.conn(ctx).Model(&models.User{}).
		Where("username = ? AND id <> ?", username, exceptID).
		Count(&n).Error
	return n > 0, translate(err)
}

func (s *Store) DefaultRole(ctx context.Context) (*models.Role, error) {
	var r models.Role
	if err := s.conn(ctx).Where("is_default = ?", true).First(&r).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *Store) RoleByName(ctx context.Context, name string) (*models.Role, error) {
	var r models.Role
	if err := s.conn(ctx).Where("name = ?", name).First(&r).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}
