package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"inkwell/markdown"
)

type Role struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"size:64;uniqueIndex;not null" json:"name"`
	Default     bool       `gorm:"column:is_default;index;default:false" json:"default"`
	Permissions Permission `gorm:"not null;default:0" json:"permissions"`
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"size:64;uniqueIndex;not null" json:"email"`
	Username     string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:128;not null" json:"-"` // never exposed
	RoleID       *uint     `gorm:"index" json:"role_id"`
	Role         *Role     `gorm:"foreignKey:RoleID" json:"-"`
	Confirmed    bool      `gorm:"default:false" json:"confirmed"`
	Name         string    `gorm:"size:64" json:"name"`
	Location     string    `gorm:"size:64" json:"location"`
	AboutMe      string    `gorm:"type:text" json:"about_me"`
	MemberSince  time.Time `json:"member_since"`
	LastSeen     time.Time `json:"last_seen"`
	AvatarHash   string    `gorm:"size:32" json:"-"`
}

// Follow is the directed follower -> followed edge. The composite primary
// key makes a duplicate edge a constraint violation.
type Follow struct {
	FollowerID uint      `gorm:"primaryKey;autoIncrement:false"`
	FollowedID uint      `gorm:"primaryKey;autoIncrement:false;index"`
	Timestamp  time.Time `gorm:"not null"`
	Follower   *User     `gorm:"foreignKey:FollowerID"`
	Followed   *User     `gorm:"foreignKey:FollowedID"`
}

type Post struct {
	ID        uint      `gorm:"primaryKey"`
	Body      string    `gorm:"type:text;not null"`
	BodyHTML  string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index;not null"`
	AuthorID  uint      `gorm:"not null;index"`
	Author    *User     `gorm:"foreignKey:AuthorID"`
}

type Comment struct {
	ID        uint      `gorm:"primaryKey"`
	Body      string    `gorm:"type:text;not null"`
	BodyHTML  string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index;not null"`
	Disabled  bool      `gorm:"default:false"`
	AuthorID  uint      `gorm:"not null;index"`
	Author    *User     `gorm:"foreignKey:AuthorID"`
	PostID    uint      `gorm:"not null;index"`
}

// BeforeCreate stamps join and activity times the way the database default
// would, so every driver behaves the same.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UTC()
	if u.MemberSince.IsZero() {
		u.MemberSince = now
	}
	if u.LastSeen.IsZero() {
		u.LastSeen = now
	}
	if u.AvatarHash == "" && u.Email != "" {
		u.AvatarHash = AvatarHash(u.Email)
	}
	return nil
}

func (f *Follow) BeforeCreate(tx *gorm.DB) error {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	return nil
}

// BeforeSave keeps BodyHTML derived from Body.
func (p *Post) BeforeSave(tx *gorm.DB) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	p.BodyHTML = markdown.Render(p.Body)
	return nil
}

func (c *Comment) BeforeSave(tx *gorm.DB) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	c.BodyHTML = markdown.Render(c.Body)
	return nil
}

// SetPassword stores a one-way hash of password.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

func (u *User) VerifyPassword(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// SetEmail updates the address and the avatar fingerprint derived from it.
func (u *User) SetEmail(email string) {
	u.Email = email
	u.AvatarHash = AvatarHash(email)
}

// Ping records activity.
func (u *User) Ping() {
	u.LastSeen = time.Now().UTC()
}

// AvatarHash is the Gravatar fingerprint of an email address.
func AvatarHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

func (u *User) Gravatar(size int) string {
	hash := u.AvatarHash
	if hash == "" {
		hash = AvatarHash(u.Email)
	}
	return fmt.Sprintf("https://secure.gravatar.com/avatar/%s?s=%d&d=identicon&r=g", hash, size)
}
