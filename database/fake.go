package database

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"inkwell/common"
	"inkwell/models"
)

// FakePassword is the password of every generated account.
const FakePassword = "password"

// SeedFake fills a development database with confirmed users, posts spread
// over the last year and comments on them. Generated names that collide
// with existing rows are skipped.
func SeedFake(db *gorm.DB, users, posts int, seed int64) error {
	faker := gofakeit.New(seed)
	r := rand.New(rand.NewSource(seed))

	var role models.Role
	if err := db.Where("is_default = ?", true).First(&role).Error; err != nil {
		return fmt.Errorf("default role: %w", err)
	}

	// one hash for every fake account keeps seeding fast
	proto := &models.User{}
	if err := proto.SetPassword(FakePassword); err != nil {
		return err
	}

	created := 0
	for i := 0; i < users; i++ {
		u := &models.User{
			Username:     faker.Username(),
			PasswordHash: proto.PasswordHash,
			RoleID:       &role.ID,
			Confirmed:    true,
			Name:         faker.Name(),
			Location:     faker.City(),
			AboutMe:      faker.Sentence(12),
			MemberSince:  faker.DateRange(time.Now().AddDate(-1, 0, 0), time.Now()),
		}
		u.SetEmail(strings.ToLower(faker.Email()))

		err := db.Omit(clause.Associations).Create(u).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		if err != nil {
			return err
		}
		created++
	}

	var ids []uint
	if err := db.Model(&models.User{}).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	for i := 0; i < posts; i++ {
		p := &models.Post{
			Body:      faker.Paragraph(1, 3, 12, "\n\n"),
			Timestamp: faker.DateRange(time.Now().AddDate(-1, 0, 0), time.Now()),
			AuthorID:  ids[r.Intn(len(ids))],
		}
		if err := db.Omit(clause.Associations).Create(p).Error; err != nil {
			return err
		}

		for j := r.Intn(4); j > 0; j-- {
			c := &models.Comment{
				Body:      faker.Sentence(10),
				Timestamp: p.Timestamp.Add(time.Duration(r.Intn(72)) * time.Hour),
				AuthorID:  ids[r.Intn(len(ids))],
				PostID:    p.ID,
			}
			if err := db.Omit(clause.Associations).Create(c).Error; err != nil {
				return err
			}
		}
	}

	common.Logger.Info("fake data seeded", slog.Int("users", created), slog.Int("posts", posts))
	return nil
}
