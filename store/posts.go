package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"inkwell/models"
)

const newestFirst = "timestamp DESC, id DESC"

func (s *Store) CreatePost(ctx context.Context, p *models.Post) error {
	return translate(s.conn(ctx).Omit(clause.Associations).Create(p).Error)
}

// SavePost rewrites the body; the model hook re-renders BodyHTML.
func (s *Store) SavePost(ctx context.Context, p *models.Post) error {
	return translate(s.conn(ctx).Omit(clause.Associations).Save(p).Error)
}

func (s *Store) PostByID(ctx context.Context, id uint) (*models.Post, error) {
	var p models.Post
	if err := s.conn(ctx).Preload("Author").First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) posts(ctx context.Context) *gorm.DB {
	return s.conn(ctx).Model(&models.Post{})
}

func (s *Store) ListPosts(ctx context.Context, page Page) (Result[models.Post], error) {
	res, err := paginate[models.Post](s.posts(ctx), page, newestFirst, "Author")
	return res, translate(err)
}

func (s *Store) PostsByAuthor(ctx context.Context, authorID uint, page Page) (Result[models.Post], error) {
	q := s.posts(ctx).Where("author_id = ?", authorID)
	res, err := paginate[models.Post](q, page, newestFirst, "Author")
	return res, translate(err)
}

// TimelineFor lists posts written by the users userID follows.
func (s *Store) TimelineFor(ctx context.Context, userID uint, page Page) (Result[models.Post], error) {
	followed := s.conn(ctx).Model(&models.Follow{}).
		Select("followed_id").
		Where("follower_id = ?", userID)
	q := s.posts(ctx).Where("author_id IN (?)", followed)
	res, err := paginate[models.Post](q, page, newestFirst, "Author")
	return res, translate(err)
}

func (s *Store) CountPostsByAuthor(ctx context.Context, authorID uint) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&models.Post{}).Where("author_id = ?", authorID).Count(&n).Error
	return n, translate(err)
}

// CountCommentsByPost returns comment counts for many posts in one query.
func (s *Store) CountCommentsByPost(ctx context.Context, postIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(postIDs))
	if len(postIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		PostID uint
		N      int64
	}
	err := s.conn(ctx).Model(&models.Comment{}).
		Select("post_id, COUNT(*) AS n").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	for _, r := range rows {
		counts[r.PostID] = r.N
	}
	return counts, nil
}
