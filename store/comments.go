package store

import (
	"context"

	"gorm.io/gorm/clause"

	"inkwell/models"
)

const oldestFirst = "timestamp ASC, id ASC"

func (s *Store) CreateComment(ctx context.Context, c *models.Comment) error {
	return translate(s.conn(ctx).Omit(clause.Associations).Create(c).Error)
}

func (s *Store) SaveComment(ctx context.Context, c *models.Comment) error {
	return translate(s.conn(ctx).Omit(clause.Associations).Save(c).Error)
}

func (s *Store) CommentByID(ctx context.Context, id uint) (*models.Comment, error) {
	var c models.Comment
	if err := s.conn(ctx).Preload("Author").First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) CountComments(ctx context.Context, postID uint) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&models.Comment{}).Where("post_id = ?", postID).Count(&n).Error
	return n, translate(err)
}

// ListComments is the moderation view: every comment, newest first.
func (s *Store) ListComments(ctx context.Context, page Page) (Result[models.Comment], error) {
	q := s.conn(ctx).Model(&models.Comment{})
	res, err := paginate[models.Comment](q, page, newestFirst, "Author")
	return res, translate(err)
}

// CommentsForPost reads a post's thread in conversation order.
func (s *Store) CommentsForPost(ctx context.Context, postID uint, page Page) (Result[models.Comment], error) {
	q := s.conn(ctx).Model(&models.Comment{}).Where("post_id = ?", postID)
	res, err := paginate[models.Comment](q, page, oldestFirst, "Author")
	return res, translate(err)
}
