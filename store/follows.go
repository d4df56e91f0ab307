package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"inkwell/models"
)

// FollowEdge reports whether follower follows followed.
func (s *Store) FollowEdge(ctx context.Context, followerID, followedID uint) (bool, error) {
	var f models.Follow
	err := s.conn(ctx).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Take(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, translate(err)
}

// AddFollow inserts the edge; an existing edge is left untouched.
func (s *Store) AddFollow(ctx context.Context, followerID, followedID uint) error {
	edge := &models.Follow{FollowerID: followerID, FollowedID: followedID}
	err := s.conn(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(edge).Error
	return translate(err)
}

// RemoveFollow deletes the edge if present.
func (s *Store) RemoveFollow(ctx context.Context, followerID, followedID uint) error {
	err := s.conn(ctx).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Delete(&models.Follow{}).Error
	return translate(err)
}

// Followers lists the users following userID, most recent first.
func (s *Store) Followers(ctx context.Context, userID uint, page Page) (Result[models.Follow], error) {
	q := s.conn(ctx).Model(&models.Follow{}).Where("followed_id = ?", userID)
	res, err := paginate[models.Follow](q, page, "timestamp DESC", "Follower")
	return res, translate(err)
}

// Followed lists the users userID follows, most recent first.
func (s *Store) Followed(ctx context.Context, userID uint, page Page) (Result[models.Follow], error) {
	q := s.conn(ctx).Model(&models.Follow{}).Where("follower_id = ?", userID)
	res, err := paginate[models.Follow](q, page, "timestamp DESC", "Followed")
	return res, translate(err)
}
