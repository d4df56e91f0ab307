// Package store is the persistence layer. Every relationship the handlers
// need is loaded by an explicit query here.
package store

import (
	"context"
	"errors"
	"math"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("unique constraint violated")
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the handle for migrations and seeding.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// translate maps driver errors to the store's sentinel errors. The
// connection must be opened with TranslateError for conflicts to surface.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	default:
		return err
	}
}

// Page selects a 1-based page of a listing.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalized() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = 20
	}
	// keeps Number*Size inside int
	if limit := math.MaxInt / p.Size; p.Number > limit {
		p.Number = limit
	}
	return p
}

// lastPage is the highest page holding items; an empty listing still has
// page 1.
func lastPage(total int64, size int) int64 {
	n := (total + int64(size) - 1) / int64(size)
	if n < 1 {
		n = 1
	}
	return n
}

type Result[T any] struct {
	Items   []T
	Total   int64
	Page    int
	HasPrev bool
	HasNext bool
}

// paginate counts q and then loads one ordered page of it, preloading the
// named associations on the page only.
func paginate[T any](q *gorm.DB, page Page, order string, preload ...string) (Result[T], error) {
	page = page.normalized()
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Result[T]{}, err
	}

	last := lastPage(total, page.Size)
	if int64(page.Number) > last {
		return Result[T]{
			Items:   []T{},
			Total:   total,
			Page:    page.Number,
			HasPrev: page.Number > 1 && int64(page.Number-1) <= last,
		}, nil
	}

	items := make([]T, 0, page.Size)
	for _, assoc := range preload {
		q = q.Preload(assoc)
	}
	err := q.Order(order).
		Offset((page.Number - 1) * page.Size).
		Limit(page.Size).
		Find(&items).Error
	if err != nil {
		return Result[T]{}, err
	}

	return Result[T]{
		Items:   items,
		Total:   total,
		Page:    page.Number,
		HasPrev: page.Number > 1,
		HasNext: int64(page.Number) < last,
	}, nil
}
