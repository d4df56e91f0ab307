package api

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"inkwell/store"
)

// pageParam reads ?page=, falling back to 1 for anything that is not a
// positive integer.
func pageParam(c *gin.Context, size int) store.Page {
	n, err := strconv.Atoi(c.Query("page"))
	if err != nil || n < 1 {
		n = 1
	}
	return store.Page{Number: n, Size: size}
}

// listing renders one page as {key: items, prev, next, count}. prev and next
// are null at the ends of the collection.
func listing[T, V any](c *gin.Context, key string, res store.Result[T], items []V) gin.H {
	path := c.Request.URL.Path

	var prev, next *string
	if res.HasPrev {
		s := fmt.Sprintf("%s?page=%d", path, res.Page-1)
		prev = &s
	}
	if res.HasNext {
		s := fmt.Sprintf("%s?page=%d", path, res.Page+1)
		next = &s
	}

	return gin.H{
		key:     items,
		"prev":  prev,
		"next":  next,
		"count": res.Total,
	}
}
