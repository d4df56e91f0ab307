// Package api serves the versioned JSON REST resources. Errors are always
// answered as JSON.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"inkwell/account"
	"inkwell/common"
	"inkwell/models"
	"inkwell/ratelimit"
	"inkwell/store"
)

// PageSizes are the fixed per-resource page sizes.
type PageSizes struct {
	Posts    int
	Comments int
}

type APIModule struct {
	svc     *account.Service
	store   *store.Store
	pages   PageSizes
	limiter *ratelimit.Limiter
}

func NewAPIModule(svc *account.Service, pages PageSizes, limiter *ratelimit.Limiter) *APIModule {
	return &APIModule{svc: svc, store: svc.Store(), pages: pages, limiter: limiter}
}

func (a *APIModule) RegisterRoutes(router *gin.Engine) {
	// the token limiter runs ahead of authenticate so failed guesses count too
	tokenLimit := a.limiter.Middleware("token")
	router.GET(models.APIPrefix+"/token/", tokenLimit, a.authenticate, a.issueToken)
	router.POST(models.APIPrefix+"/token/", tokenLimit, a.authenticate, a.issueToken)

	v1 := router.Group(models.APIPrefix, a.authenticate)

	v1.GET("/posts/", a.listPosts)
	v1.POST("/posts/", RequirePermission(models.PermWriteArticles), a.createPost)
	v1.GET("/posts/:id", a.getPost)
	v1.PUT("/posts/:id", RequirePermission(models.PermWriteArticles), a.editPost)
	v1.GET("/posts/:id/comments/", a.postComments)
	v1.POST("/posts/:id/comments", RequirePermission(models.PermComment), a.createComment)

	v1.GET("/users/:id", a.getUser)
	v1.GET("/users/:id/posts/", a.userPosts)
	v1.GET("/users/:id/timeline/", a.userTimeline)

	v1.GET("/comments/", a.listComments)
	v1.GET("/comments/:id", a.getComment)
}

// RequirePermission answers 401 to anonymous callers and 403 to callers
// whose role lacks perm.
func RequirePermission(perm models.Permission) gin.HandlerFunc {
	return account.PermissionGate(perm, common.RespondJSON)
}

func idParam(c *gin.Context, resource string) (uint, error) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, common.NewNotFoundError(resource, raw)
	}
	return uint(id), nil
}

// lookupErr maps store errors for a single-resource read.
func lookupErr(err error, resource string, id uint) error {
	if errors.Is(err, store.ErrNotFound) {
		return common.NewNotFoundError(resource, id)
	}
	return common.NewInternalError(err)
}

// writeErr maps store errors for inserts and updates.
func writeErr(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return common.NewValidationError("conflicts with an existing record")
	}
	return common.NewInternalError(err)
}

func created(c *gin.Context, location string, body any) {
	c.Header("Location", location)
	c.JSON(http.StatusCreated, body)
}

func isAPIPath(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, models.APIPrefix+"/")
}

// NotFound keeps unmatched API paths on JSON and negotiates everything else.
func NotFound(c *gin.Context) {
	if isAPIPath(c) {
		common.RespondJSON(c, &common.AppError{Kind: common.KindNotFound})
		return
	}
	common.NotFound(c)
}

// NoMethod is NotFound's counterpart for 405.
func NoMethod(c *gin.Context) {
	if isAPIPath(c) {
		common.RespondJSON(c, &common.AppError{Kind: common.KindMethodNotAllowed})
		return
	}
	common.NoMethod(c)
}
