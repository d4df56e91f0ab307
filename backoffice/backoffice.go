package backoffice

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"inkwell/account"
	"inkwell/common"
	"inkwell/metrics"
	"inkwell/models"
	"inkwell/store"
)

type BackofficeModule struct {
	svc      *account.Service
	store    *store.Store
	pageSize int
}

func NewBackofficeModule(svc *account.Service, commentsPerPage int) *BackofficeModule {
	return &BackofficeModule{svc: svc, store: svc.Store(), pageSize: commentsPerPage}
}

func (b *BackofficeModule) RegisterRoutes(router *gin.Engine) {
	backofficeGroup := router.Group("/backoffice", account.RequireConfirmed)
	{
		admin := backofficeGroup.Group("", account.RequirePermission(models.PermAdminister))
		admin.GET("/edit-profile/:id", b.showProfile)
		admin.PUT("/edit-profile/:id", b.editProfile)

		moderate := backofficeGroup.Group("/moderate", account.RequirePermission(models.PermModerateComments))
		moderate.GET("", b.moderate)
		moderate.POST("/enable/:id", b.setDisabled(false))
		moderate.POST("/disable/:id", b.setDisabled(true))
	}
}

func idParam(c *gin.Context, resource string) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		common.RespondNegotiated(c, common.NewNotFoundError(resource, raw))
		return 0, false
	}
	return uint(id), true
}

func (b *BackofficeModule) loadUser(c *gin.Context) (*models.User, bool) {
	id, ok := idParam(c, "user")
	if !ok {
		return nil, false
	}
	u, err := b.store.UserByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.RespondNegotiated(c, common.NewNotFoundError("user", id))
		} else {
			common.RespondNegotiated(c, common.NewInternalError(err))
		}
		return nil, false
	}
	return u, true
}

func adminView(u *models.User) account.AdminProfile {
	role := ""
	if u.Role != nil {
		role = u.Role.Name
	}
	return account.AdminProfile{
		Email:     u.Email,
		Username:  u.Username,
		Confirmed: u.Confirmed,
		Role:      role,
		Profile:   account.Profile{Name: u.Name, Location: u.Location, AboutMe: u.AboutMe},
	}
}

func (b *BackofficeModule) showProfile(c *gin.Context) {
	u, ok := b.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, adminView(u))
}

// editProfile lets an administrator rewrite any account, including its role
// and confirmation flag.
func (b *BackofficeModule) editProfile(c *gin.Context) {
	u, ok := b.loadUser(c)
	if !ok {
		return
	}
	var req account.AdminProfile
	if err := c.ShouldBind(&req); err != nil {
		common.RespondNegotiated(c, common.NewValidationError("Invalid profile."))
		return
	}

	err := b.svc.AdminUpdateProfile(c.Request.Context(), u, req)
	metrics.AccountEvents.WithLabelValues("admin_edit", metrics.Result(err == nil)).Inc()
	if err != nil {
		common.RespondNegotiated(c, err)
		return
	}
	common.Logger.InfoContext(c.Request.Context(), "profile updated by administrator",
		slog.Uint64("target_user_id", uint64(u.ID)),
		slog.String("role", req.Role),
	)
	c.JSON(http.StatusOK, gin.H{
		"message": "The profile has been updated.",
		"profile": adminView(u),
	})
}

// moderate lists every comment, newest first, disabled ones included.
func (b *BackofficeModule) moderate(c *gin.Context) {
	n, err := strconv.Atoi(c.Query("page"))
	if err != nil || n < 1 {
		n = 1
	}
	res, err := b.store.ListComments(c.Request.Context(), store.Page{Number: n, Size: b.pageSize})
	if err != nil {
		common.RespondNegotiated(c, common.NewInternalError(err))
		return
	}

	comments := make([]gin.H, len(res.Items))
	for i := range res.Items {
		cm := &res.Items[i]
		comments[i] = gin.H{
			"id":      cm.ID,
			"comment": models.NewCommentView(cm),
			// moderators still see what they hid
			"body": cm.Body,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"comments": comments,
		"pagination": gin.H{
			"page":     res.Page,
			"total":    res.Total,
			"has_prev": res.HasPrev,
			"has_next": res.HasNext,
		},
	})
}

func (b *BackofficeModule) setDisabled(disabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "comment")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		cm, err := b.store.CommentByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				common.RespondNegotiated(c, common.NewNotFoundError("comment", id))
			} else {
				common.RespondNegotiated(c, common.NewInternalError(err))
			}
			return
		}

		cm.Disabled = disabled
		if err := b.store.SaveComment(ctx, cm); err != nil {
			common.RespondNegotiated(c, common.NewInternalError(err))
			return
		}
		common.Logger.InfoContext(ctx, "comment moderated",
			slog.Uint64("comment_id", uint64(cm.ID)),
			slog.Bool("disabled", disabled),
		)
		c.JSON(http.StatusOK, models.NewCommentView(cm))
	}
}
