package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inkwell/common"
	"inkwell/models"
)

func (a *APIModule) loadUser(c *gin.Context) (*models.User, bool) {
	id, err := idParam(c, "user")
	if err != nil {
		common.RespondJSON(c, err)
		return nil, false
	}
	u, err := a.store.UserByID(c.Request.Context(), id)
	if err != nil {
		common.RespondJSON(c, lookupErr(err, "user", id))
		return nil, false
	}
	return u, true
}

func (a *APIModule) getUser(c *gin.Context) {
	u, ok := a.loadUser(c)
	if !ok {
		return
	}
	n, err := a.store.CountPostsByAuthor(c.Request.Context(), u.ID)
	if err != nil {
		common.RespondJSON(c, common.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, models.NewUserView(u, n))
}

func (a *APIModule) userPosts(c *gin.Context) {
	u, ok := a.loadUser(c)
	if !ok {
		return
	}
	res, err := a.store.PostsByAuthor(c.Request.Context(), u.ID, pageParam(c, a.pages.Posts))
	a.renderPosts(c, res, err)
}

// userTimeline lists posts by the users u follows.
func (a *APIModule) userTimeline(c *gin.Context) {
	u, ok := a.loadUser(c)
	if !ok {
		return
	}
	res, err := a.store.TimelineFor(c.Request.Context(), u.ID, pageParam(c, a.pages.Posts))
	a.renderPosts(c, res, err)
}
