package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inkwell/common"
	"inkwell/models"
	"inkwell/store"
)

func commentViews(items []models.Comment) []models.CommentView {
	views := make([]models.CommentView, len(items))
	for i := range items {
		views[i] = models.NewCommentView(&items[i])
	}
	return views
}

func (a *APIModule) renderComments(c *gin.Context, res store.Result[models.Comment], err error) {
	if err != nil {
		common.RespondJSON(c, common.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, listing(c, "comments", res, commentViews(res.Items)))
}

func (a *APIModule) listComments(c *gin.Context) {
	res, err := a.store.ListComments(c.Request.Context(), pageParam(c, a.pages.Comments))
	a.renderComments(c, res, err)
}

func (a *APIModule) getComment(c *gin.Context) {
	id, err := idParam(c, "comment")
	if err != nil {
		common.RespondJSON(c, err)
		return
	}
	cm, err := a.store.CommentByID(c.Request.Context(), id)
	if err != nil {
		common.RespondJSON(c, lookupErr(err, "comment", id))
		return
	}
	c.JSON(http.StatusOK, models.NewCommentView(cm))
}

func (a *APIModule) postComments(c *gin.Context) {
	p, ok := a.loadPost(c)
	if !ok {
		return
	}
	res, err := a.store.CommentsForPost(c.Request.Context(), p.ID, pageParam(c, a.pages.Comments))
	a.renderComments(c, res, err)
}

func (a *APIModule) createComment(c *gin.Context) {
	p, ok := a.loadPost(c)
	if !ok {
		return
	}
	in, err := bindBody(c)
	if err != nil {
		common.RespondJSON(c, err)
		return
	}
	cm, err := models.CommentFromJSON(in)
	if err != nil {
		common.RespondJSON(c, common.NewValidationError(err.Error()))
		return
	}

	author := currentUser(c)
	cm.AuthorID, cm.PostID = author.ID, p.ID
	if err := a.store.CreateComment(c.Request.Context(), cm); err != nil {
		common.RespondJSON(c, writeErr(err))
		return
	}
	created(c, models.CommentURL(cm.ID), models.NewCommentView(cm))
}
