package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"inkwell/common"
	"inkwell/models"
	"inkwell/store"
)

// postViews attaches comment counts with one grouped query.
func (a *APIModule) postViews(c *gin.Context, posts []models.Post) ([]models.PostView, error) {
	ids := make([]uint, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	counts, err := a.store.CountCommentsByPost(c.Request.Context(), ids)
	if err != nil {
		return nil, err
	}

	views := make([]models.PostView, len(posts))
	for i := range posts {
		views[i] = models.NewPostView(&posts[i], counts[posts[i].ID])
	}
	return views, nil
}

func (a *APIModule) postView(c *gin.Context, p *models.Post) (models.PostView, error) {
	n, err := a.store.CountComments(c.Request.Context(), p.ID)
	if err != nil {
		return models.PostView{}, err
	}
	return models.NewPostView(p, n), nil
}

func (a *APIModule) renderPosts(c *gin.Context, res store.Result[models.Post], err error) {
	if err != nil {
		common.RespondJSON(c, common.NewInternalError(err))
		return
	}
	views, err := a.postViews(c, res.Items)
	if err != nil {
		common.RespondJSON(c, common.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, listing(c, "posts", res, views))
}

func (a *APIModule) listPosts(c *gin.Context) {
	res, err := a.store.ListPosts(c.Request.Context(), pageParam(c, a.pages.Posts))
	a.renderPosts(c, res, err)
}

func (a *APIModule) loadPost(c *gin.Context) (*models.Post, bool) {
	id, err := idParam(c, "post")
	if err != nil {
		common.RespondJSON(c, err)
		return nil, false
	}
	p, err := a.store.PostByID(c.Request.Context(), id)
	if err != nil {
		common.RespondJSON(c, lookupErr(err, "post", id))
		return nil, false
	}
	return p, true
}

func (a *APIModule) getPost(c *gin.Context) {
	p, ok := a.loadPost(c)
	if !ok {
		return
	}
	view, err := a.postView(c, p)
	if err != nil {
		common.RespondJSON(c, common.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, view)
}

func bindBody(c *gin.Context) (models.BodyPayload, error) {
	var in models.BodyPayload
	if err := c.ShouldBindJSON(&in); err != nil {
		return in, common.NewValidationError("request body must be a JSON object")
	}
	return in, nil
}

func (a *APIModule) createPost(c *gin.Context) {
	in, err := bindBody(c)
	if err != nil {
		common.RespondJSON(c, err)
		return
	}
	p, err := models.PostFromJSON(in)
	if err != nil {
		common.RespondJSON(c, common.NewValidationError(err.Error()))
		return
	}

	author := currentUser(c)
	p.AuthorID = author.ID
	if err := a.store.CreatePost(c.Request.Context(), p); err != nil {
		common.RespondJSON(c, writeErr(err))
		return
	}
	p.Author = author
	created(c, models.PostURL(p.ID), models.NewPostView(p, 0))
}

// editPost lets the author, or an administrator, replace the body. A
// payload without a body leaves the post unchanged.
func (a *APIModule) editPost(c *gin.Context) {
	p, ok := a.loadPost(c)
	if !ok {
		return
	}
	u := currentUser(c)
	if u.ID != p.AuthorID && !u.Can(models.PermAdminister) {
		common.RespondJSON(c, common.NewForbiddenError("Insufficient permissions"))
		return
	}

	in, err := bindBody(c)
	if err != nil {
		common.RespondJSON(c, err)
		return
	}
	if in.Body != nil {
		if strings.TrimSpace(*in.Body) == "" {
			common.RespondJSON(c, common.NewValidationError(models.ErrMissingBody{Kind: "post"}.Error()))
			return
		}
		p.Body = *in.Body
		if err := a.store.SavePost(c.Request.Context(), p); err != nil {
			common.RespondJSON(c, writeErr(err))
			return
		}
	}

	view, err := a.postView(c, p)
	if err != nil {
		common.RespondJSON(c, common.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, view)
}
