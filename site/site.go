package site

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"inkwell/account"
	"inkwell/common"
	"inkwell/models"
	"inkwell/store"
)

// Pages holds the page sizes of the session-facing listings.
type Pages struct {
	Posts     int
	Comments  int
	Followers int
}

type SiteModule struct {
	svc   *account.Service
	store *store.Store
	pages Pages
}

func NewSiteModule(svc *account.Service, pages Pages) *SiteModule {
	return &SiteModule{svc: svc, store: svc.Store(), pages: pages}
}

func (s *SiteModule) RegisterRoutes(router *gin.Engine) {
	g := router.Group("", account.RequireConfirmed)

	g.GET("/", s.index)
	g.GET("/user/:username", s.user)
	g.GET("/post/:id", s.post)
	g.POST("/post/:id/comments", account.RequirePermission(models.PermComment), s.comment)
	g.PUT("/edit/:id", account.RequireLogin, s.editPost)
	g.PUT("/edit-profile", account.RequireLogin, s.editProfile)

	g.POST("/follow/:username", account.RequirePermission(models.PermFollow), s.follow)
	g.POST("/unfollow/:username", account.RequirePermission(models.PermFollow), s.unfollow)
	g.GET("/followers/:username", s.followers)
	g.GET("/followed-by/:username", s.followedBy)
}

func page(c *gin.Context, size int) store.Page {
	n, err := strconv.Atoi(c.Query("page"))
	if err != nil || n < 1 {
		n = 1
	}
	return store.Page{Number: n, Size: size}
}

func pagination[T any](res store.Result[T]) gin.H {
	return gin.H{
		"page":     res.Page,
		"total":    res.Total,
		"has_prev": res.HasPrev,
		"has_next": res.HasNext,
	}
}

func (s *SiteModule) postViews(c *gin.Context, posts []models.Post) ([]models.PostView, error) {
	ids := make([]uint, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	counts, err := s.store.CountCommentsByPost(c.Request.Context(), ids)
	if err != nil {
		return nil, err
	}
	views := make([]models.PostView, len(posts))
	for i := range posts {
		views[i] = models.NewPostView(&posts[i], counts[posts[i].ID])
	}
	return views, nil
}

func (s *SiteModule) renderPosts(c *gin.Context, extra gin.H, res store.Result[models.Post], err error) {
	if err != nil {
		common.RespondNegotiated(c, common.NewInternalError(err))
		return
	}
	views, err := s.postViews(c, res.Items)
	if err != nil {
		common.RespondNegotiated(c, common.NewInternalError(err))
		return
	}
	body := gin.H{"posts": views, "pagination": pagination(res)}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// index lists every post, or only posts by followed users when the caller
// is logged in and asks for ?feed=followed.
func (s *SiteModule) index(c *gin.Context) {
	ctx := c.Request.Context()
	pg := page(c, s.pages.Posts)
	u := account.CurrentPrincipal(c).User

	if u != nil && c.Query("feed") == "followed" {
		res, err := s.store.TimelineFor(ctx, u.ID, pg)
		s.renderPosts(c, gin.H{"feed": "followed"}, res, err)
		return
	}
	res, err := s.store.ListPosts(ctx, pg)
	s.renderPosts(c, gin.H{"feed": "all"}, res, err)
}

func (s *SiteModule) loadUser(c *gin.Context) (*models.User, bool) {
	name := c.Param("username")
	u, err := s.store.UserByUsername(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.RespondNegotiated(c, common.NewNotFoundError("user", name))
		} else {
			common.RespondNegotiated(c, common.NewInternalError(err))
		}
		return nil, false
	}
	return u, true
}

// user shows a profile with the relationship to the caller.
func (s *SiteModule) user(c *gin.Context) {
	ctx := c.Request.Context()
	u, ok := s.loadUser(c)
	if !ok {
		return
	}
	res, err := s.store.PostsByAuthor(ctx, u.ID, page(c, s.pages.Posts))
	if err != nil {
		common.RespondNegotiated(c, common.NewInternalError(err))
		return
	}

	profile := gin.H{
		"user":     models.NewUserView(u, res.Total),
		"name":     u.Name,
		"location": u.Location,
		"about_me": u.AboutMe,
	}
	if me := account.CurrentPrincipal(c).User; me != nil && me.ID != u.ID {
		following, err := s.svc.IsFollowing(ctx, me, u)
		if err != nil {
			common.RespondNegotiated(c, common.NewInternalError(err))
			return
		}
		followsYou, err := s.svc.IsFollowedBy(ctx, me, u)
		if err != nil {
			common.RespondNegotiated(c, common.NewInternalError(err))
			return
		}
		profile["following"] = following
		profile["follows_you"] = followsYou
	}
	s.renderPosts(c, profile, res, nil)
}

func (s *SiteModule) loadPost(c *gin.Context) (*models.Post, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		common.RespondNegotiated(c, common.NewNotFoundError("post", raw))
		return nil, false
	}
	p, err := s.store.PostByID(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.RespondNegotiated(c, common.NewNotFoundError("post", id))
		} else {
			common.RespondNegotiated(c, common.NewInternalError(err))
		}
		return nil, false
	}
	return p, true
}

// post shows one post with a page of its comments, oldest first.
func (s *SiteModule) post(c *gin.Context) {
	p, ok := s.loadPost(c)
	if !ok {
		return
	}
	res, err := s.store.CommentsForPost(c.Request.Context(), p.ID, page(c, s.pages.Comments))
	if err != nil {
		common.RespondNegotiated(c, common.NewInternalError(err))
		return
	}
	comments := make([]models.CommentView, len(res.Items))
	for i := range res.Items {
		comments[i] = models.NewCommentView(&res.Items[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"post":       models.NewPostView(p, res.Total),
		"comments":   comments,
		"pagination": pagination(res),
	})
}

type bodyRequest struct {
	Body string `form:"body" json:"body"`
}

// bindBody reads a form or JSON body. An unparsable body is a bad request,
// not a missing one.
func bindBody(c *gin.Context) (bodyRequest, error) {
	var req bodyRequest
	if err := c.ShouldBind(&req); err != nil {
		return req, common.NewValidationError("request body must be a JSON object or a form")
	}
	return req, nil
}

func (s *SiteModule) comment(c *gin.Context) {
	p, ok := s.loadPost(c)
	if !ok {
		return
	}
	req, err := bindBody(c)
	if err != nil {
		common.RespondNegotiated(c, err)
		return
	}
	cm, err := models.CommentFromJSON(models.BodyPayload{Body: &req.Body})
	if err != nil {
		common.RespondNegotiated(c, common.NewValidationError(err.Error()))
		return
	}
	cm.PostID = p.ID
	cm.AuthorID = account.CurrentPrincipal(c).User.ID
	if err := s.store.CreateComment(c.Request.Context(), cm); err != nil {
		common.RespondNegotiated(c, common.NewInternalError(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Your comment has been published.",
		"comment": models.NewCommentView(cm),
	})
}

// editPost replaces a post body. Only the author or an administrator may.
func (s *SiteModule) editPost(c *gin.Context) {
	p, ok := s.loadPost(c)
	if !ok {
		return
	}
	u := account.CurrentPrincipal(c).User
	if u.ID != p.AuthorID && !s.svc.IsAdministrator(u) {
		common.RespondNegotiated(c, common.NewForbiddenError("Insufficient permissions"))
		return
	}

	req, err := bindBody(c)
	if err != nil {
		common.RespondNegotiated(c, err)
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		common.RespondNegotiated(c, common.NewValidationError(models.ErrMissingBody{Kind: "post"}.Error()))
		return
	}
	p.Body = req.Body
	if err := s.store.SavePost(c.Request.Context(), p); err != nil {
		common.RespondNegotiated(c, common.NewInternalError(err))
		return
	}
	n, err := s.store.CountComments(c.Request.Context(), p.ID)
	if err != nil {
		common.RespondNegotiated(c, common.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "The post has been updated.",
		"post":    models.NewPostView(p, n),
	})
}

func (s *SiteModule) editProfile(c *gin.Context) {
	var req account.Profile
	if err := c.ShouldBind(&req); err != nil {
		common.RespondNegotiated(c, common.NewValidationError("Invalid profile."))
		return
	}
	u := account.CurrentPrincipal(c).User
	if err := s.svc.UpdateProfile(c.Request.Context(), u, req); err != nil {
		common.RespondNegotiated(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your profile has been updated."})
}

func (s *SiteModule) follow(c *gin.Context) {
	target, ok := s.loadUser(c)
	if !ok {
		return
	}
	if err := s.svc.Follow(c.Request.Context(), account.CurrentPrincipal(c).User, target); err != nil {
		common.RespondNegotiated(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "You are now following " + target.Username + "."})
}

func (s *SiteModule) unfollow(c *gin.Context) {
	target, ok := s.loadUser(c)
	if !ok {
		return
	}
	if err := s.svc.Unfollow(c.Request.Context(), account.CurrentPrincipal(c).User, target); err != nil {
		common.RespondNegotiated(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "You are not following " + target.Username + " anymore."})
}

type followEntry struct {
	User      models.UserView `json:"user"`
	Timestamp time.Time       `json:"timestamp"`
}

func (s *SiteModule) followers(c *gin.Context) {
	u, ok := s.loadUser(c)
	if !ok {
		return
	}
	res, err := s.store.Followers(c.Request.Context(), u.ID, page(c, s.pages.Followers))
	s.renderFollows(c, u, res, err, func(f *models.Follow) *models.User { return f.Follower })
}

func (s *SiteModule) followedBy(c *gin.Context) {
	u, ok := s.loadUser(c)
	if !ok {
		return
	}
	res, err := s.store.Followed(c.Request.Context(), u.ID, page(c, s.pages.Followers))
	s.renderFollows(c, u, res, err, func(f *models.Follow) *models.User { return f.Followed })
}

func (s *SiteModule) renderFollows(c *gin.Context, u *models.User, res store.Result[models.Follow], err error, other func(*models.Follow) *models.User) {
	if err != nil {
		common.RespondNegotiated(c, common.NewInternalError(err))
		return
	}
	entries := make([]followEntry, 0, len(res.Items))
	for i := range res.Items {
		peer := other(&res.Items[i])
		if peer == nil {
			continue
		}
		entries = append(entries, followEntry{
			User:      models.NewUserView(peer, 0),
			Timestamp: res.Items[i].Timestamp,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"user":       u.Username,
		"follows":    entries,
		"pagination": pagination(res),
	})
}
