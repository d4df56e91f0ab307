package site

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/account"
	"inkwell/common"
	"inkwell/config"
	"inkwell/email"
	"inkwell/models"
	"inkwell/store"
	"inkwell/store/storetest"
	"inkwell/tokens"
)

func setupTestSite(t *testing.T) (*gin.Engine, *store.Store) {
	gin.SetMode(gin.TestMode)
	st := storetest.Open(t)
	mail := email.NewService(&config.Config{}, &email.MemoryMailer{})
	svc := account.NewService(st, tokens.NewCodec("test-secret"), mail, "")
	accounts := account.NewAccountModule(svc, nil)

	router := gin.New()
	router.Use(sessions.Sessions("test-session", cookie.NewStore([]byte("secret"))))
	router.Use(accounts.LoadPrincipal)
	router.NoRoute(common.NotFound)
	accounts.RegisterRoutes(router)
	NewSiteModule(svc, Pages{Posts: 10, Comments: 5, Followers: 2}).RegisterRoutes(router)
	return router, st
}

type client struct {
	t       *testing.T
	router  *gin.Engine
	cookies []*http.Cookie
	accept  string
}

func newClient(t *testing.T, router *gin.Engine) *client {
	return &client{t: t, router: router, accept: "application/json"}
}

func (c *client) login(name string) {
	w := c.do(http.MethodPost, "/auth/login", url.Values{"email": {name + "@example.com"}, "password": {"cat"}})
	require.Equal(c.t, http.StatusOK, w.Code, w.Body.String())
}

func (c *client) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	body := strings.NewReader("")
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Accept", c.accept)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	if set := w.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestIndex_AllAndFollowedFeeds(t *testing.T) {
	router, st := setupTestSite(t)
	john := storetest.CreateUser(t, st, "john")
	susan := storetest.CreateUser(t, st, "susan")
	storetest.CreateUser(t, st, "david")
	storetest.CreatePost(t, st, john, "by john")
	storetest.CreatePost(t, st, susan, "by susan")
	require.NoError(t, st.AddFollow(context.Background(), john.ID, susan.ID))

	anon := newClient(t, router)
	w := anon.do(http.MethodGet, "/?feed=followed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "all", out["feed"], "anonymous callers always get every post")
	assert.Len(t, out["posts"], 2)

	c := newClient(t, router)
	c.login("john")
	w = c.do(http.MethodGet, "/?feed=followed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out = decode(t, w)
	assert.Equal(t, "followed", out["feed"])
	posts := out["posts"].([]any)
	require.Len(t, posts, 1)
	assert.Equal(t, "by susan", posts[0].(map[string]any)["body"])
}

func TestIndex_Pagination(t *testing.T) {
	router, st := setupTestSite(t)
	john := storetest.CreateUser(t, st, "john")
	for i := 0; i < 12; i++ {
		storetest.CreatePost(t, st, john, fmt.Sprintf("post %d", i))
	}
	c := newClient(t, router)

	out := decode(t, c.do(http.MethodGet, "/?page=2", nil))
	assert.Len(t, out["posts"], 2)
	pg := out["pagination"].(map[string]any)
	assert.Equal(t, float64(2), pg["page"])
	assert.Equal(t, float64(12), pg["total"])
	assert.Equal(t, true, pg["has_prev"])
	assert.Equal(t, false, pg["has_next"])
}

func TestUserProfile(t *testing.T) {
	router, st := setupTestSite(t)
	john := storetest.CreateUser(t, st, "john")
	susan := storetest.CreateUser(t, st, "susan")
	require.NoError(t, st.AddFollow(context.Background(), susan.ID, john.ID))

	c := newClient(t, router)
	c.login("john")
	w := c.do(http.MethodGet, "/user/susan", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, false, out["following"])
	assert.Equal(t, true, out["follows_you"])

	w = c.do(http.MethodGet, "/user/nobody", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFollowUnfollow(t *testing.T) {
	router, st := setupTestSite(t)
	storetest.CreateUser(t, st, "john")
	storetest.CreateUser(t, st, "susan")

	anon := newClient(t, router)
	w := anon.do(http.MethodPost, "/follow/susan", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c := newClient(t, router)
	c.login("john")
	w = c.do(http.MethodPost, "/follow/susan", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = c.do(http.MethodPost, "/follow/susan", nil)
	require.Equal(t, http.StatusOK, w.Code, "following twice is harmless")

	w = c.do(http.MethodPost, "/follow/john", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = c.do(http.MethodPost, "/follow/nobody", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	out := decode(t, c.do(http.MethodGet, "/followers/susan", nil))
	follows := out["follows"].([]any)
	require.Len(t, follows, 1)
	assert.Equal(t, "john", follows[0].(map[string]any)["user"].(map[string]any)["username"])

	out = decode(t, c.do(http.MethodGet, "/followed-by/john", nil))
	assert.Len(t, out["follows"], 1)

	w = c.do(http.MethodPost, "/unfollow/susan", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out = decode(t, c.do(http.MethodGet, "/followers/susan", nil))
	assert.Len(t, out["follows"], 0)
}

func TestFollowers_PageSize(t *testing.T) {
	router, st := setupTestSite(t)
	target := storetest.CreateUser(t, st, "target")
	for i := 0; i < 3; i++ {
		u := storetest.CreateUser(t, st, fmt.Sprintf("fan%d", i))
		require.NoError(t, st.AddFollow(context.Background(), u.ID, target.ID))
	}
	c := newClient(t, router)

	out := decode(t, c.do(http.MethodGet, "/followers/target", nil))
	assert.Len(t, out["follows"], 2)
	assert.Equal(t, true, out["pagination"].(map[string]any)["has_next"])
}

func TestPostAndComments(t *testing.T) {
	router, st := setupTestSite(t)
	john := storetest.CreateUser(t, st, "john")
	post := storetest.CreatePost(t, st, john, "hello")
	path := fmt.Sprintf("/post/%d", post.ID)

	anon := newClient(t, router)
	w := anon.do(http.MethodPost, path+"/comments", url.Values{"body": {"hi"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c := newClient(t, router)
	c.login("john")
	w = c.do(http.MethodPost, path+"/comments", url.Values{"body": {""}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = c.do(http.MethodPost, path+"/comments", url.Values{"body": {"first"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = c.do(http.MethodPost, path+"/comments", url.Values{"body": {"second"}})
	require.Equal(t, http.StatusCreated, w.Code)

	out := decode(t, anon.do(http.MethodGet, path, nil))
	comments := out["comments"].([]any)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].(map[string]any)["body"], "threads read oldest first")
	assert.Equal(t, float64(2), out["post"].(map[string]any)["comment_count"])

	w = anon.do(http.MethodGet, "/post/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEditPost_AuthorOrAdmin(t *testing.T) {
	router, st := setupTestSite(t)
	john := storetest.CreateUser(t, st, "john")
	storetest.CreateUser(t, st, "susan")
	storetest.CreateUser(t, st, "boss", storetest.UserOpts{Role: models.RoleAdministrator})
	post := storetest.CreatePost(t, st, john, "hello")
	path := fmt.Sprintf("/edit/%d", post.ID)

	susan := newClient(t, router)
	susan.login("susan")
	w := susan.do(http.MethodPut, path, url.Values{"body": {"mine now"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	author := newClient(t, router)
	author.login("john")
	w = author.do(http.MethodPut, path, url.Values{"body": {"  "}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = author.do(http.MethodPut, path, url.Values{"body": {"**edited**"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["post"].(map[string]any)["body_html"], "<strong>edited</strong>")

	boss := newClient(t, router)
	boss.login("boss")
	w = boss.do(http.MethodPut, path, url.Values{"body": {"moderated"}})
	require.Equal(t, http.StatusOK, w.Code)

	p, err := st.PostByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "moderated", p.Body)
}

func TestEditProfile(t *testing.T) {
	router, st := setupTestSite(t)
	john := storetest.CreateUser(t, st, "john")

	c := newClient(t, router)
	w := c.do(http.MethodPut, "/edit-profile", url.Values{"name": {"John"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c.login("john")
	w = c.do(http.MethodPut, "/edit-profile", url.Values{
		"name": {"John Doe"}, "location": {"Lisbon"}, "about_me": {"writer"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	u, err := st.UserByID(context.Background(), john.ID)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", u.Name)
	assert.Equal(t, "Lisbon", u.Location)
	assert.Equal(t, "writer", u.AboutMe)

	w = c.do(http.MethodPut, "/edit-profile", url.Values{"name": {strings.Repeat("x", 65)}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnconfirmedUserBlocked(t *testing.T) {
	router, st := setupTestSite(t)
	storetest.CreateUser(t, st, "john", storetest.UserOpts{Unconfirmed: true})

	c := newClient(t, router)
	c.login("john")
	w := c.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c.accept = "text/html"
	w = c.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
}

func (c *client) doJSON(method, path, raw string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(raw))
	req.Header.Set("Accept", c.accept)
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func TestMalformedBodyIsReportedAsSuch(t *testing.T) {
	router, st := setupTestSite(t)
	john := storetest.CreateUser(t, st, "john")
	post := storetest.CreatePost(t, st, john, "hello")

	c := newClient(t, router)
	c.login("john")

	w := c.doJSON(http.MethodPost, fmt.Sprintf("/post/%d/comments", post.ID), `{"body": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "request body must be a JSON object or a form", decode(t, w)["message"])

	w = c.doJSON(http.MethodPut, fmt.Sprintf("/edit/%d", post.ID), `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "request body must be a JSON object or a form", decode(t, w)["message"])

	w = c.doJSON(http.MethodPost, fmt.Sprintf("/post/%d/comments", post.ID), `{"body": "json works"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	p, err := st.PostByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Body)
}
