package models

import (
	"fmt"
	"strings"
	"time"
)

// APIPrefix is where the REST resources are mounted; views link into it.
const APIPrefix = "/api/v1"

func PostURL(id uint) string    { return fmt.Sprintf("%s/posts/%d", APIPrefix, id) }
func UserURL(id uint) string    { return fmt.Sprintf("%s/users/%d", APIPrefix, id) }
func CommentURL(id uint) string { return fmt.Sprintf("%s/comments/%d", APIPrefix, id) }

type PostView struct {
	URL          string    `json:"url"`
	Body         string    `json:"body"`
	BodyHTML     string    `json:"body_html"`
	Timestamp    time.Time `json:"timestamp"`
	AuthorURL    string    `json:"author_url"`
	CommentsURL  string    `json:"comments_url"`
	CommentCount int64     `json:"comment_count"`
}

func NewPostView(p *Post, commentCount int64) PostView {
	return PostView{
		URL:          PostURL(p.ID),
		Body:         p.Body,
		BodyHTML:     p.BodyHTML,
		Timestamp:    p.Timestamp,
		AuthorURL:    UserURL(p.AuthorID),
		CommentsURL:  PostURL(p.ID) + "/comments/",
		CommentCount: commentCount,
	}
}

type UserView struct {
	URL              string    `json:"url"`
	Username         string    `json:"username"`
	MemberSince      time.Time `json:"member_since"`
	LastSeen         time.Time `json:"last_seen"`
	PostsURL         string    `json:"posts_url"`
	FollowedPostsURL string    `json:"followed_posts_url"`
	PostCount        int64     `json:"post_count"`
	Avatar           string    `json:"avatar"`
}

func NewUserView(u *User, postCount int64) UserView {
	return UserView{
		URL:              UserURL(u.ID),
		Username:         u.Username,
		MemberSince:      u.MemberSince,
		LastSeen:         u.LastSeen,
		PostsURL:         UserURL(u.ID) + "/posts/",
		FollowedPostsURL: UserURL(u.ID) + "/timeline/",
		PostCount:        postCount,
		Avatar:           u.Gravatar(100),
	}
}

// CommentView hides the body of a moderated comment.
type CommentView struct {
	URL       string    `json:"url"`
	PostURL   string    `json:"post_url"`
	Body      *string   `json:"body"`
	BodyHTML  *string   `json:"body_html"`
	Timestamp time.Time `json:"timestamp"`
	AuthorURL string    `json:"author_url"`
	Disabled  bool      `json:"disabled"`
}

func NewCommentView(c *Comment) CommentView {
	v := CommentView{
		URL:       CommentURL(c.ID),
		PostURL:   PostURL(c.PostID),
		Timestamp: c.Timestamp,
		AuthorURL: UserURL(c.AuthorID),
		Disabled:  c.Disabled,
	}
	if !c.Disabled {
		body, html := c.Body, c.BodyHTML
		v.Body, v.BodyHTML = &body, &html
	}
	return v
}

// BodyPayload is the request body accepted for posts and comments.
type BodyPayload struct {
	Body *string `json:"body"`
}

// ErrMissingBody is returned when a post or comment payload has no text.
type ErrMissingBody struct{ Kind string }

func (e ErrMissingBody) Error() string {
	return e.Kind + " does not have a body"
}

// PostFromJSON builds an unsaved post from a request payload.
func PostFromJSON(in BodyPayload) (*Post, error) {
	if in.Body == nil || strings.TrimSpace(*in.Body) == "" {
		return nil, ErrMissingBody{Kind: "post"}
	}
	return &Post{Body: *in.Body}, nil
}

// CommentFromJSON builds an unsaved comment from a request payload.
func CommentFromJSON(in BodyPayload) (*Comment, error) {
	if in.Body == nil || strings.TrimSpace(*in.Body) == "" {
		return nil, ErrMissingBody{Kind: "comment"}
	}
	return &Comment{Body: *in.Body}, nil
}
