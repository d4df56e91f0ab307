package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"inkwell/account"
	"inkwell/common"
	"inkwell/metrics"
	"inkwell/models"
	"inkwell/ratelimit"
)

// authenticate resolves the HTTP Basic credential. The user field holds an
// email with a password, or an API token with an empty password. Requests
// without an Authorization header keep the session principal, if any.
// Rejected credentials count against the caller's IP; once over the limit
// every credentialed request is answered 429 until the window passes.
func (a *APIModule) authenticate(c *gin.Context) {
	ctx := c.Request.Context()

	if c.GetHeader("Authorization") != "" {
		failures := ratelimit.Key("api-auth", c.ClientIP())
		over, err := a.limiter.Exceeded(ctx, failures)
		if err != nil {
			common.Logger.WarnContext(ctx, "rate limit unavailable", slog.Any("error", err))
		}
		if over {
			metrics.AuthAttempts.WithLabelValues("basic", "throttled").Inc()
			common.RespondJSON(c, common.NewTooManyRequestsError("Too many failed authentication attempts"))
			return
		}

		user, password, ok := c.Request.BasicAuth()
		if !ok {
			metrics.AuthAttempts.WithLabelValues("basic", "rejected").Inc()
			a.countFailure(ctx, failures)
			common.RespondJSON(c, common.NewUnauthorizedError("Invalid credentials"))
			return
		}

		p, err := a.principalFor(c, user, password)
		metrics.AuthAttempts.WithLabelValues(p.Method.String(), metrics.Result(err == nil)).Inc()
		if err != nil {
			if common.AsAppError(err).Kind == common.KindUnauthorized {
				a.countFailure(ctx, failures)
			}
			common.RespondJSON(c, err)
			return
		}
		account.SetPrincipal(c, p)
		if p.User != nil {
			a.svc.Ping(ctx, p.User)
		}
	}

	p := account.CurrentPrincipal(c)
	if p.User != nil && !p.User.Confirmed {
		metrics.AuthAttempts.WithLabelValues(p.Method.String(), "unconfirmed").Inc()
		common.RespondJSON(c, common.NewForbiddenError("Unconfirmed account"))
		return
	}
	c.Next()
}

func (a *APIModule) countFailure(ctx context.Context, key string) {
	if _, err := a.limiter.Allow(ctx, key); err != nil {
		common.Logger.WarnContext(ctx, "rate limit unavailable", slog.Any("error", err))
	}
}

func (a *APIModule) principalFor(c *gin.Context, user, password string) (account.Principal, error) {
	ctx := c.Request.Context()
	switch {
	case user == "":
		return account.Anonymous(), nil
	case password == "":
		u, err := a.svc.UserFromAuthToken(ctx, user)
		if err != nil {
			return account.Principal{Method: account.MethodToken}, err
		}
		return account.NewPrincipal(u, account.MethodToken), nil
	default:
		u, err := a.svc.Authenticate(ctx, user, password)
		if err != nil {
			return account.Principal{Method: account.MethodPassword}, err
		}
		return account.NewPrincipal(u, account.MethodPassword), nil
	}
}

// issueToken trades a password or session credential for an API token. A
// token cannot be used to mint another one.
func (a *APIModule) issueToken(c *gin.Context) {
	p := account.CurrentPrincipal(c)
	if p.IsAnonymous() || p.Method == account.MethodToken {
		common.RespondJSON(c, common.NewUnauthorizedError("Invalid credentials"))
		return
	}

	token, ttl, err := a.svc.IssueAuthToken(p.User)
	if err != nil {
		common.RespondJSON(c, common.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expiration": int(ttl.Seconds()),
	})
}

func currentUser(c *gin.Context) *models.User {
	return account.CurrentPrincipal(c).User
}
