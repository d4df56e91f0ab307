package account

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"inkwell/common"
	"inkwell/metrics"
	"inkwell/models"
	"inkwell/ratelimit"
	"inkwell/store"
)

const (
	sessionUserKey = "user_id"
	rememberMaxAge = 86400 * 30
)

type AccountModule struct {
	svc           *Service
	limiter       *ratelimit.Limiter
	secureCookies bool
}

// CookieOptions are the session cookie attributes. SameSite=Lax keeps the
// cookie off cross-site POSTs, since the API also accepts it. maxAge 0 is a
// browser-session cookie and -1 deletes it.
func CookieOptions(maxAge int, secure bool) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SecureCookies marks the cookies set by login and logout Secure.
func (a *AccountModule) SecureCookies(on bool) *AccountModule {
	a.secureCookies = on
	return a
}

func NewAccountModule(svc *Service, limiter *ratelimit.Limiter) *AccountModule {
	return &AccountModule{svc: svc, limiter: limiter}
}

func (a *AccountModule) RegisterRoutes(router *gin.Engine) {
	auth := router.Group("/auth")
	auth.POST("/register", a.register)
	auth.POST("/login", a.limiter.Middleware("login"), a.login)
	auth.POST("/logout", a.logout)
	auth.GET("/me", a.me)
	auth.POST("/reset", a.limiter.Middleware("reset"), a.requestReset)
	auth.POST("/reset/:token", a.resetPassword)

	loggedIn := auth.Group("", RequireLogin)
	{
		loggedIn.GET("/confirm/:token", a.confirm)
		loggedIn.POST("/confirm", a.resendConfirmation)
		loggedIn.POST("/change-password", a.changePassword)
		loggedIn.POST("/change-email", a.requestEmailChange)
		loggedIn.GET("/change-email/:token", a.changeEmail)
	}
}

// LoadPrincipal resolves the session cookie to a user. A cookie naming a
// vanished user is cleared and the request continues anonymously.
func (a *AccountModule) LoadPrincipal(c *gin.Context) {
	session := sessions.Default(c)
	id, ok := session.Get(sessionUserKey).(uint)
	if !ok {
		SetPrincipal(c, Anonymous())
		c.Next()
		return
	}

	u, err := a.svc.store.UserByID(c.Request.Context(), id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			common.RespondNegotiated(c, common.NewInternalError(err))
			return
		}
		session.Clear()
		_ = session.Save()
		SetPrincipal(c, Anonymous())
		c.Next()
		return
	}

	SetPrincipal(c, NewPrincipal(u, MethodSession))
	a.svc.Ping(c.Request.Context(), u)
	c.Next()
}

// RequireLogin rejects anonymous requests.
func RequireLogin(c *gin.Context) {
	if CurrentPrincipal(c).IsAnonymous() {
		common.RespondNegotiated(c, common.NewUnauthorizedError("Please log in to access this page."))
		return
	}
	c.Next()
}

// RequireConfirmed rejects logged-in users who have not confirmed their email.
func RequireConfirmed(c *gin.Context) {
	p := CurrentPrincipal(c)
	if p.User != nil && !p.User.Confirmed {
		common.RespondNegotiated(c, common.NewForbiddenError("Unconfirmed account"))
		return
	}
	c.Next()
}

// Responder writes an error and aborts the request.
type Responder func(c *gin.Context, err error)

// PermissionGate lets through principals whose role grants perm. Anonymous
// callers get 401, everyone else lacking perm gets 403.
func PermissionGate(perm models.Permission, respond Responder) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := CurrentPrincipal(c)
		if p.IsAnonymous() {
			respond(c, common.NewUnauthorizedError("Authentication required"))
			return
		}
		if !p.Identity.Can(perm) {
			respond(c, common.NewForbiddenError("Insufficient permissions"))
			return
		}
		c.Next()
	}
}

// RequirePermission is PermissionGate for the web pages.
func RequirePermission(perm models.Permission) gin.HandlerFunc {
	return PermissionGate(perm, common.RespondNegotiated)
}

type registerRequest struct {
	Email    string `form:"email" json:"email" binding:"required"`
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
	Confirm  string `form:"password2" json:"password2"`
}

func (a *AccountModule) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		common.RespondNegotiated(c, common.NewValidationError("Email, username and password are required."))
		return
	}
	if req.Confirm != "" && req.Confirm != req.Password {
		common.RespondNegotiated(c, common.NewValidationError("Passwords must match."))
		return
	}

	u, err := a.svc.Register(c.Request.Context(), req.Email, req.Username, req.Password)
	metrics.AccountEvents.WithLabelValues("register", metrics.Result(err == nil)).Inc()
	if err != nil {
		common.RespondNegotiated(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "A confirmation email has been sent to you by email.",
		"user":    models.NewUserView(u, 0),
	})
}

type loginRequest struct {
	Email      string `form:"email" json:"email" binding:"required"`
	Password   string `form:"password" json:"password" binding:"required"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

func (a *AccountModule) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		common.RespondNegotiated(c, common.NewValidationError("Email and password are required."))
		return
	}

	u, err := a.svc.Authenticate(c.Request.Context(), req.Email, req.Password)
	metrics.AuthAttempts.WithLabelValues(MethodSession.String(), metrics.Result(err == nil)).Inc()
	if err != nil {
		common.RespondNegotiated(c, common.NewUnauthorizedError("Invalid email or password."))
		return
	}

	session := sessions.Default(c)
	maxAge := 0
	if req.RememberMe {
		maxAge = rememberMaxAge
	}
	session.Options(CookieOptions(maxAge, a.secureCookies))
	session.Set(sessionUserKey, u.ID)
	if err := session.Save(); err != nil {
		common.RespondNegotiated(c, common.NewInternalError(err))
		return
	}

	common.Logger.InfoContext(c.Request.Context(), "user logged in", slog.Uint64("login_user_id", uint64(u.ID)))
	c.JSON(http.StatusOK, gin.H{
		"user":      models.NewUserView(u, 0),
		"confirmed": u.Confirmed,
	})
}

func (a *AccountModule) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(CookieOptions(-1, a.secureCookies))
	_ = session.Save()

	c.JSON(http.StatusOK, gin.H{"message": "You have been logged out."})
}

func (a *AccountModule) me(c *gin.Context) {
	p := CurrentPrincipal(c)
	if p.IsAnonymous() {
		c.JSON(http.StatusOK, gin.H{"anonymous": true})
		return
	}
	n, err := a.svc.store.CountPostsByAuthor(c.Request.Context(), p.User.ID)
	if err != nil {
		common.RespondNegotiated(c, common.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"anonymous": false,
		"confirmed": p.User.Confirmed,
		"user":      models.NewUserView(p.User, n),
	})
}

func (a *AccountModule) confirm(c *gin.Context) {
	u := CurrentPrincipal(c).User
	ok := a.svc.Confirm(c.Request.Context(), u, c.Param("token"))
	metrics.AccountEvents.WithLabelValues("confirm", metrics.Result(ok)).Inc()
	if !ok {
		common.RespondNegotiated(c, common.NewValidationError("The confirmation link is invalid or has expired."))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "You have confirmed your account. Thanks!"})
}

func (a *AccountModule) resendConfirmation(c *gin.Context) {
	a.svc.ResendConfirmation(c.Request.Context(), CurrentPrincipal(c).User)
	c.JSON(http.StatusOK, gin.H{"message": "A new confirmation email has been sent to you by email."})
}

type changePasswordRequest struct {
	OldPassword string `form:"old_password" json:"old_password" binding:"required"`
	Password    string `form:"password" json:"password" binding:"required"`
}

func (a *AccountModule) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		common.RespondNegotiated(c, common.NewValidationError("Old and new password are required."))
		return
	}
	if err := a.svc.ChangePassword(c.Request.Context(), CurrentPrincipal(c).User, req.OldPassword, req.Password); err != nil {
		common.RespondNegotiated(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your password has been updated."})
}

type resetRequest struct {
	Email string `form:"email" json:"email" binding:"required"`
}

func (a *AccountModule) requestReset(c *gin.Context) {
	if !CurrentPrincipal(c).IsAnonymous() {
		common.RespondNegotiated(c, common.NewValidationError("Already logged in."))
		return
	}
	var req resetRequest
	if err := c.ShouldBind(&req); err != nil {
		common.RespondNegotiated(c, common.NewValidationError("Email is required."))
		return
	}
	if err := a.svc.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		common.RespondNegotiated(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "An email with instructions to reset your password has been sent to you."})
}

type newPasswordRequest struct {
	Password string `form:"password" json:"password" binding:"required"`
}

func (a *AccountModule) resetPassword(c *gin.Context) {
	var req newPasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		common.RespondNegotiated(c, common.NewValidationError("Password is required."))
		return
	}
	ok := a.svc.ResetPassword(c.Request.Context(), c.Param("token"), req.Password)
	metrics.AccountEvents.WithLabelValues("reset", metrics.Result(ok)).Inc()
	if !ok {
		common.RespondNegotiated(c, common.NewValidationError("The reset link is invalid or has expired."))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your password has been updated."})
}

type emailChangeRequest struct {
	Email    string `form:"email" json:"email" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

func (a *AccountModule) requestEmailChange(c *gin.Context) {
	var req emailChangeRequest
	if err := c.ShouldBind(&req); err != nil {
		common.RespondNegotiated(c, common.NewValidationError("Email and password are required."))
		return
	}
	if err := a.svc.RequestEmailChange(c.Request.Context(), CurrentPrincipal(c).User, req.Email, req.Password); err != nil {
		common.RespondNegotiated(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "An email with instructions to confirm your new email address has been sent to you."})
}

func (a *AccountModule) changeEmail(c *gin.Context) {
	ok := a.svc.ChangeEmail(c.Request.Context(), CurrentPrincipal(c).User, c.Param("token"))
	metrics.AccountEvents.WithLabelValues("change_email", metrics.Result(ok)).Inc()
	if !ok {
		common.RespondNegotiated(c, common.NewValidationError("Invalid request."))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your email address has been updated."})
}
