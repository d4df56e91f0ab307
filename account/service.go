// Package account owns the user lifecycle: registration, confirmation,
// credentials, email changes and the follower graph. Handlers in other
// packages call into Service rather than touching the store directly.
package account

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"inkwell/common"
	"inkwell/email"
	"inkwell/models"
	"inkwell/store"
	"inkwell/tokens"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]*$`)

type Service struct {
	store      *store.Store
	codec      *tokens.Codec
	mail       *email.Service
	adminEmail string
	validate   *validator.Validate
}

func NewService(st *store.Store, codec *tokens.Codec, mail *email.Service, adminEmail string) *Service {
	return &Service{
		store:      st,
		codec:      codec,
		mail:       mail,
		adminEmail: store.NormalizeEmail(adminEmail),
		validate:   validator.New(),
	}
}

func (s *Service) Store() *store.Store {
	return s.store
}

func (s *Service) validEmail(addr string) error {
	if err := s.validate.Var(addr, "required,email,max=64"); err != nil {
		return common.NewValidationError("Invalid email address.")
	}
	return nil
}

func validUsername(name string) error {
	if name == "" || len(name) > 64 || !usernamePattern.MatchString(name) {
		return common.NewValidationError("Usernames must have only letters, numbers, dots or underscores.")
	}
	return nil
}

// Register creates an unconfirmed account and mails its confirmation link.
// The configured admin address gets the Administrator role; everyone else
// gets the default role.
func (s *Service) Register(ctx context.Context, addr, username, password string) (*models.User, error) {
	addr = store.NormalizeEmail(addr)
	if err := s.validEmail(addr); err != nil {
		return nil, err
	}
	if err := validUsername(username); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, common.NewValidationError("Password is required.")
	}

	if taken, err := s.store.EmailTaken(ctx, addr, 0); err != nil {
		return nil, common.NewInternalError(err)
	} else if taken {
		return nil, common.NewValidationError("Email already registered.")
	}
	if taken, err := s.store.UsernameTaken(ctx, username, 0); err != nil {
		return nil, common.NewInternalError(err)
	} else if taken {
		return nil, common.NewValidationError("Username already in use.")
	}

	role, err := s.roleFor(ctx, addr)
	if err != nil {
		return nil, common.NewInternalError(err)
	}

	u := &models.User{Username: username, RoleID: &role.ID, Role: role}
	u.SetEmail(addr)
	if err := u.SetPassword(password); err != nil {
		return nil, common.NewInternalError(err)
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, common.NewValidationError("Email or username already registered.")
		}
		return nil, common.NewInternalError(err)
	}

	s.sendConfirmation(ctx, u)
	common.Logger.InfoContext(ctx, "user registered", slog.Uint64("new_user_id", uint64(u.ID)), slog.String("role", role.Name))
	return u, nil
}

func (s *Service) roleFor(ctx context.Context, addr string) (*models.Role, error) {
	if s.adminEmail != "" && addr == s.adminEmail {
		return s.store.RoleByName(ctx, models.RoleAdministrator)
	}
	return s.store.DefaultRole(ctx)
}

// sendConfirmation logs delivery failures; the account exists either way and
// the user can ask for another link.
func (s *Service) sendConfirmation(ctx context.Context, u *models.User) {
	token, err := s.GenerateConfirmationToken(u)
	if err == nil {
		err = s.mail.SendConfirmation(ctx, u.Email, u.Username, token)
	}
	if err != nil {
		common.Logger.WarnContext(ctx, "confirmation mail failed", slog.String("to", u.Email), slog.Any("error", err))
	}
}

// ResendConfirmation mails a fresh link to an unconfirmed user.
func (s *Service) ResendConfirmation(ctx context.Context, u *models.User) {
	if u.Confirmed {
		return
	}
	s.sendConfirmation(ctx, u)
}

func (s *Service) VerifyPassword(u *models.User, candidate string) bool {
	return u.VerifyPassword(candidate)
}

func (s *Service) GenerateConfirmationToken(u *models.User) (string, error) {
	token, _, err := s.codec.Issue(tokens.Confirmation{UserID: u.ID}, tokens.DefaultTTL)
	return token, err
}

// Confirm marks u confirmed when token was issued for u. Every failure is
// reported as false.
func (s *Service) Confirm(ctx context.Context, u *models.User, token string) bool {
	if u.Confirmed {
		return true
	}
	claim, err := tokens.Verify[tokens.Confirmation](s.codec, token)
	if err != nil || claim.UserID != u.ID {
		return false
	}
	u.Confirmed = true
	if err := s.store.SaveUser(ctx, u); err != nil {
		u.Confirmed = false
		common.Logger.ErrorContext(ctx, "confirm failed", slog.Any("error", err))
		return false
	}
	return true
}

// RequestPasswordReset mails a reset link when addr belongs to an account
// and does nothing otherwise.
func (s *Service) RequestPasswordReset(ctx context.Context, addr string) error {
	u, err := s.store.UserByEmail(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return common.NewInternalError(err)
	}

	token, _, err := s.codec.Issue(tokens.Reset{UserID: u.ID}, tokens.DefaultTTL)
	if err != nil {
		return common.NewInternalError(err)
	}
	if err := s.mail.SendPasswordReset(ctx, u.Email, u.Username, token); err != nil {
		common.Logger.WarnContext(ctx, "reset mail failed", slog.String("to", u.Email), slog.Any("error", err))
	}
	return nil
}

// ResetPassword sets a new password for the user named in token. No session
// is needed: holding the mailed token is the credential.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) bool {
	if newPassword == "" {
		return false
	}
	claim, err := tokens.Verify[tokens.Reset](s.codec, token)
	if err != nil {
		return false
	}
	u, err := s.store.UserByID(ctx, claim.UserID)
	if err != nil {
		return false
	}
	if err := u.SetPassword(newPassword); err != nil {
		return false
	}
	return s.store.SaveUser(ctx, u) == nil
}

func (s *Service) ChangePassword(ctx context.Context, u *models.User, oldPassword, newPassword string) error {
	if !u.VerifyPassword(oldPassword) {
		return common.NewValidationError("Invalid password.")
	}
	if newPassword == "" {
		return common.NewValidationError("Password is required.")
	}
	if err := u.SetPassword(newPassword); err != nil {
		return common.NewInternalError(err)
	}
	if err := s.store.SaveUser(ctx, u); err != nil {
		return common.NewInternalError(err)
	}
	return nil
}

// RequestEmailChange mails a confirmation link to newEmail. The address is
// only switched once that link is followed.
func (s *Service) RequestEmailChange(ctx context.Context, u *models.User, newEmail, password string) error {
	newEmail = store.NormalizeEmail(newEmail)
	if !u.VerifyPassword(password) {
		return common.NewValidationError("Invalid email or password.")
	}
	if err := s.validEmail(newEmail); err != nil {
		return err
	}
	taken, err := s.store.EmailTaken(ctx, newEmail, u.ID)
	if err != nil {
		return common.NewInternalError(err)
	}
	if taken {
		return common.NewValidationError("Email already registered.")
	}

	token, _, err := s.codec.Issue(tokens.EmailChange{UserID: u.ID, NewEmail: newEmail}, tokens.DefaultTTL)
	if err != nil {
		return common.NewInternalError(err)
	}
	if err := s.mail.SendEmailChange(ctx, newEmail, u.Username, token); err != nil {
		common.Logger.WarnContext(ctx, "email change mail failed", slog.String("to", newEmail), slog.Any("error", err))
	}
	return nil
}

// ChangeEmail applies an email change token issued to u. It fails when the
// new address now belongs to a different account; switching to the address
// u already has succeeds.
func (s *Service) ChangeEmail(ctx context.Context, u *models.User, token string) bool {
	claim, err := tokens.Verify[tokens.EmailChange](s.codec, token)
	if err != nil || claim.UserID != u.ID || claim.NewEmail == "" {
		return false
	}
	taken, err := s.store.EmailTaken(ctx, claim.NewEmail, u.ID)
	if err != nil || taken {
		return false
	}

	previous, previousHash := u.Email, u.AvatarHash
	u.SetEmail(claim.NewEmail)
	if err := s.store.SaveUser(ctx, u); err != nil {
		// lost a race with another account claiming the address
		u.Email, u.AvatarHash = previous, previousHash
		return false
	}
	return true
}

// Authenticate checks an email and password pair.
func (s *Service) Authenticate(ctx context.Context, addr, password string) (*models.User, error) {
	u, err := s.store.UserByEmail(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NewUnauthorizedError("Invalid credentials")
	}
	if err != nil {
		return nil, common.NewInternalError(err)
	}
	if !u.VerifyPassword(password) {
		return nil, common.NewUnauthorizedError("Invalid credentials")
	}
	return u, nil
}

// IssueAuthToken returns an API token for u and its lifetime.
func (s *Service) IssueAuthToken(u *models.User) (string, time.Duration, error) {
	token, _, err := s.codec.Issue(tokens.AuthSession{UserID: u.ID}, tokens.DefaultTTL)
	return token, tokens.DefaultTTL, err
}

// UserFromAuthToken resolves an API token to its owner.
func (s *Service) UserFromAuthToken(ctx context.Context, token string) (*models.User, error) {
	claim, err := tokens.Verify[tokens.AuthSession](s.codec, token)
	if err != nil {
		return nil, common.NewUnauthorizedError("Invalid credentials")
	}
	u, err := s.store.UserByID(ctx, claim.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.NewUnauthorizedError("Invalid credentials")
	}
	if err != nil {
		return nil, common.NewInternalError(err)
	}
	return u, nil
}

// Ping records that u was active; failures are only logged.
func (s *Service) Ping(ctx context.Context, u *models.User) {
	if err := s.store.TouchUser(ctx, u); err != nil {
		common.Logger.WarnContext(ctx, "last seen update failed", slog.Any("error", err))
	}
}

func (s *Service) Can(u models.Identity, perm models.Permission) bool {
	return u.Can(perm)
}

func (s *Service) IsAdministrator(u models.Identity) bool {
	return u.IsAdministrator()
}

// Follow adds the edge follower -> target. Following twice is harmless.
func (s *Service) Follow(ctx context.Context, follower, target *models.User) error {
	if follower.ID == target.ID {
		return common.NewValidationError("You cannot follow yourself.")
	}
	if err := s.store.AddFollow(ctx, follower.ID, target.ID); err != nil {
		return common.NewInternalError(err)
	}
	return nil
}

// Unfollow removes the edge; a missing edge is not an error.
func (s *Service) Unfollow(ctx context.Context, follower, target *models.User) error {
	if err := s.store.RemoveFollow(ctx, follower.ID, target.ID); err != nil {
		return common.NewInternalError(err)
	}
	return nil
}

func (s *Service) IsFollowing(ctx context.Context, follower, target *models.User) (bool, error) {
	return s.store.FollowEdge(ctx, follower.ID, target.ID)
}

func (s *Service) IsFollowedBy(ctx context.Context, u, other *models.User) (bool, error) {
	return s.store.FollowEdge(ctx, other.ID, u.ID)
}

// Profile is the user-editable part of an account.
type Profile struct {
	Name     string `form:"name" json:"name"`
	Location string `form:"location" json:"location"`
	AboutMe  string `form:"about_me" json:"about_me"`
}

func (p Profile) validate() error {
	if len(p.Name) > 64 || len(p.Location) > 64 {
		return common.NewValidationError("Name and location are limited to 64 characters.")
	}
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, u *models.User, p Profile) error {
	if err := p.validate(); err != nil {
		return err
	}
	u.Name, u.Location, u.AboutMe = p.Name, p.Location, p.AboutMe
	if err := s.store.SaveUser(ctx, u); err != nil {
		return common.NewInternalError(err)
	}
	return nil
}

// AdminProfile is what an administrator may change on any account.
type AdminProfile struct {
	Email     string `form:"email" json:"email"`
	Username  string `form:"username" json:"username"`
	Confirmed bool   `form:"confirmed" json:"confirmed"`
	Role      string `form:"role" json:"role"`
	Profile
}

func (s *Service) AdminUpdateProfile(ctx context.Context, u *models.User, p AdminProfile) error {
	addr := store.NormalizeEmail(p.Email)
	if err := s.validEmail(addr); err != nil {
		return err
	}
	if err := validUsername(p.Username); err != nil {
		return err
	}
	if err := p.Profile.validate(); err != nil {
		return err
	}

	if addr != u.Email {
		taken, err := s.store.EmailTaken(ctx, addr, u.ID)
		if err != nil {
			return common.NewInternalError(err)
		}
		if taken {
			return common.NewValidationError("Email already registered.")
		}
	}
	if p.Username != u.Username {
		taken, err := s.store.UsernameTaken(ctx, p.Username, u.ID)
		if err != nil {
			return common.NewInternalError(err)
		}
		if taken {
			return common.NewValidationError("Username already in use.")
		}
	}

	role, err := s.store.RoleByName(ctx, strings.TrimSpace(p.Role))
	if errors.Is(err, store.ErrNotFound) {
		return common.NewValidationError("Unknown role.")
	}
	if err != nil {
		return common.NewInternalError(err)
	}

	u.SetEmail(addr)
	u.Username = p.Username
	u.Confirmed = p.Confirmed
	u.RoleID, u.Role = &role.ID, role
	u.Name, u.Location, u.AboutMe = p.Name, p.Location, p.AboutMe

	if err := s.store.SaveUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return common.NewValidationError("Email or username already registered.")
		}
		return common.NewInternalError(err)
	}
	return nil
}
