package account

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/common"
	"inkwell/config"
	"inkwell/email"
	"inkwell/models"
	"inkwell/store"
	"inkwell/store/storetest"
	"inkwell/tokens"
)

const testSecret = "test-secret"

func setupTestService(t *testing.T) (*Service, *email.MemoryMailer) {
	st := storetest.Open(t)
	mailer := &email.MemoryMailer{}
	mail := email.NewService(&config.Config{Domain: "http://blog.test"}, mailer)
	return NewService(st, tokens.NewCodec(testSecret), mail, "Admin@Example.com"), mailer
}

// tokenFromMail pulls the last path segment of the link in a mailed body.
func tokenFromMail(t *testing.T, body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http://blog.test/") {
			u, err := url.Parse(line)
			require.NoError(t, err)
			parts := strings.Split(u.Path, "/")
			return parts[len(parts)-1]
		}
	}
	t.Fatalf("no link in mail: %q", body)
	return ""
}

func TestRegister_DefaultRoleAndConfirmationMail(t *testing.T) {
	svc, mailer := setupTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "John@Example.com", "john", "cat")
	require.NoError(t, err)

	assert.Equal(t, "john@example.com", u.Email)
	assert.False(t, u.Confirmed)
	require.NotNil(t, u.Role)
	assert.Equal(t, models.RoleUser, u.Role.Name)
	assert.Equal(t, models.AvatarHash("john@example.com"), u.AvatarHash)
	assert.True(t, svc.VerifyPassword(u, "cat"))

	msg, ok := mailer.Last()
	require.True(t, ok)
	assert.Equal(t, "john@example.com", msg.To)
	assert.Contains(t, msg.Body, "/auth/confirm/")
}

func TestRegister_AdminEmailGetsAdministrator(t *testing.T) {
	svc, _ := setupTestService(t)

	u, err := svc.Register(context.Background(), "admin@example.com", "boss", "cat")
	require.NoError(t, err)
	require.NotNil(t, u.Role)
	assert.Equal(t, models.RoleAdministrator, u.Role.Name)
	assert.True(t, svc.IsAdministrator(u))

	loaded, err := svc.Store().UserByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, loaded.IsAdministrator())
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "john@example.com", "john", "cat")
	require.NoError(t, err)

	cases := []struct {
		name, email, username, password string
	}{
		{"bad email", "not-an-email", "ann", "cat"},
		{"bad username", "ann@example.com", "9ann", "cat"},
		{"username with space", "ann@example.com", "an n", "cat"},
		{"empty password", "ann@example.com", "ann", ""},
		{"duplicate email", "JOHN@example.com", "ann", "cat"},
		{"duplicate username", "ann@example.com", "john", "cat"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.email, tc.username, tc.password)
			require.Error(t, err)
			assert.Equal(t, common.KindValidation, common.AsAppError(err).Kind)
		})
	}
}

func TestRegister_MailFailureIsNotFatal(t *testing.T) {
	svc, mailer := setupTestService(t)
	mailer.Err = assert.AnError

	u, err := svc.Register(context.Background(), "john@example.com", "john", "cat")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
}

func TestConfirm(t *testing.T) {
	svc, mailer := setupTestService(t)
	ctx := context.Background()

	john, err := svc.Register(ctx, "john@example.com", "john", "cat")
	require.NoError(t, err)
	msg, _ := mailer.Last()
	token := tokenFromMail(t, msg.Body)

	susan, err := svc.Register(ctx, "susan@example.com", "susan", "dog")
	require.NoError(t, err)

	assert.False(t, svc.Confirm(ctx, susan, token), "token belongs to john")
	assert.False(t, svc.Confirm(ctx, john, "garbage"))

	assert.True(t, svc.Confirm(ctx, john, token))
	loaded, err := svc.Store().UserByID(ctx, john.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Confirmed)

	assert.True(t, svc.Confirm(ctx, loaded, "anything"), "already confirmed")
}

func TestConfirm_Expired(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	john, err := svc.Register(ctx, "john@example.com", "john", "cat")
	require.NoError(t, err)

	token, _, err := svc.codec.Issue(tokens.Confirmation{UserID: john.ID}, -time.Minute)
	require.NoError(t, err)
	assert.False(t, svc.Confirm(ctx, john, token))
}

func TestConfirm_RejectsResetToken(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	john, err := svc.Register(ctx, "john@example.com", "john", "cat")
	require.NoError(t, err)

	reset, _, err := svc.codec.Issue(tokens.Reset{UserID: john.ID}, tokens.DefaultTTL)
	require.NoError(t, err)
	assert.False(t, svc.Confirm(ctx, john, reset))

	confirm, err := svc.GenerateConfirmationToken(john)
	require.NoError(t, err)
	assert.False(t, svc.ResetPassword(ctx, confirm, "new"))
}

func TestPasswordReset(t *testing.T) {
	svc, mailer := setupTestService(t)
	ctx := context.Background()
	john := storetest.CreateUser(t, svc.Store(), "john")

	require.NoError(t, svc.RequestPasswordReset(ctx, "nobody@example.com"))
	_, sent := mailer.Last()
	assert.False(t, sent)

	require.NoError(t, svc.RequestPasswordReset(ctx, "JOHN@example.com"))
	msg, sent := mailer.Last()
	require.True(t, sent)
	assert.Contains(t, msg.Body, "/auth/reset/")
	token := tokenFromMail(t, msg.Body)

	assert.False(t, svc.ResetPassword(ctx, token, ""))
	assert.True(t, svc.ResetPassword(ctx, token, "dog"))

	loaded, err := svc.Store().UserByID(ctx, john.ID)
	require.NoError(t, err)
	assert.True(t, loaded.VerifyPassword("dog"))
	assert.False(t, loaded.VerifyPassword("cat"))

	assert.False(t, svc.ResetPassword(ctx, "bogus", "x"))
}

func TestChangePassword(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	john := storetest.CreateUser(t, svc.Store(), "john")

	err := svc.ChangePassword(ctx, john, "wrong", "dog")
	assert.Equal(t, common.KindValidation, common.AsAppError(err).Kind)

	require.NoError(t, svc.ChangePassword(ctx, john, "cat", "dog"))
	u, err := svc.Authenticate(ctx, "john@example.com", "dog")
	require.NoError(t, err)
	assert.Equal(t, john.ID, u.ID)
}

func TestEmailChange(t *testing.T) {
	svc, mailer := setupTestService(t)
	ctx := context.Background()
	john := storetest.CreateUser(t, svc.Store(), "john")
	storetest.CreateUser(t, svc.Store(), "susan")

	err := svc.RequestEmailChange(ctx, john, "new@example.com", "wrong")
	assert.Error(t, err)
	err = svc.RequestEmailChange(ctx, john, "susan@example.com", "cat")
	assert.Error(t, err)

	require.NoError(t, svc.RequestEmailChange(ctx, john, "New@Example.com", "cat"))
	msg, ok := mailer.Last()
	require.True(t, ok)
	assert.Equal(t, "new@example.com", msg.To)
	token := tokenFromMail(t, msg.Body)

	susan, err := svc.Store().UserByUsername(ctx, "susan")
	require.NoError(t, err)
	assert.False(t, svc.ChangeEmail(ctx, susan, token), "token belongs to john")

	assert.True(t, svc.ChangeEmail(ctx, john, token))
	assert.Equal(t, "new@example.com", john.Email)
	assert.Equal(t, models.AvatarHash("new@example.com"), john.AvatarHash)

	_, err = svc.Authenticate(ctx, "new@example.com", "cat")
	assert.NoError(t, err)
}

func TestChangeEmail_AddressTakenMeanwhile(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	john := storetest.CreateUser(t, svc.Store(), "john")

	token, _, err := svc.codec.Issue(tokens.EmailChange{UserID: john.ID, NewEmail: "shared@example.com"}, tokens.DefaultTTL)
	require.NoError(t, err)

	storetest.CreateUser(t, svc.Store(), "shared")
	assert.False(t, svc.ChangeEmail(ctx, john, token))
	assert.Equal(t, "john@example.com", john.Email)
}

func TestChangeEmail_ToOwnCurrentAddress(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	john := storetest.CreateUser(t, svc.Store(), "john")

	token, _, err := svc.codec.Issue(tokens.EmailChange{UserID: john.ID, NewEmail: "john@example.com"}, tokens.DefaultTTL)
	require.NoError(t, err)
	assert.True(t, svc.ChangeEmail(ctx, john, token))
	assert.Equal(t, "john@example.com", john.Email)
}

func TestAuthTokens(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	john := storetest.CreateUser(t, svc.Store(), "john")

	token, ttl, err := svc.IssueAuthToken(john)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ttl)

	u, err := svc.UserFromAuthToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, john.ID, u.ID)

	confirm, err := svc.GenerateConfirmationToken(john)
	require.NoError(t, err)
	_, err = svc.UserFromAuthToken(ctx, confirm)
	assert.Equal(t, common.KindUnauthorized, common.AsAppError(err).Kind)
}

func TestAuthenticate(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	storetest.CreateUser(t, svc.Store(), "john")

	_, err := svc.Authenticate(ctx, "john@example.com", "dog")
	assert.Equal(t, common.KindUnauthorized, common.AsAppError(err).Kind)
	_, err = svc.Authenticate(ctx, "nobody@example.com", "cat")
	assert.Equal(t, common.KindUnauthorized, common.AsAppError(err).Kind)
}

func TestFollowUnfollow(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	john := storetest.CreateUser(t, svc.Store(), "john")
	susan := storetest.CreateUser(t, svc.Store(), "susan")

	require.NoError(t, svc.Follow(ctx, john, susan))
	require.NoError(t, svc.Follow(ctx, john, susan))

	followers, err := svc.Store().Followers(ctx, susan.ID, store.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), followers.Total)

	following, err := svc.IsFollowing(ctx, john, susan)
	require.NoError(t, err)
	assert.True(t, following)
	followedBy, err := svc.IsFollowedBy(ctx, susan, john)
	require.NoError(t, err)
	assert.True(t, followedBy)
	following, err = svc.IsFollowing(ctx, susan, john)
	require.NoError(t, err)
	assert.False(t, following)

	require.NoError(t, svc.Unfollow(ctx, john, susan))
	require.NoError(t, svc.Unfollow(ctx, john, susan))
	following, err = svc.IsFollowing(ctx, john, susan)
	require.NoError(t, err)
	assert.False(t, following)

	err = svc.Follow(ctx, john, john)
	assert.Equal(t, common.KindValidation, common.AsAppError(err).Kind)
}

func TestCanDelegatesToIdentity(t *testing.T) {
	svc, _ := setupTestService(t)
	john := storetest.CreateUser(t, svc.Store(), "john")

	assert.True(t, svc.Can(john, models.PermComment))
	assert.False(t, svc.Can(john, models.PermModerateComments))
	assert.False(t, svc.Can(models.AnonymousUser{}, models.PermFollow))
	assert.False(t, svc.IsAdministrator(models.AnonymousUser{}))
}

func TestProfiles(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	john := storetest.CreateUser(t, svc.Store(), "john")
	storetest.CreateUser(t, svc.Store(), "susan")

	require.NoError(t, svc.UpdateProfile(ctx, john, Profile{Name: "John", Location: "Lisbon", AboutMe: "hi"}))
	loaded, err := svc.Store().UserByID(ctx, john.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", loaded.Location)

	err = svc.UpdateProfile(ctx, john, Profile{Name: strings.Repeat("x", 65)})
	assert.Error(t, err)

	err = svc.AdminUpdateProfile(ctx, loaded, AdminProfile{Email: "susan@example.com", Username: "john", Role: models.RoleUser})
	assert.Equal(t, common.KindValidation, common.AsAppError(err).Kind)

	err = svc.AdminUpdateProfile(ctx, loaded, AdminProfile{Email: "john@example.com", Username: "john", Role: "Nope"})
	assert.Equal(t, common.KindValidation, common.AsAppError(err).Kind)

	require.NoError(t, svc.AdminUpdateProfile(ctx, loaded, AdminProfile{
		Email: "johnny@example.com", Username: "johnny", Confirmed: true, Role: models.RoleModerator,
		Profile: Profile{Name: "Johnny"},
	}))
	reloaded, err := svc.Store().UserByID(ctx, john.ID)
	require.NoError(t, err)
	assert.Equal(t, "johnny", reloaded.Username)
	assert.Equal(t, "johnny@example.com", reloaded.Email)
	assert.Equal(t, models.RoleModerator, reloaded.Role.Name)
	assert.True(t, reloaded.Can(models.PermModerateComments))
}
