package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"github.com/dmitrijs2005/rideauth/internal/server/events"
	usersrepo "github.com/dmitrijs2005/rideauth/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	phoneA = "+15551230001"
	phoneB = "+15551230002"
)

// Scenario A: request code, register with it, get a usable pair.
func TestRegister_Success(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.register(t, "+15551230000", "alice", "s3cret-pw")

	require.NotNil(t, res.User)
	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, "+15551230000", res.User.Phone)
	assert.Equal(t, 1, h.repos.users.count())

	claims, err := h.tokens.VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
	_, err = h.tokens.VerifyRefresh(res.Tokens.AccessToken, res.Tokens.RefreshToken)
	require.NoError(t, err)

	stored, err := h.repos.sessions.Get(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Tokens.RefreshToken, stored)

	_, err = h.repos.verifications.Get(ctx, "+15551230000")
	assert.ErrorIs(t, err, common.ErrorNotFound, "verification is consumed")

	assert.Equal(t, []string{events.VerificationRequested, events.UserRegistered}, h.published.types)
}

// Scenario B: a wrong code creates nothing.
func TestRegister_WrongCode(t *testing.T) {
	h := newHarness(t)

	token, code := h.verify(t, "+15551230000")
	_, err := h.svc.Register(context.Background(), RegisterRequest{
		Phone: "+15551230000", Username: "alice", Password: "s3cret-pw",
		VerificationToken: token, VerificationCode: wrongCode(code),
	})

	assert.ErrorIs(t, err, common.ErrWrongCode)
	assert.Equal(t, 0, h.repos.users.count())
}

func TestRegister_WrongToken(t *testing.T) {
	h := newHarness(t)

	_, code := h.verify(t, "+15551230000")
	_, err := h.svc.Register(context.Background(), RegisterRequest{
		Phone: "+15551230000", Username: "alice", Password: "s3cret-pw",
		VerificationToken: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", VerificationCode: code,
	})

	assert.ErrorIs(t, err, common.ErrWrongCode)
}

func TestRegister_ExpiredCode(t *testing.T) {
	h := newHarness(t)

	token, code := h.verify(t, "+15551230000")
	h.clock.Advance(15 * time.Minute)

	_, err := h.svc.Register(context.Background(), RegisterRequest{
		Phone: "+15551230000", Username: "alice", Password: "s3cret-pw",
		VerificationToken: token, VerificationCode: code,
	})
	assert.ErrorIs(t, err, common.ErrWrongCode)
}

func TestRegister_NoVerification(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Register(context.Background(), RegisterRequest{
		Phone: "+15551230000", Username: "alice", Password: "s3cret-pw",
		VerificationToken: "T", VerificationCode: "123456",
	})
	assert.ErrorIs(t, err, common.ErrNoVerificationInProgress)
}

// Scenario D: a taken username is rejected even with a verified new phone.
func TestRegister_UsernameTaken(t *testing.T) {
	h := newHarness(t)
	h.register(t, phoneA, "alice", "s3cret-pw")

	token, code := h.verify(t, phoneB)
	_, err := h.svc.Register(context.Background(), RegisterRequest{
		Phone: phoneB, Username: "alice", Password: "other-pw",
		VerificationToken: token, VerificationCode: code,
	})

	assert.ErrorIs(t, err, common.ErrUsernameTaken)
	assert.Equal(t, 1, h.repos.users.count())
}

func TestRegister_PhoneTaken(t *testing.T) {
	h := newHarness(t)
	h.register(t, phoneA, "alice", "s3cret-pw")

	token, code := h.verify(t, phoneA)
	_, err := h.svc.Register(context.Background(), RegisterRequest{
		Phone: phoneA, Username: "bob", Password: "other-pw",
		VerificationToken: token, VerificationCode: code,
	})

	assert.ErrorIs(t, err, common.ErrPhoneTaken)
}

func TestRegister_InvalidRequest(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Register(context.Background(), RegisterRequest{Phone: phoneA, Password: "pw"})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestRegister_StoreFailureIsInternal(t *testing.T) {
	h := newHarness(t)
	token, code := h.verify(t, phoneA)
	h.repos.sessions.err = errors.New("session store down")

	_, err := h.svc.Register(context.Background(), RegisterRequest{
		Phone: phoneA, Username: "alice", Password: "s3cret-pw",
		VerificationToken: token, VerificationCode: code,
	})

	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestMapConflict(t *testing.T) {
	assert.ErrorIs(t, mapConflict(fmt.Errorf("x: %w", usersrepo.ErrPhoneConflict)), common.ErrPhoneTaken)
	assert.ErrorIs(t, mapConflict(fmt.Errorf("x: %w", usersrepo.ErrUsernameConflict)), common.ErrUsernameTaken)

	other := errors.New("other")
	assert.Equal(t, other, mapConflict(other))
}

func TestRequestVerificationCode(t *testing.T) {
	t.Run("invalid phone", func(t *testing.T) {
		h := newHarness(t)
		for _, phone := range []string{"", "5551230000", "+1555", "not a phone"} {
			_, err := h.svc.RequestVerificationCode(context.Background(), phone)
			assert.ErrorIs(t, err, common.ErrInvalidPhone, phone)
		}
		assert.Empty(t, h.sms.sent)
	})

	t.Run("normalises and sends code", func(t *testing.T) {
		h := newHarness(t)

		token, err := h.svc.RequestVerificationCode(context.Background(), "+1 (555) 123-0000")
		require.NoError(t, err)
		require.Len(t, h.sms.sent, 1)
		assert.Contains(t, h.sms.sent[0], "+15551230000|Your verification code is ")

		v, err := h.repos.verifications.Get(context.Background(), "+15551230000")
		require.NoError(t, err)
		assert.Equal(t, v.Token, token)
	})

	t.Run("live record is re-sent", func(t *testing.T) {
		h := newHarness(t)

		t1, c1 := h.verify(t, phoneA)
		t2, c2 := h.verify(t, phoneA)
		assert.Equal(t, t1, t2)
		assert.Equal(t, c1, c2)

		h.clock.Advance(10 * time.Minute)
		t3, _ := h.verify(t, phoneA)
		assert.NotEqual(t, t1, t3)
	})

	t.Run("delivery failure", func(t *testing.T) {
		h := newHarness(t)
		h.sms.err = errors.New("gateway down")

		_, err := h.svc.RequestVerificationCode(context.Background(), phoneA)
		assert.ErrorIs(t, err, common.ErrDeliveryFailed)

		_, err = h.repos.verifications.Get(context.Background(), phoneA)
		assert.NoError(t, err, "record stays issued for a retry")
	})

	t.Run("store failure", func(t *testing.T) {
		h := newHarness(t)
		h.repos.verifications.err = errors.New("db down")

		_, err := h.svc.RequestVerificationCode(context.Background(), phoneA)
		assert.ErrorIs(t, err, common.ErrorInternal)
	})

	t.Run("publisher failure is ignored", func(t *testing.T) {
		h := newHarness(t)
		h.published.err = errors.New("broker down")

		_, err := h.svc.RequestVerificationCode(context.Background(), phoneA)
		assert.NoError(t, err)
	})
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, phoneA, "alice", "s3cret-pw")
	ctx := context.Background()

	_, err := h.svc.Login(ctx, LoginRequest{Username: "bob", Password: "s3cret-pw"})
	assert.ErrorIs(t, err, common.ErrUserNotFound)

	_, err = h.svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, common.ErrWrongCredentials)

	_, err = h.svc.Login(ctx, LoginRequest{Username: "alice"})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	res, err := h.svc.Login(ctx, LoginRequest{Username: "alice", Password: "s3cret-pw"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)
	assert.NotEqual(t, reg.Tokens.RefreshToken, res.Tokens.RefreshToken)

	stored, err := h.repos.sessions.Get(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Tokens.RefreshToken, stored)

	_, err = h.svc.Refresh(ctx, RefreshRequest{AccessToken: reg.Tokens.AccessToken, RefreshToken: reg.Tokens.RefreshToken})
	assert.ErrorIs(t, err, common.ErrRefreshRevoked, "login supersedes the registration session")
}

func TestLogin_StalledEventStreamDoesNotHoldRequest(t *testing.T) {
	h := newHarness(t)
	h.register(t, phoneA, "alice", "s3cret-pw")
	h.svc.events = events.NewKafkaPublisherWithWriter(stalledWriter{})

	start := time.Now()
	_, err := h.svc.Login(context.Background(), LoginRequest{Username: "alice", Password: "s3cret-pw"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

// Scenario C: a refresh token can only be used once.
func TestRefresh_Replay(t *testing.T) {
	h := newHarness(t)
	h.register(t, phoneA, "alice", "s3cret-pw")
	ctx := context.Background()

	login, err := h.svc.Login(ctx, LoginRequest{Username: "alice", Password: "s3cret-pw"})
	require.NoError(t, err)

	orig := RefreshRequest{AccessToken: login.Tokens.AccessToken, RefreshToken: login.Tokens.RefreshToken}

	next, err := h.svc.Refresh(ctx, orig)
	require.NoError(t, err)
	assert.NotEqual(t, login.Tokens.RefreshToken, next.Tokens.RefreshToken)

	_, err = h.svc.Refresh(ctx, orig)
	assert.ErrorIs(t, err, common.ErrRefreshRevoked)

	_, err = h.svc.Refresh(ctx, RefreshRequest{AccessToken: next.Tokens.AccessToken, RefreshToken: next.Tokens.RefreshToken})
	assert.NoError(t, err)
}

// A refresh token presented next to another pair's access token is malformed.
func TestRefresh_UnboundPair(t *testing.T) {
	h := newHarness(t)
	h.register(t, phoneA, "alice", "s3cret-pw")
	ctx := context.Background()

	p1, err := h.svc.Login(ctx, LoginRequest{Username: "alice", Password: "s3cret-pw"})
	require.NoError(t, err)
	p2, err := h.svc.Login(ctx, LoginRequest{Username: "alice", Password: "s3cret-pw"})
	require.NoError(t, err)

	_, err = h.svc.Refresh(ctx, RefreshRequest{AccessToken: p2.Tokens.AccessToken, RefreshToken: p1.Tokens.RefreshToken})
	assert.ErrorIs(t, err, common.ErrMalformedTokenPair)

	_, err = h.svc.Refresh(ctx, RefreshRequest{AccessToken: p2.Tokens.AccessToken, RefreshToken: "garbage"})
	assert.ErrorIs(t, err, common.ErrMalformedTokenPair)

	_, err = h.svc.Refresh(ctx, RefreshRequest{AccessToken: p2.Tokens.AccessToken})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestRefresh_ExpiredAccessTokenIsAccepted(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, phoneA, "alice", "s3cret-pw")

	h.clock.Advance(30 * time.Minute)
	_, err := h.tokens.VerifyAccess(reg.Tokens.AccessToken)
	require.ErrorIs(t, err, common.ErrTokenExpired)

	_, err = h.svc.Refresh(context.Background(), RefreshRequest{AccessToken: reg.Tokens.AccessToken, RefreshToken: reg.Tokens.RefreshToken})
	assert.NoError(t, err)
}

func TestRefresh_UserGone(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, phoneA, "alice", "s3cret-pw")
	delete(h.repos.users.byID, reg.User.ID)

	_, err := h.svc.Refresh(context.Background(), RefreshRequest{AccessToken: reg.Tokens.AccessToken, RefreshToken: reg.Tokens.RefreshToken})
	assert.ErrorIs(t, err, common.ErrUserGone)
}

func TestLogout_RevokesRefresh(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, phoneA, "alice", "s3cret-pw")
	ctx := context.Background()

	require.NoError(t, h.svc.Logout(ctx, reg.User.ID))
	require.NoError(t, h.svc.Logout(ctx, reg.User.ID))

	_, err := h.svc.Refresh(ctx, RefreshRequest{AccessToken: reg.Tokens.AccessToken, RefreshToken: reg.Tokens.RefreshToken})
	assert.ErrorIs(t, err, common.ErrRefreshRevoked)

	h.repos.sessions.err = errors.New("down")
	assert.ErrorIs(t, h.svc.Logout(ctx, reg.User.ID), common.ErrorInternal)
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, phoneA, "alice", "old-pw-123")
	ctx := context.Background()

	token, code := h.verify(t, phoneA)
	res, err := h.svc.ChangePassword(ctx, ChangePasswordRequest{
		Phone: phoneA, Password: "new-pw-456", VerificationToken: token, VerificationCode: code,
	})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)

	_, err = h.svc.Login(ctx, LoginRequest{Username: "alice", Password: "old-pw-123"})
	assert.ErrorIs(t, err, common.ErrWrongCredentials)
	_, err = h.svc.Login(ctx, LoginRequest{Username: "alice", Password: "new-pw-456"})
	assert.NoError(t, err)

	_, err = h.svc.Refresh(ctx, RefreshRequest{AccessToken: reg.Tokens.AccessToken, RefreshToken: reg.Tokens.RefreshToken})
	assert.ErrorIs(t, err, common.ErrRefreshRevoked)

	_, err = h.svc.ChangePassword(ctx, ChangePasswordRequest{
		Phone: phoneA, Password: "again", VerificationToken: token, VerificationCode: code,
	})
	assert.ErrorIs(t, err, common.ErrNoVerificationInProgress, "the code was consumed")
}

func TestChangePassword_FailedStepKeepsSession(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, phoneA, "alice", "old-pw-123")
	ctx := context.Background()

	token, code := h.verify(t, phoneA)
	h.repos.verifications.deleteErr = errors.New("verification store down")
	_, err := h.svc.ChangePassword(ctx, ChangePasswordRequest{
		Phone: phoneA, Password: "new-pw-456", VerificationToken: token, VerificationCode: code,
	})
	require.ErrorIs(t, err, common.ErrorInternal)

	stored, err := h.repos.sessions.Get(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.Tokens.RefreshToken, stored, "the session is written only after every other step")
}

func TestChangePassword_Rejections(t *testing.T) {
	h := newHarness(t)
	h.register(t, phoneA, "alice", "old-pw-123")
	ctx := context.Background()

	token, code := h.verify(t, phoneA)
	_, err := h.svc.ChangePassword(ctx, ChangePasswordRequest{
		Phone: phoneA, Password: "new-pw", VerificationToken: token, VerificationCode: wrongCode(code),
	})
	assert.ErrorIs(t, err, common.ErrWrongCode)

	token, code = h.verify(t, phoneB)
	_, err = h.svc.ChangePassword(ctx, ChangePasswordRequest{
		Phone: phoneB, Password: "new-pw", VerificationToken: token, VerificationCode: code,
	})
	assert.ErrorIs(t, err, common.ErrUserNotFound)

	_, err = h.svc.ChangePassword(ctx, ChangePasswordRequest{Phone: phoneA})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestCurrentUser(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, phoneA, "alice", "s3cret-pw")

	u, err := h.svc.CurrentUser(context.Background(), reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = h.svc.CurrentUser(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrUserGone)
}

func TestChangePhone(t *testing.T) {
	h := newHarness(t)
	alice := h.register(t, phoneA, "alice", "s3cret-pw")
	ctx := context.Background()

	token, code := h.verify(t, "+1 555 123 0009")
	u, err := h.svc.ChangePhone(ctx, ChangePhoneRequest{
		UserID: alice.User.ID, Phone: "+1 555 123 0009", VerificationToken: token, VerificationCode: code,
	})
	require.NoError(t, err)
	assert.Equal(t, "+15551230009", u.Phone)

	_, err = h.repos.verifications.Get(ctx, "+15551230009")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.Contains(t, h.published.types, events.UserPhoneChanged)
}

func TestChangePhone_Rejections(t *testing.T) {
	h := newHarness(t)
	alice := h.register(t, phoneA, "alice", "s3cret-pw")
	h.register(t, phoneB, "bob", "s3cret-pw")
	ctx := context.Background()

	_, err := h.svc.ChangePhone(ctx, ChangePhoneRequest{
		UserID: alice.User.ID, Phone: "+1555", VerificationToken: "T", VerificationCode: "1",
	})
	assert.ErrorIs(t, err, common.ErrInvalidPhone)

	_, err = h.svc.ChangePhone(ctx, ChangePhoneRequest{
		UserID: alice.User.ID, Phone: "+15551230077", VerificationToken: "T", VerificationCode: "1",
	})
	assert.ErrorIs(t, err, common.ErrNoVerificationInProgress)

	token, code := h.verify(t, phoneA)
	_, err = h.svc.ChangePhone(ctx, ChangePhoneRequest{
		UserID: alice.User.ID, Phone: phoneA, VerificationToken: token, VerificationCode: code,
	})
	assert.ErrorIs(t, err, common.ErrPhoneTaken, "same phone")

	token, code = h.verify(t, phoneB)
	_, err = h.svc.ChangePhone(ctx, ChangePhoneRequest{
		UserID: alice.User.ID, Phone: phoneB, VerificationToken: token, VerificationCode: wrongCode(code),
	})
	assert.ErrorIs(t, err, common.ErrWrongCode)

	_, err = h.svc.ChangePhone(ctx, ChangePhoneRequest{
		UserID: alice.User.ID, Phone: phoneB, VerificationToken: token, VerificationCode: code,
	})
	assert.ErrorIs(t, err, common.ErrPhoneTaken, "bob's phone")

	token, code = h.verify(t, "+15551230055")
	_, err = h.svc.ChangePhone(ctx, ChangePhoneRequest{
		UserID: "ghost", Phone: "+15551230055", VerificationToken: token, VerificationCode: code,
	})
	assert.ErrorIs(t, err, common.ErrUserGone)
}
