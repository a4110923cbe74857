package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"github.com/dmitrijs2005/rideauth/internal/cryptox"
	"github.com/dmitrijs2005/rideauth/internal/dbx"
	"github.com/dmitrijs2005/rideauth/internal/logging"
	"github.com/dmitrijs2005/rideauth/internal/server/auth"
	"github.com/dmitrijs2005/rideauth/internal/server/events"
	"github.com/dmitrijs2005/rideauth/internal/server/models"
	"github.com/dmitrijs2005/rideauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/rideauth/internal/server/repositories/users"
	"github.com/dmitrijs2005/rideauth/internal/server/sms"
	"github.com/go-playground/validator/v10"
)

const smsTemplate = "Your verification code is %s"

// outcomes are returned to callers untouched; any other error is logged
// and replaced with common.ErrorInternal.
var outcomes = []error{
	common.ErrInvalidRequest,
	common.ErrInvalidPhone,
	common.ErrDeliveryFailed,
	common.ErrNoVerificationInProgress,
	common.ErrWrongCode,
	common.ErrPhoneTaken,
	common.ErrUsernameTaken,
	common.ErrUserNotFound,
	common.ErrWrongCredentials,
	common.ErrMalformedTokenPair,
	common.ErrRefreshRevoked,
	common.ErrUserGone,
}

type RegisterRequest struct {
	Phone             string `validate:"required"`
	Username          string `validate:"required,max=64"`
	Password          string `validate:"required,max=128"`
	VerificationToken string `validate:"required"`
	VerificationCode  string `validate:"required"`
}

type LoginRequest struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

type ChangePasswordRequest struct {
	Phone             string `validate:"required"`
	Password          string `validate:"required,max=128"`
	VerificationToken string `validate:"required"`
	VerificationCode  string `validate:"required"`
}

type RefreshRequest struct {
	AccessToken  string `validate:"required"`
	RefreshToken string `validate:"required"`
}

type ChangePhoneRequest struct {
	UserID            string `validate:"required"`
	Phone             string `validate:"required"`
	VerificationToken string `validate:"required"`
	VerificationCode  string `validate:"required"`
}

// AuthResult is what every successful sign-in style operation returns.
type AuthResult struct {
	User   *models.User
	Tokens *auth.TokenPair
}

// AuthService sequences code issuance, registration, login, password and
// phone changes, and token refresh. Each rejection is exactly one outcome
// from internal/common.
type AuthService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	verifications *VerificationStore
	hasher        *cryptox.PasswordHasher
	tokens        *auth.TokenService
	sms           sms.Sender
	events        events.Publisher
	logger        logging.Logger
	validate      *validator.Validate
}

type AuthOption func(*AuthService)

func WithLogger(l logging.Logger) AuthOption {
	return func(s *AuthService) { s.logger = l }
}

func WithPublisher(p events.Publisher) AuthOption {
	return func(s *AuthService) { s.events = p }
}

func NewAuthService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	verifier *auth.Verifier,
	hasher *cryptox.PasswordHasher,
	tokens *auth.TokenService,
	sender sms.Sender,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		db:            db,
		repomanager:   m,
		verifications: NewVerificationStore(m, verifier),
		hasher:        hasher,
		tokens:        tokens,
		sms:           sender,
		events:        events.NopPublisher{},
		logger:        logging.Nop{},
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestVerificationCode sends the phone a code and returns the token the
// code is bound to. A still-live record is re-sent rather than re-issued.
func (s *AuthService) RequestVerificationCode(ctx context.Context, phone string) (string, error) {
	normalized, ok := normalizePhone(phone)
	if !ok {
		return "", common.ErrInvalidPhone
	}

	v, err := s.verifications.Get(ctx, s.db, normalized)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return "", s.fail(ctx, "request code", fmt.Errorf("error loading verification: %w", err))
	}
	if v == nil || !s.verifications.IsLive(v) {
		v, err = s.verifications.Issue(ctx, s.db, normalized)
		if err != nil {
			return "", s.fail(ctx, "request code", fmt.Errorf("error issuing verification: %w", err))
		}
	}

	if err := s.sms.Send(ctx, normalized, fmt.Sprintf(smsTemplate, v.Code)); err != nil {
		s.logger.Warn(ctx, "sms delivery failed", "phone", normalized, "error", err)
		return "", common.ErrDeliveryFailed
	}

	s.publish(ctx, events.Event{Type: events.VerificationRequested, Phone: normalized})
	s.logger.Info(ctx, "verification code sent", "phone", normalized)
	return v.Token, nil
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	phone := phoneKey(req.Phone)

	if err := s.checkCode(ctx, phone, req.VerificationToken, req.VerificationCode); err != nil {
		return nil, s.fail(ctx, "register", err)
	}

	var result *AuthResult
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		if _, err := repo.FindByPhone(ctx, phone); err == nil {
			return common.ErrPhoneTaken
		} else if !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("error searching phone: %w", err)
		}

		exists, err := repo.Exists(ctx, req.Username)
		if err != nil {
			return fmt.Errorf("error searching username: %w", err)
		}
		if exists {
			return common.ErrUsernameTaken
		}

		salt, hash, err := s.hasher.ChangePassword(req.Password)
		if err != nil {
			return fmt.Errorf("error hashing password: %w", err)
		}

		user, err := repo.Create(ctx, &models.User{
			Username:     req.Username,
			Phone:        phone,
			Salt:         salt,
			PasswordHash: hash,
		})
		if err != nil {
			return mapConflict(fmt.Errorf("error creating user: %w", err))
		}

		if err := s.verifications.Delete(ctx, tx, phone); err != nil {
			return err
		}
		// last: a redis-backed session store is outside the transaction
		result, err = s.startSession(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "register", err)
	}

	s.publish(ctx, events.Event{Type: events.UserRegistered, UserID: result.User.ID, Phone: phone})
	s.logger.Info(ctx, "user registered", "user_id", result.User.ID)
	return result, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, s.fail(ctx, "login", fmt.Errorf("error searching user: %w", err))
	}

	if !s.hasher.CheckPassword(req.Password, user.Salt, user.PasswordHash) {
		s.logger.Warn(ctx, "wrong password", "user_id", user.ID)
		return nil, common.ErrWrongCredentials
	}

	result, err := s.startSession(ctx, s.db, user)
	if err != nil {
		return nil, s.fail(ctx, "login", err)
	}

	s.publish(ctx, events.Event{Type: events.UserLoggedIn, UserID: user.ID})
	return result, nil
}

// ChangePassword re-verifies the phone instead of requiring a session, so
// it doubles as password reset. The previous refresh token is revoked.
func (s *AuthService) ChangePassword(ctx context.Context, req ChangePasswordRequest) (*AuthResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	phone := phoneKey(req.Phone)

	if err := s.checkCode(ctx, phone, req.VerificationToken, req.VerificationCode); err != nil {
		return nil, s.fail(ctx, "change password", err)
	}

	var result *AuthResult
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		user, err := repo.FindByPhone(ctx, phone)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrUserNotFound
			}
			return fmt.Errorf("error searching user: %w", err)
		}

		salt, hash, err := s.hasher.ChangePassword(req.Password)
		if err != nil {
			return fmt.Errorf("error hashing password: %w", err)
		}

		user, err = repo.UpdateCredentials(ctx, user.ID, salt, hash)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrUserNotFound
			}
			return fmt.Errorf("error updating credentials: %w", err)
		}

		if err := s.verifications.Delete(ctx, tx, phone); err != nil {
			return err
		}
		// last: a redis-backed session store is outside the transaction
		result, err = s.startSession(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "change password", err)
	}

	s.publish(ctx, events.Event{Type: events.UserPasswordChanged, UserID: result.User.ID})
	s.logger.Info(ctx, "password changed", "user_id", result.User.ID)
	return result, nil
}

// Refresh trades a bound token pair for a new one. The refresh token must
// be the one currently stored for the user; a superseded token is revoked
// even while its signature and expiry are fine.
func (s *AuthService) Refresh(ctx context.Context, req RefreshRequest) (*AuthResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	claims, err := s.tokens.VerifyRefresh(req.AccessToken, req.RefreshToken)
	if err != nil {
		return nil, common.ErrMalformedTokenPair
	}

	stored, err := s.repomanager.Sessions(s.db).Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrRefreshRevoked
		}
		return nil, s.fail(ctx, "refresh", fmt.Errorf("error loading session: %w", err))
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(req.RefreshToken)) != 1 {
		s.logger.Warn(ctx, "superseded refresh token presented", "user_id", claims.UserID)
		return nil, common.ErrRefreshRevoked
	}

	user, err := s.repomanager.Users(s.db).FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserGone
		}
		return nil, s.fail(ctx, "refresh", fmt.Errorf("error searching user: %w", err))
	}

	result, err := s.startSession(ctx, s.db, user)
	if err != nil {
		return nil, s.fail(ctx, "refresh", err)
	}

	s.publish(ctx, events.Event{Type: events.SessionRefreshed, UserID: user.ID})
	return result, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserGone
		}
		return nil, s.fail(ctx, "current user", fmt.Errorf("error searching user: %w", err))
	}
	return user, nil
}

// ChangePhone moves an authenticated user to a newly verified phone.
func (s *AuthService) ChangePhone(ctx context.Context, req ChangePhoneRequest) (*models.User, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	phone, ok := normalizePhone(req.Phone)
	if !ok {
		return nil, common.ErrInvalidPhone
	}

	if err := s.checkCode(ctx, phone, req.VerificationToken, req.VerificationCode); err != nil {
		return nil, s.fail(ctx, "change phone", err)
	}

	var user *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		current, err := repo.FindByID(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrUserGone
			}
			return fmt.Errorf("error searching user: %w", err)
		}
		if current.Phone == phone {
			return common.ErrPhoneTaken
		}

		if _, err := repo.FindByPhone(ctx, phone); err == nil {
			return common.ErrPhoneTaken
		} else if !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("error searching phone: %w", err)
		}

		user, err = repo.UpdatePhone(ctx, req.UserID, phone)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrUserGone
			}
			return mapConflict(fmt.Errorf("error updating phone: %w", err))
		}
		return s.verifications.Delete(ctx, tx, phone)
	})
	if err != nil {
		return nil, s.fail(ctx, "change phone", err)
	}

	s.publish(ctx, events.Event{Type: events.UserPhoneChanged, UserID: user.ID, Phone: phone})
	s.logger.Info(ctx, "phone changed", "user_id", user.ID)
	return user, nil
}

// Logout drops the user's session, revoking the outstanding refresh token.
// Access tokens stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.repomanager.Sessions(s.db).Delete(ctx, userID); err != nil {
		return s.fail(ctx, "logout", fmt.Errorf("error deleting session: %w", err))
	}
	s.publish(ctx, events.Event{Type: events.SessionLoggedOut, UserID: userID})
	return nil
}

// checkCode loads the phone's record and verifies the submitted code
// against it.
func (s *AuthService) checkCode(ctx context.Context, phone, token, code string) error {
	v, err := s.verifications.Get(ctx, s.db, phone)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrNoVerificationInProgress
		}
		return fmt.Errorf("error loading verification: %w", err)
	}
	if !s.verifications.Check(v, token, code) {
		return common.ErrWrongCode
	}
	return nil
}

// startSession mints a pair and makes its refresh token the only valid one.
func (s *AuthService) startSession(ctx context.Context, db dbx.DBTX, user *models.User) (*AuthResult, error) {
	pair, err := s.tokens.MintPair(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("error generating token pair: %w", err)
	}
	if err := s.repomanager.Sessions(db).Set(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, fmt.Errorf("error storing session: %w", err)
	}
	return &AuthResult{User: user, Tokens: pair}, nil
}

func (s *AuthService) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}
	return nil
}

func (s *AuthService) fail(ctx context.Context, op string, err error) error {
	for _, o := range outcomes {
		if errors.Is(err, o) {
			return o
		}
	}
	s.logger.Error(ctx, op+" failed", "error", err)
	return common.ErrorInternal
}

func (s *AuthService) publish(ctx context.Context, e events.Event) {
	e.OccurredAt = time.Now().UTC()
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn(ctx, "event not published", "type", e.Type, "error", err)
	}
}

// mapConflict turns a lost unique-constraint race into the matching outcome.
func mapConflict(err error) error {
	switch {
	case errors.Is(err, users.ErrPhoneConflict):
		return common.ErrPhoneTaken
	case errors.Is(err, users.ErrUsernameConflict):
		return common.ErrUsernameTaken
	}
	return err
}
