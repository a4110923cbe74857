package services

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/dmitrijs2005/rideauth/internal/dbx"
	"github.com/dmitrijs2005/rideauth/internal/server/auth"
	"github.com/dmitrijs2005/rideauth/internal/server/models"
	"github.com/dmitrijs2005/rideauth/internal/server/repositories/repomanager"
)

// VerificationStore issues and checks the one-time-code record of a phone.
// Issuing replaces any earlier record, so only the latest code can pass.
type VerificationStore struct {
	repomanager repomanager.RepositoryManager
	verifier    *auth.Verifier
}

func NewVerificationStore(m repomanager.RepositoryManager, v *auth.Verifier) *VerificationStore {
	return &VerificationStore{repomanager: m, verifier: v}
}

// Issue stores a record with a fresh secret and token and the code of the
// current time step.
func (s *VerificationStore) Issue(ctx context.Context, db dbx.DBTX, phone string) (*models.Verification, error) {
	secret, err := auth.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("error generating secret: %w", err)
	}
	token, err := auth.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}
	code, err := s.verifier.Generate(auth.Material(secret, token))
	if err != nil {
		return nil, fmt.Errorf("error generating code: %w", err)
	}

	v := &models.Verification{
		Phone:     phone,
		Secret:    secret,
		Token:     token,
		Code:      code,
		UpdatedAt: s.verifier.Now().UTC(),
	}
	if err := s.Update(ctx, db, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *VerificationStore) Get(ctx context.Context, db dbx.DBTX, phone string) (*models.Verification, error) {
	return s.repomanager.Verifications(db).Get(ctx, phone)
}

func (s *VerificationStore) Update(ctx context.Context, db dbx.DBTX, v *models.Verification) error {
	return s.repomanager.Verifications(db).Update(ctx, v)
}

func (s *VerificationStore) Delete(ctx context.Context, db dbx.DBTX, phone string) error {
	return s.repomanager.Verifications(db).Delete(ctx, phone)
}

// Check verifies code against the stored secret joined with the token the
// caller submitted. A token other than the issued one never validates.
func (s *VerificationStore) Check(v *models.Verification, token, code string) bool {
	return s.verifier.Verify(auth.Material(v.Secret, token), code)
}

// IsLive reports whether the stored code is still the code of the current
// time step, in which case it can be sent again instead of re-issued.
func (s *VerificationStore) IsLive(v *models.Verification) bool {
	code, err := s.verifier.Generate(auth.Material(v.Secret, v.Token))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(code), []byte(v.Code)) == 1
}
