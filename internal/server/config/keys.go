package config

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoRSAKey is returned by RSAKeys when no private key path is configured.
var ErrNoRSAKey = errors.New("no RSA private key configured")

// RSAKeys reads the PEM key pair used for RS256 tokens. Without a public key
// path the public half of the private key is used.
func (c *Config) RSAKeys() (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if c.PrivateKeyPath == "" {
		return nil, nil, ErrNoRSAKey
	}

	raw, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read private key: %w", err)
	}
	private, err := jwt.ParseRSAPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse private key: %w", err)
	}

	if c.PublicKeyPath == "" {
		return private, &private.PublicKey, nil
	}

	raw, err = os.ReadFile(c.PublicKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read public key: %w", err)
	}
	public, err := jwt.ParseRSAPublicKeyFromPEM(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse public key: %w", err)
	}
	return private, public, nil
}
