// Package sms delivers verification codes through an HTTP SMS gateway.
package sms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/rideauth/internal/netx"
	"github.com/sethvargo/go-retry"
)

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

type message struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// GatewayClient posts {"phone","message"} to {base}/send. Transport errors
// and 5xx/429 answers are retried with exponential backoff; other non-200
// answers fail at once.
type GatewayClient struct {
	url        string
	http       *http.Client
	maxRetries uint64
	backoff    time.Duration
}

func NewGatewayClient(baseURL string, timeout time.Duration, maxRetries int) *GatewayClient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &GatewayClient{
		url:        strings.TrimRight(baseURL, "/") + "/send",
		http:       &http.Client{Timeout: timeout},
		maxRetries: uint64(maxRetries),
		backoff:    100 * time.Millisecond,
	}
}

func (c *GatewayClient) Send(ctx context.Context, phone, text string) error {
	b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := netx.PostJSON(ctx, c.http, c.url, message{Phone: phone, Message: text})
		if err == nil {
			return nil
		}
		var se *netx.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	return nil
}
