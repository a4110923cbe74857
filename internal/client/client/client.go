// Package client is the gRPC client of rideauth.AuthService used by the
// CLI. It keeps the current token pair, attaches the access token to every
// call and, when the server reports "token expired", refreshes the pair
// once and repeats the call.
package client

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"github.com/dmitrijs2005/rideauth/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Tokens is the pair the client holds. It is what the CLI prints and
// reads back between invocations.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type GRPCClient struct {
	conn   *grpc.ClientConn
	client *rpc.AuthServiceClient

	mu     sync.Mutex
	tokens Tokens
}

// NewGRPCClient connects to endpoint over plaintext. Extra dial options
// come after the defaults.
func NewGRPCClient(endpoint string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpoint, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = rpc.NewAuthServiceClient(conn)
	return c, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) Tokens() Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

func (c *GRPCClient) SetTokens(t Tokens) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = t
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

func (c *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	tokens := c.Tokens()
	if tokens.AccessToken == "" || method == rpc.FullMethod(rpc.MethodRefreshToken) {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	err := invoker(withAccessToken(ctx, tokens.AccessToken), method, req, reply, cc, opts...)
	if err == nil || !isTokenExpired(err) || tokens.RefreshToken == "" {
		return err
	}

	if _, rerr := c.Refresh(ctx); rerr != nil {
		return err
	}

	return invoker(withAccessToken(ctx, c.Tokens().AccessToken), method, req, reply, cc, opts...)
}

func (c *GRPCClient) keep(resp *rpc.AuthResponse) *rpc.AuthResponse {
	c.SetTokens(Tokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken})
	return resp
}

// RequestCode asks the server to text a code to phone and returns the
// verification token to submit with it.
func (c *GRPCClient) RequestCode(ctx context.Context, phone string) (string, error) {
	resp, err := c.client.RequestVerificationCode(ctx, &rpc.RequestVerificationCodeRequest{Phone: phone})
	if err != nil {
		return "", mapError(err)
	}
	return resp.VerificationToken, nil
}

func (c *GRPCClient) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.AuthResponse, error) {
	resp, err := c.client.Register(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}
	return c.keep(resp), nil
}

func (c *GRPCClient) Login(ctx context.Context, username, password string) (*rpc.AuthResponse, error) {
	resp, err := c.client.Login(ctx, &rpc.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, mapError(err)
	}
	return c.keep(resp), nil
}

func (c *GRPCClient) ChangePassword(ctx context.Context, req *rpc.ChangePasswordRequest) (*rpc.AuthResponse, error) {
	resp, err := c.client.ChangePassword(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}
	return c.keep(resp), nil
}

// Refresh trades the held pair for a new one.
func (c *GRPCClient) Refresh(ctx context.Context) (*rpc.AuthResponse, error) {
	tokens := c.Tokens()
	if tokens.RefreshToken == "" {
		return nil, ErrNotLoggedIn
	}
	resp, err := c.client.RefreshToken(ctx, &rpc.RefreshTokenRequest{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return c.keep(resp), nil
}

func (c *GRPCClient) WhoAmI(ctx context.Context) (*rpc.User, error) {
	if c.Tokens().AccessToken == "" {
		return nil, ErrNotLoggedIn
	}
	resp, err := c.client.CurrentUser(ctx, &rpc.CurrentUserRequest{})
	if err != nil {
		return nil, mapError(err)
	}
	return &resp.User, nil
}

func (c *GRPCClient) ChangePhone(ctx context.Context, req *rpc.ChangePhoneRequest) (*rpc.User, error) {
	if c.Tokens().AccessToken == "" {
		return nil, ErrNotLoggedIn
	}
	resp, err := c.client.ChangePhone(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}
	return &resp.User, nil
}

func (c *GRPCClient) Logout(ctx context.Context) error {
	if c.Tokens().AccessToken == "" {
		return ErrNotLoggedIn
	}
	if _, err := c.client.Logout(ctx, &rpc.LogoutRequest{}); err != nil {
		return mapError(err)
	}
	c.SetTokens(Tokens{})
	return nil
}
