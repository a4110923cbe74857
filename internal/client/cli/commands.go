package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/rideauth/internal/client/client"
	"github.com/dmitrijs2005/rideauth/internal/common"
	"github.com/dmitrijs2005/rideauth/internal/rpc"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUsage, fs.Name(), err)
	}
	return nil
}

// prompt returns v, or asks for it when the flag was left empty.
func (a *App) prompt(v, text string) (string, error) {
	if v != "" {
		return v, nil
	}
	return GetSimpleText(a.reader, text, a.out)
}

func (a *App) password(text string) (string, error) {
	pw, err := GetPassword(a.out, text)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

// sessionFlags registers -access and -refresh and loads them into the
// client after parsing.
type sessionFlags struct {
	access  string
	refresh string
}

func (s *sessionFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.access, "access", "", "access token")
	fs.StringVar(&s.refresh, "refresh", "", "refresh token")
}

func (s *sessionFlags) load(c AuthClient) {
	c.SetTokens(client.Tokens{AccessToken: s.access, RefreshToken: s.refresh})
}

// printSession prints user together with the pair the client holds now,
// which differs from the flags when the call refreshed it.
func (a *App) printSession(user *rpc.User) error {
	t := a.client.Tokens()
	return printJSON(a.out, rpc.AuthResponse{User: *user, AccessToken: t.AccessToken, RefreshToken: t.RefreshToken})
}

type verificationFlags struct {
	phone string
	token string
	code  string
}

func (v *verificationFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&v.phone, "phone", "", "phone number in international format")
	fs.StringVar(&v.token, "token", "", "verification token from request-code")
	fs.StringVar(&v.code, "code", "", "code received by sms")
}

func (v *verificationFlags) complete(a *App) error {
	var err error
	if v.phone, err = a.prompt(v.phone, "Enter phone"); err != nil {
		return err
	}
	if v.token, err = a.prompt(v.token, "Enter verification token"); err != nil {
		return err
	}
	v.code, err = a.prompt(v.code, "Enter code")
	return err
}

func (a *App) requestCode(ctx context.Context, args []string) error {
	fs := newFlagSet("request-code")
	phone := fs.String("phone", "", "phone number in international format")
	if err := parse(fs, args); err != nil {
		return err
	}

	p, err := a.prompt(*phone, "Enter phone")
	if err != nil {
		return err
	}

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	token, err := a.client.RequestCode(ctx, p)
	if err != nil {
		return err
	}
	return printJSON(a.out, rpc.RequestVerificationCodeResponse{VerificationToken: token})
}

func (a *App) register(ctx context.Context, args []string) error {
	fs := newFlagSet("register")
	var v verificationFlags
	v.register(fs)
	username := fs.String("username", "", "user name")
	if err := parse(fs, args); err != nil {
		return err
	}

	if err := v.complete(a); err != nil {
		return err
	}
	name, err := a.prompt(*username, "Enter user name")
	if err != nil {
		return err
	}
	pw, err := a.password("Enter password: ")
	if err != nil {
		return err
	}

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	resp, err := a.client.Register(ctx, &rpc.RegisterRequest{
		Phone:             v.phone,
		Username:          name,
		Password:          pw,
		VerificationToken: v.token,
		VerificationCode:  v.code,
	})
	if err != nil {
		return err
	}
	return printJSON(a.out, resp)
}

func (a *App) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login")
	username := fs.String("username", "", "user name")
	if err := parse(fs, args); err != nil {
		return err
	}

	name, err := a.prompt(*username, "Enter user name")
	if err != nil {
		return err
	}
	pw, err := a.password("Enter password: ")
	if err != nil {
		return err
	}

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	resp, err := a.client.Login(ctx, name, pw)
	if err != nil {
		return err
	}
	return printJSON(a.out, resp)
}

func (a *App) changePassword(ctx context.Context, args []string) error {
	fs := newFlagSet("change-password")
	var v verificationFlags
	v.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}

	if err := v.complete(a); err != nil {
		return err
	}
	pw, err := a.password("Enter new password: ")
	if err != nil {
		return err
	}

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	resp, err := a.client.ChangePassword(ctx, &rpc.ChangePasswordRequest{
		Phone:             v.phone,
		Password:          pw,
		VerificationToken: v.token,
		VerificationCode:  v.code,
	})
	if err != nil {
		return err
	}
	return printJSON(a.out, resp)
}

func (a *App) refresh(ctx context.Context, args []string) error {
	fs := newFlagSet("refresh")
	var s sessionFlags
	s.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	s.load(a.client)

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	resp, err := a.client.Refresh(ctx)
	if err != nil {
		return err
	}
	return printJSON(a.out, resp)
}

func (a *App) whoAmI(ctx context.Context, args []string) error {
	fs := newFlagSet("whoami")
	var s sessionFlags
	s.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	s.load(a.client)

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	user, err := a.client.WhoAmI(ctx)
	if err != nil {
		return err
	}
	return a.printSession(user)
}

func (a *App) changePhone(ctx context.Context, args []string) error {
	fs := newFlagSet("change-phone")
	var s sessionFlags
	var v verificationFlags
	s.register(fs)
	v.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	s.load(a.client)

	if err := v.complete(a); err != nil {
		return err
	}

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	user, err := a.client.ChangePhone(ctx, &rpc.ChangePhoneRequest{
		Phone:             v.phone,
		VerificationToken: v.token,
		VerificationCode:  v.code,
	})
	if err != nil {
		return err
	}
	return a.printSession(user)
}

func (a *App) logout(ctx context.Context, args []string) error {
	fs := newFlagSet("logout")
	var s sessionFlags
	s.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	s.load(a.client)

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	if err := a.client.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
