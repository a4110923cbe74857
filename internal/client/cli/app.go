// Package cli is the rideauth command-line client. Each invocation runs one
// subcommand against the server and prints its result as JSON; the token
// pair printed by register, login and refresh is passed back to later
// invocations with -access and -refresh.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/rideauth/internal/client/client"
	"github.com/dmitrijs2005/rideauth/internal/client/config"
	"github.com/dmitrijs2005/rideauth/internal/rpc"
)

var ErrUsage = errors.New("usage")

// AuthClient is the part of client.GRPCClient the commands use.
type AuthClient interface {
	RequestCode(ctx context.Context, phone string) (string, error)
	Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.AuthResponse, error)
	Login(ctx context.Context, username, password string) (*rpc.AuthResponse, error)
	ChangePassword(ctx context.Context, req *rpc.ChangePasswordRequest) (*rpc.AuthResponse, error)
	Refresh(ctx context.Context) (*rpc.AuthResponse, error)
	WhoAmI(ctx context.Context) (*rpc.User, error)
	ChangePhone(ctx context.Context, req *rpc.ChangePhoneRequest) (*rpc.User, error)
	Logout(ctx context.Context) error
	Tokens() client.Tokens
	SetTokens(t client.Tokens)
	Close() error
}

type App struct {
	config *config.Config
	client AuthClient
	out    io.Writer
	errOut io.Writer
	reader *bufio.Reader
}

func NewApp(c *config.Config) (*App, error) {
	cl, err := client.NewGRPCClient(c.ServerEndpointAddr)
	if err != nil {
		return nil, err
	}
	return NewAppWithClient(c, cl, os.Stdin, os.Stdout, os.Stderr), nil
}

// NewAppWithClient builds an App over an existing client and streams.
func NewAppWithClient(c *config.Config, cl AuthClient, in io.Reader, out, errOut io.Writer) *App {
	return &App{config: c, client: cl, out: out, errOut: errOut, reader: bufio.NewReader(in)}
}

type command struct {
	usage string
	run   func(a *App, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"request-code":    {"request-code -phone PHONE", (*App).requestCode},
	"register":        {"register -phone PHONE -username NAME -token TOKEN -code CODE", (*App).register},
	"login":           {"login -username NAME", (*App).login},
	"change-password": {"change-password -phone PHONE -token TOKEN -code CODE", (*App).changePassword},
	"refresh":         {"refresh -access TOKEN -refresh TOKEN", (*App).refresh},
	"whoami":          {"whoami -access TOKEN [-refresh TOKEN]", (*App).whoAmI},
	"change-phone":    {"change-phone -phone PHONE -token TOKEN -code CODE -access TOKEN [-refresh TOKEN]", (*App).changePhone},
	"logout":          {"logout -access TOKEN [-refresh TOKEN]", (*App).logout},
}

var commandOrder = []string{
	"request-code", "register", "login", "change-password",
	"refresh", "whoami", "change-phone", "logout",
}

// globalFlags are consumed by config.LoadConfig and skipped here.
var globalFlags = map[string]bool{"-a": true, "-t": true, "-c": true, "-config": true}

// splitCommand returns the subcommand name and its own arguments.
func splitCommand(args []string) (string, []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			if globalFlags[arg] && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
			}
			continue
		}
		return arg, args[i+1:]
	}
	return "", nil
}

func (a *App) printUsage() {
	fmt.Fprintln(a.errOut, "usage: rideauth [-a addr] [-t seconds] [-c config.json] <command> [flags]")
	fmt.Fprintln(a.errOut, "commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(a.errOut, "  %s\n", commands[name].usage)
	}
}

// Run executes the subcommand found in args, which may still contain the
// global configuration flags.
func (a *App) Run(ctx context.Context, args []string) error {
	defer a.client.Close()

	name, rest := splitCommand(args)
	cmd, ok := commands[name]
	if !ok {
		a.printUsage()
		if name == "" || name == "help" {
			return ErrUsage
		}
		return fmt.Errorf("%w: unknown command %q", ErrUsage, name)
	}

	return cmd.run(a, ctx, rest)
}

// requestContext bounds a single server call. Prompts happen before it.
func (a *App) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}
