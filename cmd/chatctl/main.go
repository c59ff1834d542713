package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/kinchat-server/internal/client"
)

type globalFlags struct {
	server   string
	user     string
	password string
	register bool
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "chatctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Terminal client for the kinchat server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.server, "server", "http://localhost:8080", "server base URL")
	pf.StringVarP(&g.user, "user", "u", "", "username")
	pf.StringVarP(&g.password, "password", "p", "", "password")
	pf.BoolVar(&g.register, "register", false, "create the account before signing in")
	pf.StringVar(&g.logLevel, "log-level", "warn", "client log level")
	_ = root.MarkPersistentFlagRequired("user")
	_ = root.MarkPersistentFlagRequired("password")

	root.AddCommand(newChatCmd(g), newSmokeCmd(g), newFriendsCmd(g))
	return root
}

// signIn authenticates over REST and returns the API with its token set.
func signIn(ctx context.Context, g *globalFlags) (*client.API, *client.AuthResult, error) {
	api := client.NewAPI(g.server, nil)
	var (
		res *client.AuthResult
		err error
	)
	if g.register {
		res, err = api.Register(ctx, g.user, g.password)
	} else {
		res, err = api.Login(ctx, g.user, g.password)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("sign in as %s: %w", g.user, err)
	}
	return api, res, nil
}

func wsURL(server string) string {
	switch {
	case strings.HasPrefix(server, "https://"):
		return "wss://" + strings.TrimPrefix(server, "https://") + "/ws"
	case strings.HasPrefix(server, "http://"):
		return "ws://" + strings.TrimPrefix(server, "http://") + "/ws"
	default:
		return strings.TrimRight(server, "/") + "/ws"
	}
}
