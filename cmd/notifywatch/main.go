package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"edumarket-service/internal/cli"
	domain "edumarket-service/internal/domain/notification"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const usage = `usage: notifywatch [flags] <command>

commands:
  watch              follow notifications live (default)
  list               print one page (--limit, --offset) or everything (--all)
  read <id>          mark one notification read
  read-all           mark every notification read
  prefs              show delivery preferences
  mute <type>        disable in-app delivery for a type (name or id)
  unmute <type>      enable in-app delivery for a type (name or id)
  send               create a notification (--user, --type, --title, --message, --priority)
  login              store an access token in the keyring
  logout             remove the stored token
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintln(os.Stderr, "notifywatch:", err)
	}
	os.Exit(cli.ExitCode(err))
}

func run(ctx context.Context, args []string) error {
	fs := cli.Flags()
	limit := fs.Int("limit", 20, "page size for list")
	offset := fs.Int("offset", 0, "page offset for list")
	all := fs.Bool("all", false, "list every page")
	user := fs.String("user", "", "recipient user id for send")
	typeName := fs.String("type", domain.TypeSystem, "notification type for send")
	title := fs.String("title", "", "title for send")
	message := fs.String("message", "", "message for send")
	priority := fs.String("priority", "", "low, normal, high or urgent for send")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage, "\nflags:\n", fs.FlagUsages())
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := cli.LoadConfig(fs)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tokens, keyringErr := cli.OpenTokenStore(cfg.KeyringDir, cfg.KeyringFile)
	if keyringErr != nil {
		logger.Warn("keyring unavailable", zap.Error(keyringErr))
	}

	cmd := "watch"
	rest := fs.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	switch cmd {
	case "login":
		if tokens == nil {
			return keyringErr
		}
		token, err := cli.PromptToken(ctx)
		if err != nil {
			return err
		}
		if err := tokens.Set(token); err != nil {
			return err
		}
		fmt.Println("token stored")
		return nil
	case "logout":
		if tokens == nil {
			return keyringErr
		}
		return tokens.Delete()
	}

	token, err := cli.ResolveToken(cfg, tokens)
	if err != nil {
		return err
	}

	interactive := cli.IsTerminal()
	bridge := cli.NewTerminalBridge(os.Stdout, interactive, cfg.Desktop, nil)
	app, err := cli.NewApp(cfg, token, bridge, os.Stdout, logger)
	if err != nil {
		return err
	}

	switch cmd {
	case "watch":
		return app.Watch(ctx)
	case "list":
		if *all {
			return app.ListAll(ctx)
		}
		return app.List(ctx, *limit, *offset)
	case "read":
		if len(rest) != 1 {
			return fmt.Errorf("read needs exactly one notification id")
		}
		return app.MarkRead(ctx, rest[0])
	case "read-all":
		return app.MarkAllRead(ctx)
	case "prefs":
		return app.Preferences(ctx)
	case "mute", "unmute":
		if len(rest) != 1 {
			return fmt.Errorf("%s needs a notification type", cmd)
		}
		return app.SetInApp(ctx, rest[0], cmd == "unmute")
	case "send":
		return app.Send(ctx, &domain.CreateNotificationRequest{
			UserID:   *user,
			TypeName: *typeName,
			Title:    *title,
			Message:  *message,
			Priority: domain.Priority(*priority),
		})
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = lvl
	cfg.Encoding = "console"
	return cfg.Build()
}
