// weighdesk - terminal operator console for a weighbridge service.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/weighdesk-tui/internal/cli"
	"github.com/jeranaias/weighdesk-tui/internal/config"
	"github.com/jeranaias/weighdesk-tui/internal/logging"
	"github.com/jeranaias/weighdesk-tui/internal/session"
	"github.com/jeranaias/weighdesk-tui/internal/transport"
	"github.com/jeranaias/weighdesk-tui/internal/ui/app"
	"github.com/jeranaias/weighdesk-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
	transport.UserAgent = "weighdesk/" + Version
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
		return
	case cli.CmdHelp:
		cli.HandleErrorAndExit(cli.HandleHelp(os.Stdout, args), args.JSON)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		if cfg == nil {
			cli.HandleErrorAndExit(err, args.JSON)
		}
		// Unreadable file: carry on with defaults.
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	cli.ApplyOverrides(cfg, args)

	log, err := openLog(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		log = &logging.Logger{Logger: zap.NewNop()}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logging.WithContext(ctx, log.Logger)

	env := cli.NewEnv(cfg, log.Logger, args)
	switch cmd {
	case cli.CmdLogin:
		err = cli.HandleLogin(ctx, env)
	case cli.CmdAudit:
		err = cli.HandleAudit(ctx, env)
	case cli.CmdConfig:
		err = cli.HandleConfig(env)
	default:
		err = runTUI(ctx, env)
	}
	stop()
	if err != nil {
		log.Error("command failed", zap.Stringer("command", cmd), zap.Error(err))
	}
	log.Close()
	cli.HandleErrorAndExit(err, args.JSON)
}

// openLog opens the application log file described by cfg.
func openLog(cfg *config.Config) (*logging.Logger, error) {
	path, err := cfg.LogPath()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Path:   path,
	})
}

// runTUI wires the session controller to the terminal UI and runs it until
// the operator quits.
func runTUI(ctx context.Context, env *cli.Env) error {
	cfg, log := env.Config, logging.FromContext(ctx)

	client, err := cli.BuildClient(cfg, log)
	if err != nil {
		return err
	}

	auditLog, err := cli.OpenAudit(cfg)
	if err != nil {
		log.Warn("audit trail unavailable", zap.Error(err))
	}

	bridge := app.NewBridge()
	fatal := make(chan error, 1)

	opts := []session.ControllerOption{
		session.WithLogger(log),
		session.WithLoginGuard(cli.BuildLockout(cfg, log)),
		session.WithIOTimeout(cfg.RequestTimeout()),
		session.WithSchedulerOptions(
			session.WithWarningWindow(cfg.WarningWindow()),
			session.WithMinFireDelay(cfg.MinFireDelay()),
		),
	}
	if auditLog != nil {
		defer auditLog.Close()
		opts = append(opts, session.WithAuditor(auditLog))
	}

	var program *tea.Program
	opts = append(opts, session.WithFatalHandler(func(err error) {
		log.Error("session controller stopped the application", zap.Error(err))
		select {
		case fatal <- err:
			program.Kill()
		default:
		}
	}))
	ctrl := session.NewController(client, bridge.Collaborators(), opts...)

	if path, err := config.ActivePath(); err == nil {
		watcher, err := config.Watch(path, func(next *config.Config) {
			log.Info("config reloaded", zap.Duration("warning_window", next.WarningWindow()))
			ctrl.SetWarningWindow(next.WarningWindow())
		}, config.WithErrorHandler(func(err error) {
			log.Warn("config reload failed", zap.Error(err))
		}))
		if err != nil {
			log.Warn("config watch unavailable", zap.Error(err))
		} else {
			defer watcher.Close()
		}
	}

	model := app.New(ctrl, app.Options{
		Server:        client.BaseURL(),
		LastUser:      cfg.UI.LastUser,
		Theme:         styles.NewTheme(cfg.UI.Theme),
		Log:           log,
		WarningWindow: ctrl.WarningWindow,
		OnLogin: func(username string) {
			rememberUser(log, username)
		},
	})
	program = tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	bridge.Attach(program)

	ctrlCtx, cancelCtrl := context.WithCancel(ctx)
	ctrlDone := make(chan struct{})
	go func() {
		defer close(ctrlDone)
		if err := ctrl.Run(ctrlCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("session controller exited", zap.Error(err))
		}
	}()

	_, runErr := program.Run()

	cancelCtrl()
	<-ctrlDone
	bridge.Detach()

	// Killed by a signal with a session still open: release it.
	if client.Authenticated() {
		logoutCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout())
		client.Logout(logoutCtx)
		cancel()
	}

	select {
	case err := <-fatal:
		return err
	default:
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal UI: %w", runErr)
	}
	return nil
}

// rememberUser stores the last signed-in username in the config file.
func rememberUser(log *zap.Logger, username string) {
	path, err := config.ActivePath()
	if err != nil {
		return
	}
	err = config.Update(path, func(cfg *config.Config) error {
		cfg.UI.LastUser = username
		return nil
	})
	if err != nil {
		log.Warn("failed to save last user", zap.Error(err))
	}
}
