package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/relaychat/internal/config"
	"github.com/soyeahso/relaychat/internal/events"
	"github.com/soyeahso/relaychat/internal/gateway"
	"github.com/soyeahso/relaychat/internal/hooks"
	"github.com/soyeahso/relaychat/internal/journal"
	"github.com/soyeahso/relaychat/internal/logging"
	"github.com/soyeahso/relaychat/internal/relay"
	"github.com/soyeahso/relaychat/internal/session"
	"github.com/soyeahso/relaychat/internal/whatsapp"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			root, closer := logging.FromConfig(cfg.Logging, paths.Logs)
			defer closer.Close()
			log = root

			return serve(cmd.Context(), cfg, root)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}

// serve wires the relay components together and blocks until SIGINT/SIGTERM
// or until one of them fails.
func serve(parent context.Context, cfg config.Config, log *logging.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hookMgr := hooks.NewManager(log)
	if n := hooks.RegisterConfig(hookMgr, cfg.Hooks); n > 0 {
		log.Info().Int("hooks", n).Strs("events", hookMgr.Events()).Msg("config hooks registered")
	}
	defer hookMgr.Wait()

	bus := events.NewBus(log)
	defer bus.Close()

	store := session.NewStore(session.WithCustomerPrefix(cfg.Session.CustomerPrefix))
	deps := relay.Deps{
		Store:     store,
		Messenger: whatsapp.NewClient(cfg.Provider, log),
		Publisher: bus,
		Hooks:     hookMgr,
		Log:       log,
	}

	if cfg.Journal.DSN != "" {
		j, err := journal.Open(cfg.Journal.DSN, paths.Data, log)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer j.Close()
		deps.Journal = j
	} else {
		log.Info().Msg("journal disabled")
	}

	dispatcher := relay.NewDispatcher(deps, cfg.Provider)
	reconciler := relay.NewReconciler(deps, cfg.Provider.OwnerNumber)
	scheduler := relay.NewScheduler(deps, cfg.Provider, cfg.Session)

	srv := gateway.New(cfg, store, dispatcher, reconciler, log, gateway.WithHooks(hookMgr))

	updates, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return srv.Forward(gctx, updates) })

	err = g.Wait()
	log.Info().Int("sessions", store.Len()).Msg("relay stopped")
	return err
}
