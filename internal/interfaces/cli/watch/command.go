// Package watch implements the `watch` command: the long-running relay.
package watch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	relayApp "github.com/orris-inc/ticketwatch/internal/application/relay"
	relayDomain "github.com/orris-inc/ticketwatch/internal/domain/relay"
	"github.com/orris-inc/ticketwatch/internal/infrastructure/config"
	"github.com/orris-inc/ticketwatch/internal/infrastructure/database"
	"github.com/orris-inc/ticketwatch/internal/infrastructure/migration"
	"github.com/orris-inc/ticketwatch/internal/infrastructure/persistence"
	"github.com/orris-inc/ticketwatch/internal/infrastructure/redmine"
	"github.com/orris-inc/ticketwatch/internal/infrastructure/scheduler"
	"github.com/orris-inc/ticketwatch/internal/infrastructure/slack"
	httpIface "github.com/orris-inc/ticketwatch/internal/interfaces/http"
	"github.com/orris-inc/ticketwatch/internal/shared/goroutine"
	"github.com/orris-inc/ticketwatch/internal/shared/logger"
)

var env string

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the tracker and relay ticket lifecycle events to chat",
		Long:  `Start the relay loop: poll the issue tracker for new tickets, post them to the chat channel, and track each relayed ticket until it completes or disappears.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "production", "Environment (development, production)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, env == "development"); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	log := logger.NewLogger()
	log.Infow("starting ticketwatch",
		"environment", env,
		"poll_interval", cfg.Relay.PollInterval,
		"follow_up_policy", cfg.Relay.FollowUp.Policy,
		"follow_up_interval", cfg.Relay.FollowUp.Interval,
	)
	if len(cfg.Relay.TrackerAllowlist) > 0 {
		log.Infow("relaying selected trackers only", "tracker_ids", cfg.Relay.TrackerAllowlist)
	} else {
		log.Infow("relaying all trackers")
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := migration.Up(db, log); err != nil {
		return err
	}

	store := persistence.NewStateStore(db)
	source := redmine.NewClient(cfg.Redmine, log.Named("redmine"))
	sink := slack.NewClient(cfg.Slack)
	reconciler := relayDomain.NewReconciler(cfg.Relay.TrackerAllowlist)
	builder := relayApp.NewMessageBuilder(cfg.Redmine.BaseURL, cfg.Slack.UserMapping)

	var policy relayDomain.FollowUpPolicy
	switch cfg.Relay.FollowUp.Policy {
	case "once":
		policy = relayDomain.NewElapsedSinceCreationPolicy(cfg.Relay.FollowUp.Interval)
	default:
		policy = relayDomain.NewIntervalPolicy(cfg.Relay.FollowUp.Interval)
	}

	service := relayApp.NewService(source, sink, store, reconciler, policy, builder, cfg.Relay, log.Named("relay"))

	manager, err := scheduler.NewManager(log.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := manager.RegisterRelayJob(service, cfg.Relay.PollInterval); err != nil {
		return fmt.Errorf("failed to register relay job: %w", err)
	}

	gin.SetMode(ginMode(cfg.Server.Mode))
	gin.DefaultWriter = io.Discard
	router := httpIface.NewRouter(service, log.Named("http"))
	server := &http.Server{
		Addr:    cfg.Server.GetAddr(),
		Handler: router,
	}
	goroutine.SafeGo(log, "ops-http-server", func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("ops server failed", "error", err)
		}
	})
	log.Infow("ops endpoint listening", "addr", cfg.Server.GetAddr())

	manager.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infow("shutdown signal received, finishing current cycle", "signal", sig.String())

	if err := manager.Shutdown(); err != nil {
		log.Errorw("scheduler shutdown failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("ops server shutdown failed", "error", err)
	}

	log.Infow("ticketwatch stopped")
	return nil
}

func ginMode(mode string) string {
	switch mode {
	case "debug", "development":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}
