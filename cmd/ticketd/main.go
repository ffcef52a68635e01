package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	apiPkg "github.com/Meshal1212222/ticket-ticket/internal/api"
	"github.com/Meshal1212222/ticket-ticket/internal/chatbot"
	"github.com/Meshal1212222/ticket-ticket/internal/config"
	"github.com/Meshal1212222/ticket-ticket/internal/connector"
	"github.com/Meshal1212222/ticket-ticket/internal/connector/greenapi"
	"github.com/Meshal1212222/ticket-ticket/internal/connector/telegram"
	"github.com/Meshal1212222/ticket-ticket/internal/connector/webhook"
	"github.com/Meshal1212222/ticket-ticket/internal/connector/xdm"
	"github.com/Meshal1212222/ticket-ticket/internal/dedupe"
	"github.com/Meshal1212222/ticket-ticket/internal/intake"
	"github.com/Meshal1212222/ticket-ticket/internal/logbuf"
	"github.com/Meshal1212222/ticket-ticket/internal/notify"
	"github.com/Meshal1212222/ticket-ticket/internal/provider"
	"github.com/Meshal1212222/ticket-ticket/internal/scheduler"
	"github.com/Meshal1212222/ticket-ticket/internal/summarizer"
	"github.com/Meshal1212222/ticket-ticket/internal/ticket"
)

func main() {
	configPath := flag.String("config", os.Getenv("TICKETD_CONFIG"), "Path to config JSON or YAML file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))
	slog.SetDefault(logger)

	// Load config (file or env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.Server.Timezone)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", "timezone", cfg.Server.Timezone, "error", err)
		loc = time.UTC
	}
	logger.Info("ticketd starting", "store", cfg.Store.Driver, "timezone", loc.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Ticket store
	store, err := openStore(cfg.Store, logger)
	if err != nil {
		logger.Error("failed to open ticket store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ids, err := ticket.NewIDGenerator(cfg.Tickets.IDScheme, cfg.Tickets.IDPrefix, store)
	if err != nil {
		logger.Error("failed to build id generator", "error", err)
		os.Exit(1)
	}

	// 2. Summarizer, notifiers and the intake pathway
	intakeOpts := []intake.Option{
		intake.WithConfig(intake.Config{
			RequireCategory: cfg.Tickets.RequireCategory,
			ApplyPriority:   cfg.AI.ApplyPriority,
		}),
		intake.WithLogger(logger),
	}
	if cfg.AI.Provider != "" {
		prov, err := provider.New(provider.Settings{
			Type:    cfg.AI.Provider,
			APIKey:  cfg.AI.APIKey,
			BaseURL: cfg.AI.BaseURL,
			Model:   cfg.AI.Model,
		})
		if err != nil {
			logger.Warn("summaries disabled", "error", err)
		} else {
			sum := summarizer.New(prov, summarizer.WithTimeout(cfg.AI.Timeout.D()), summarizer.WithLogger(logger))
			intakeOpts = append(intakeOpts, intake.WithSummarizer(sum))
			logger.Info("summarizer enabled", "provider", prov.Name(), "model", cfg.AI.Model)
		}
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	var wa *greenapi.Client
	if gc := cfg.Connectors.GreenAPI; gc != nil {
		wa = greenapi.NewClient(greenapi.Config{
			APIURL:     gc.APIURL,
			InstanceID: gc.InstanceID,
			Token:      gc.Token,
		}, httpClient)
	}

	bots := &botCache{bots: make(map[string]*tgbotapi.BotAPI)}
	notifiers := buildNotifiers(cfg, loc, wa, bots, logger)
	dispatcher := notify.NewDispatcher(notifiers, cfg.Notify.Timeout.D(), logger)
	intakeOpts = append(intakeOpts, intake.WithDispatcher(dispatcher))
	svc := intake.NewService(store, ids, intakeOpts...)

	// 3. Chatbot
	sessions := chatbot.NewSessions(cfg.Chatbot.IdleTimeout.D())
	machine := chatbot.NewMachine(sessions, svc, chatbot.WithLogger(logger))
	machine.SetEnabled(cfg.Chatbot.IsEnabled())
	replyDelay := max(cfg.Chatbot.ReplyDelay.D(), 0)

	seen, err := dedupe.New(dedupe.DefaultWindow)
	if err != nil {
		logger.Error("failed to init dedupe cache", "error", err)
		os.Exit(1)
	}
	defer seen.Close()

	// 4. Scheduler
	sched := scheduler.New(logger)
	err = sched.AddJob("chatbot-sweep", cfg.Chatbot.SweepSchedule, func(context.Context) error {
		if n := sessions.Sweep(time.Now()); n > 0 {
			logger.Info("idle conversations swept", "count", n, "active", sessions.Len())
		}
		return nil
	}, scheduler.WithTimeout(30*time.Second))
	if err != nil {
		logger.Error("failed to schedule sweep", "error", err)
		os.Exit(1)
	}

	// 5. Connectors
	var webhookHandler http.Handler
	if wa != nil {
		gc := cfg.Connectors.GreenAPI
		webhookHandler = greenapi.NewWebhookHandler(ctx,
			webhook.Authenticator{Secret: gc.WebhookSecret, BearerToken: gc.WebhookToken},
			seen,
			connector.Respond(machine, wa, replyDelay, logger),
			logger,
		)
		logger.Info("whatsapp webhook enabled", "instance", gc.InstanceID)
	}

	if tc := cfg.Connectors.Telegram; tc != nil {
		// Forward-declare tgConn so the reply closure can reference it
		var tgConn *telegram.Connector
		bot, err := bots.get(tc.Token)
		if err != nil {
			logger.Error("failed to init telegram bot", "error", err)
			os.Exit(1)
		}
		reply := connector.SenderFunc(func(ctx context.Context, msg connector.OutboundMessage) error {
			return tgConn.Send(ctx, msg)
		})
		tgConn, err = telegram.New(
			telegram.Config{
				Token:     tc.Token,
				AllowFrom: tc.AllowFrom,
				Bot:       bot,
				OnStart:   machine.ResetSender,
			},
			connector.Respond(machine, reply, 0, logger),
			logger,
		)
		if err != nil {
			logger.Error("failed to init telegram connector", "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "telegram", func() { tgConn.Start(ctx) })
		logger.Info("telegram connector started")
	}

	if xc := cfg.Connectors.X; xc != nil {
		client := xdm.NewClient(xc.APIURL, xc.BearerToken, httpClient)
		reply := connector.SenderFunc(func(ctx context.Context, msg connector.OutboundMessage) error {
			return client.SendDM(ctx, msg.ChatID, msg.Content)
		})
		poller := xdm.NewPoller(client, xc.UserID, seen, connector.Respond(machine, reply, replyDelay, logger), logger)
		if err := sched.AddJob("x-poll", xc.PollSchedule, poller.Poll, scheduler.WithTimeout(time.Minute)); err != nil {
			logger.Error("failed to schedule x polling", "error", err)
			os.Exit(1)
		}
		// The first poll only records the newest event id.
		go safeGo(logger, "x-prime", func() {
			if err := sched.RunNow("x-poll"); err != nil {
				logger.Warn("initial x poll failed", "error", err)
			}
		})
		logger.Info("x dm polling enabled", "schedule", xc.PollSchedule)
	}

	go safeGo(logger, "scheduler", func() { sched.Start(ctx) })

	// 6. API server
	apiSrv := apiPkg.NewServer(apiPkg.Deps{
		Intake:    svc,
		Store:     store,
		Chatbot:   machine,
		Notifiers: dispatcher,
		Logs:      logBuf,
		Jobs:      sched,
		Webhook:   webhookHandler,
	}, apiPkg.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		APIKey:    cfg.Server.APIKey,
		AdminKey:  cfg.Server.AdminKey,
		StoreName: cfg.Store.Driver,
		Location:  loc,
	}, logger)

	go safeGo(logger, "api-server", func() {
		if err := apiSrv.Start(ctx); err != nil {
			logger.Error("api server stopped", "error", err)
			cancel()
		}
	})
	if cfg.Server.AdminKey == "" {
		logger.Warn("admin key not set, admin routes are disabled")
	}

	// 7. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}
	cancel()
	if wh, ok := webhookHandler.(*greenapi.WebhookHandler); ok {
		wh.Wait()
	}
	logger.Info("ticketd stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}

func openStore(cfg config.StoreConfig, logger *slog.Logger) (ticket.Store, error) {
	switch cfg.Driver {
	case "postgres":
		s, err := ticket.NewPostgresStore(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		s, err := ticket.NewSQLiteStore(cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// botCache shares one authorized bot per token between the notifier and the connector.
type botCache struct {
	bots map[string]*tgbotapi.BotAPI
}

func (c *botCache) get(token string) (*tgbotapi.BotAPI, error) {
	if b, ok := c.bots[token]; ok {
		return b, nil
	}
	b, err := telegram.NewBot(token, "")
	if err != nil {
		return nil, err
	}
	c.bots[token] = b
	return b, nil
}

// buildNotifiers creates every configured channel. A channel that fails to
// initialize is logged and skipped.
func buildNotifiers(cfg *config.Config, loc *time.Location, wa *greenapi.Client, bots *botCache, logger *slog.Logger) []notify.Notifier {
	var out []notify.Notifier
	renderer := func(format string) notify.Renderer {
		return notify.Renderer{Template: cfg.Notify.Template, Format: format, Location: loc}
	}

	if tc := cfg.Notify.Telegram; tc != nil {
		token := tc.Token
		if token == "" && cfg.Connectors.Telegram != nil {
			token = cfg.Connectors.Telegram.Token
		}
		bot, err := bots.get(token)
		if err != nil {
			logger.Error("telegram notifier disabled", "error", err)
		} else {
			out = append(out, notify.NewTelegramNotifier(bot, tc.ChatID, renderer(notify.FormatHTML), logger))
		}
	}

	if wc := cfg.Notify.WhatsApp; wc != nil {
		if wa == nil {
			logger.Error("whatsapp notifier disabled: connectors.greenapi is not configured")
		} else {
			out = append(out, notify.NewGreenAPINotifier(wa, wc.GroupID, renderer(notify.FormatWhatsApp)))
		}
	}

	if sc := cfg.Notify.Slack; sc != nil {
		n, err := notify.NewSlackNotifier(notify.SlackConfig{
			WebhookURL: sc.WebhookURL,
			BotToken:   sc.BotToken,
			Channel:    sc.Channel,
		}, renderer(notify.FormatMrkdwn))
		if err != nil {
			logger.Error("slack notifier disabled", "error", err)
		} else {
			out = append(out, n)
		}
	}

	for _, n := range out {
		logger.Info("notifier enabled", "name", n.Name())
	}
	if len(out) == 0 {
		logger.Warn("no notifiers configured, tickets are stored only")
	}
	return out
}
