package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gpt-vpn-tgbot-go/internal/config"
	"github.com/gpt-vpn-tgbot-go/internal/dispatch"
	"github.com/gpt-vpn-tgbot-go/internal/handlers"
	"github.com/gpt-vpn-tgbot-go/internal/history"
	"github.com/gpt-vpn-tgbot-go/internal/i18n"
	"github.com/gpt-vpn-tgbot-go/internal/middleware"
	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/gpt-vpn-tgbot-go/internal/relay"
	"github.com/gpt-vpn-tgbot-go/internal/scheduler"
	"github.com/gpt-vpn-tgbot-go/internal/services/access"
	"github.com/gpt-vpn-tgbot-go/internal/services/ai"
	"github.com/gpt-vpn-tgbot-go/internal/services/broadcast"
	"github.com/gpt-vpn-tgbot-go/internal/services/cache"
	"github.com/gpt-vpn-tgbot-go/internal/services/purchase"
	"github.com/gpt-vpn-tgbot-go/internal/services/storage"
	"github.com/gpt-vpn-tgbot-go/internal/services/users"
	"github.com/gpt-vpn-tgbot-go/internal/transport"
	"github.com/gpt-vpn-tgbot-go/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting Telegram Bot...")

	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		log.WithError(err).Fatal("Failed to create bot")
	}
	bot.Debug = cfg.Logging.Level == "debug"
	log.WithField("username", bot.Self.UserName).Info("Bot authorized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := middleware.NewMetrics()

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	var files cache.Service
	if cfg.FileCache.Enabled {
		files = cache.NewCache(&cfg.FileCache, log)
	}
	tr := transport.NewTelegram(bot, files, log)

	userStore, err := users.NewFileStore(cfg.Users.File)
	if err != nil {
		log.WithError(err).Fatal("Failed to open users file")
	}
	registry := users.NewRegistry(userStore, log)

	storageManager, err := storage.NewManager(&cfg.Storage, metrics, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}

	historyManager := history.NewManager(cfg.History.Limit)

	relayer := relay.New(ai.NewClient(&cfg.Provider, log), tr, historyManager, relay.Options{
		Sink: relay.SinkOptions{
			MinChars:      cfg.Stream.MinChars,
			MinInterval:   cfg.Stream.MinInterval,
			FrameInterval: cfg.Stream.FrameInterval,
			Markdown:      cfg.Stream.Markdown,
		},
		Payload: ai.OptionsFromConfig(&cfg.Provider),
		Notices: relay.Notices{
			Timeout: localizer.Default(i18n.MsgTimeout, nil),
			Failure: localizer.Default(i18n.MsgRelayFailed, nil),
			Empty:   localizer.Default(i18n.MsgEmptyResponse, nil),
		},
	}, metrics, log)

	admins := models.NewAdminSet(cfg.Admins)
	accessService := access.NewService(registry, tr, admins, localizer, metrics, log)
	purchaseMachine := purchase.NewMachine(storageManager, registry, tr, admins, localizer, cfg.Payment.Details, metrics, log)
	broadcastService := broadcast.NewService(registry, tr, admins, cfg.Broadcast.Delay, metrics, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, metrics, log)

	handler := handlers.New(handlers.Deps{
		Transport:   tr,
		Relay:       relayer,
		History:     historyManager,
		Registry:    registry,
		Access:      accessService,
		Purchase:    purchaseMachine,
		Broadcast:   broadcastService,
		State:       storageManager,
		RateLimiter: rateLimiter,
		Localizer:   localizer,
		Metrics:     metrics,
		Logger:      log,
	})

	dispatcher := dispatch.New(ctx, metrics, log)

	// Background jobs
	cron := scheduler.New(log)
	if cfg.Scheduler.Enabled {
		if err := cron.Add("rate_limit_cleanup", cfg.Scheduler.CleanupSpec, func(ctx context.Context) error {
			removed := rateLimiter.Cleanup()
			log.WithField("removed", removed).Debug("Idle rate limiters removed")
			return nil
		}); err != nil {
			log.WithError(err).Fatal("Failed to schedule cleanup")
		}
		if err := cron.Add("stats_report", cfg.Scheduler.StatsSpec, accessService.ReportStats); err != nil {
			log.WithError(err).Fatal("Failed to schedule stats report")
		}
		cron.Start()
	}

	var metricsServer *http.Server
	if cfg.Monitoring.Metrics.Enabled {
		metricsServer = middleware.NewMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path)
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Setup update channel
	var updates tgbotapi.UpdatesChannel

	if cfg.Bot.Webhook.Enabled {
		webhookURL := fmt.Sprintf("%s/%s", cfg.Bot.Webhook.URL, bot.Token)
		webhook, err := tgbotapi.NewWebhook(webhookURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to create webhook")
		}

		if _, err := bot.Request(webhook); err != nil {
			log.WithError(err).Fatal("Failed to set webhook")
		}

		updates = bot.ListenForWebhook("/" + bot.Token)
		go func() {
			if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Bot.Webhook.Port), nil); err != nil {
				log.WithError(err).Error("Webhook server failed")
			}
		}()
		log.WithField("port", cfg.Bot.Webhook.Port).Info("Webhook set")
	} else {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = cfg.Bot.UpdateTimeout

		updates = bot.GetUpdatesChan(u)
		log.Info("Using long polling")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Main bot loop. Updates from one user run in order, different users run concurrently.
	go func() {
		for update := range updates {
			userID, ok := handlers.UpdateUserID(update)
			if !ok {
				continue
			}
			err := dispatcher.Submit(userID, func(ctx context.Context) {
				if err := handler.HandleUpdate(ctx, update); err != nil {
					log.WithError(err).WithField("user_id", userID).Error("Failed to handle update")
				}
			})
			if err != nil {
				log.WithError(err).Warn("Update dropped")
			}
		}
	}()

	<-sigChan
	log.Info("Shutdown signal received")

	if cfg.Bot.Webhook.Enabled {
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.WithError(err).Error("Failed to delete webhook")
		}
	} else {
		bot.StopReceivingUpdates()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// let in-flight updates finish before cancelling them
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Handlers did not finish in time")
	}
	cancel()
	cron.Stop()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Failed to stop metrics server")
		}
	}
	if err := storageManager.Close(); err != nil {
		log.WithError(err).Error("Failed to close storage")
	}

	log.Info("Bot stopped")
}
