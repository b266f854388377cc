package main

import (
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"evater/api/internal/httpserver"
	"evater/api/internal/telegram"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot (webhook when WEBHOOK_URL is set, polling otherwise)",
	Long: `Runs the Telegram bot together with the HTTP API. With WEBHOOK_URL set
the bot registers a webhook and receives updates on the API port; without it
the bot long-polls Telegram.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.TelegramBotToken == "" {
			return errors.New("missing required env TELEGRAM_BOT_TOKEN")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		go a.purgeLoop(ctx, cfg.TestRetention, logger)

		bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			return err
		}
		bot.Debug = false
		log := logger.Named("telegram")
		tr := telegram.NewRouter(bot, a.svc, a.images, cfg.RequestTimeout, log)

		router := httpserver.NewRouter(newHandle(a), logger)
		addr := ":" + cfg.Port

		if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
			if err := telegram.RegisterWebhook(bot, webhookURL); err != nil {
				return err
			}
			router.Handle(telegram.WebhookPath(bot.Token), telegram.WebhookHandler(bot, tr.HandleUpdate, log)).Methods("POST")
			log.Info("webhook mode", zap.String("path", telegram.WebhookPath(bot.Token)))
			return httpserver.Start(ctx, addr, router, logger)
		}

		errCh := make(chan error, 1)
		go func() { errCh <- httpserver.Start(ctx, addr, router, logger) }()

		log.Info("polling mode", zap.String("bot", bot.Self.UserName))
		telegram.RunPolling(ctx, bot, tr.HandleUpdate, log)
		stop()
		return <-errCh
	},
}
