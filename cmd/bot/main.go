package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hyperbot/internal/config"
	"hyperbot/internal/errs"
	"hyperbot/internal/exchange/hyperliquid/rest"
	"hyperbot/internal/exchange/hyperliquid/ws"
	"hyperbot/internal/fills"
	"hyperbot/internal/logger"
	"hyperbot/internal/metrics"
	"hyperbot/internal/notify/telegram"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Runtime.Log.Level,
		Format:     cfg.Runtime.Log.Format,
		Output:     cfg.Runtime.Log.File,
		MaxSize:    cfg.Runtime.Log.MaxSize,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAge:     cfg.Runtime.Log.MaxAge,
		Compress:   cfg.Runtime.Log.Compress,
	})

	log.Info("Бот запущен.")

	client, err := rest.New(rest.Config{
		BaseURL:           cfg.Exchange.BaseURL,
		AccountAddress:    cfg.Exchange.AccountAddress,
		PrivateKey:        cfg.Exchange.PrivateKey,
		VaultAddress:      cfg.Exchange.VaultAddress,
		Mainnet:           cfg.Exchange.Mainnet,
		RequestsPerSecond: cfg.Exchange.RequestsPerSecond,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("Не удалось создать клиент биржи.")
	}
	if client.User() == "" {
		log.Fatal("Не задан адрес аккаунта: exchange.account_address или exchange.private_key.")
	}

	tracker, err := fills.OpenTracker(cfg.Notifications.StatePath, time.Now)
	if err != nil {
		entry := log.WithError(err).WithField("path", cfg.Notifications.StatePath)
		if errs.IsKind(err, errs.KindStateCorrupt) {
			entry.Fatal("Файл состояния уведомлений повреждён, запуск остановлен.")
		}
		entry.Fatal("Не удалось открыть состояние уведомлений.")
	}

	var notifier fills.Notifier
	if cfg.Runtime.DryRun || cfg.Telegram.Token == "" {
		log.Warn("Telegram не настроен или включён dry run, уведомления пишутся в лог.")
		notifier = telegram.NewLogNotifier(log)
	} else {
		notifier, err = telegram.New(telegram.Config{Token: cfg.Telegram.Token}, log)
		if err != nil {
			log.WithError(err).Fatal("Не удалось инициализировать Telegram.")
		}
	}

	stream := ws.New(ws.Config{URL: cfg.Exchange.WSURL}, log)

	monitor := fills.NewMonitor(fills.Options{
		User:           client.User(),
		ChatID:         cfg.Telegram.ChatID,
		PollInterval:   cfg.Notifications.PollInterval,
		BatchThreshold: cfg.Notifications.BatchThreshold,
	}, tracker, client, stream, notifier, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Runtime.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Runtime.MetricsAddr); err != nil {
				log.WithError(err).Error("Сервер метрик завершился с ошибкой.")
			}
		}()
	}

	if err := monitor.Start(ctx); err != nil {
		log.WithError(err).Fatal("Не удалось запустить монитор сделок.")
	}

	select {
	case <-sigCh:
	case <-monitor.Done():
		log.Error("Монитор сделок остановился, бот завершает работу.")
	}

	cancel()
	_ = stream.Close()

	log.Info("Бот остановлен.")
}
