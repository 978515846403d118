package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/writerlane/agreements-backend/internal/config"
	"github.com/writerlane/agreements-backend/internal/currency"
	"github.com/writerlane/agreements-backend/internal/db"
	"github.com/writerlane/agreements-backend/internal/goroutine"
	httpHandlers "github.com/writerlane/agreements-backend/internal/http/handlers"
	httpRouter "github.com/writerlane/agreements-backend/internal/http/router"
	"github.com/writerlane/agreements-backend/internal/logger"
	"github.com/writerlane/agreements-backend/internal/recon"
	"github.com/writerlane/agreements-backend/internal/repository"
	"github.com/writerlane/agreements-backend/internal/service"
	"github.com/writerlane/agreements-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Redis: флаги протокола синхронизации и канал конвергенции.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Log.Warnf("main: redis недоступен, флаги и конвергенция деградируют: %v", err)
	}

	flagStore := recon.NewRedisFlagStore(redisClient)
	broadcaster := recon.NewBroadcaster(redisClient)

	// Таблица курсов: дефолтные значения сразу, обновление по расписанию.
	rates := currency.NewTable()
	if cfg.RatesURL != "" {
		rateSource := currency.NewHTTPRateSource(cfg.RatesURL)
		goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
			ticker := time.NewTicker(cfg.RatesRefreshInterval)
			defer ticker.Stop()
			for {
				if err := rates.Refresh(ctx, rateSource); err != nil {
					logger.Log.Warnf("main: обновление курсов не удалось: %v", err)
				}
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		})
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	agreementRepo := repository.NewAgreementRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Вебсокеты.
	hub := ws.NewHub(ctx)
	goroutine.SafeGo(hub.Run)

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	notificationService := service.NewNotificationService(notificationRepo)
	hub.SetNotificationSaver(ws.NewNotificationServiceAdapter(notificationService))

	agreementService := service.NewAgreementService(agreementRepo, hub, broadcaster, flagStore)
	paymentService := service.NewPaymentService(agreementRepo, hub, broadcaster, flagStore)
	financialsService := service.NewFinancialsService(agreementRepo, rates, flagStore)

	paymentPool, err := service.NewPaymentPool(paymentService, cfg.PaymentPoolSize)
	if err != nil {
		log.Fatalf("main: не удалось создать пул обработки платежей: %v", err)
	}
	defer paymentPool.Release()

	// Сессии сведения подключённых пользователей. Ошибки сведения уходят
	// клиенту как сигнал к ручному обновлению.
	reconOpts := recon.DefaultOptions()
	reconOpts.Debounce = cfg.DebounceWindow
	reconOpts.PollInterval = cfg.RefreshPollInterval
	sessionManager := recon.NewSessionManager(ctx, flagStore, reconOpts, func(userID uuid.UUID, err error) {
		_ = hub.BroadcastToUser(userID, "recon.error", map[string]string{"error": "не удалось обновить данные, обновите вручную"})
	})
	defer sessionManager.Shutdown()

	// События конвергенции уходят в сессии сведения; клиентам по ws
	// ретранслируются только чужие, свои инстанс уже доставил сам.
	broadcaster.Subscribe(ctx, func(userID uuid.UUID, ev recon.Event, remote bool) {
		sessionManager.Dispatch(userID, ev)
		if !remote {
			return
		}
		if err := hub.BroadcastToUser(userID, string(ev.Type), ev); err != nil {
			logger.Log.Warnf("main: доставка события конвергенции не удалась: %v", err)
		}
	})

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService, flagStore)
	agreementHandler := httpHandlers.NewAgreementHandler(agreementService)
	paymentHandler := httpHandlers.NewPaymentHandler(paymentPool)
	financialsHandler := httpHandlers.NewFinancialsHandler(financialsService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager, sessionManager, agreementRepo)
	healthHandler := httpHandlers.NewHealthHandler(dbConn, redisClient)

	// Роутер.
	engine := httpRouter.SetupRouter(
		cfg,
		authHandler,
		agreementHandler,
		paymentHandler,
		financialsHandler,
		notificationHandler,
		wsHandler,
		healthHandler,
		tokenManager,
	)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
