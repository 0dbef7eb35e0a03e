package cmd

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"bus-ticketing/config"
	"bus-ticketing/handlers"
	"bus-ticketing/monitoring"
	"bus-ticketing/security"
	"bus-ticketing/services"
	"bus-ticketing/utils"

	_ "bus-ticketing/migrations"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v5"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
)

func Start() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.LoadConfig()

	app := pocketbase.New()

	// enable auto creation of migration files when making collection changes
	// in the Dashboard (only during development)
	isGoRun := strings.HasPrefix(os.Args[0], os.TempDir())
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: isGoRun,
	})

	redisClient := utils.NewRedisClient(cfg.RedisURL)

	var notifier services.Notifier = services.NopNotifier{}
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnCfg := pubnub.NewConfig()
		pnCfg.PublishKey = cfg.PubNubPublishKey
		pnCfg.SubscribeKey = cfg.PubNubSubscribeKey
		pnCfg.SecretKey = cfg.PubNubSecretKey
		notifier = services.NewPubNubNotifier(pubnub.NewPubNub(pnCfg))
	} else {
		log.Println("PubNub keys not configured, seat broadcasts disabled")
	}

	capacityService := services.NewCapacityService(app)
	lockService := services.NewLockService(redisClient, capacityService, notifier)
	sweeper := services.NewSweeper(redisClient, cfg.SweepInterval)
	eventPublisher := services.NewBookingEventPublisher(cfg.AmqpURL)
	bookingService := services.NewBookingService(app, lockService, capacityService, notifier, eventPublisher)

	rateLimiter := security.NewRateLimiter(redisClient, cfg.LockRequestsPerMinute, time.Minute)

	seatHandler := handlers.NewSeatHandler(lockService, capacityService, cfg.SeatHoldDuration, cfg.SeatHoldMax)
	bookingHandler := handlers.NewBookingHandler(app, bookingService)

	ctx, cancel := context.WithCancel(context.Background())

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		// Public seat map snapshot (auth optional, enriches the response)
		se.Router.GET("/api/v1/trips/{tripId}/seats", seatHandler.GetTripSeats)

		// Seat hold lifecycle
		se.Router.POST("/api/v1/seats/lock", seatHandler.LockSeats).
			Bind(apis.RequireAuth()).
			BindFunc(rateLimiter.LimitLockRequests)
		se.Router.POST("/api/v1/seats/unlock-batch", seatHandler.UnlockSeats).
			Bind(apis.RequireAuth())

		// Booking
		se.Router.POST("/api/v1/booking/confirm", bookingHandler.ConfirmBooking).
			Bind(apis.RequireAuth())
		se.Router.GET("/api/v1/booking/history", bookingHandler.GetBookingHistory).
			Bind(apis.RequireAuth())

		se.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		go sweeper.Start(ctx)

		if cfg.PaymentSubscribeKey != "" {
			paymentListener := services.NewPaymentListener(cfg, bookingService)
			go paymentListener.Start(ctx)
		} else {
			log.Println("Payment subscribe key not configured, payment listener disabled")
		}

		if cfg.EnableMetrics {
			go monitoring.NewMonitor(redisClient).Start(ctx)
			go startMetricsServer(cfg.MetricsPort)
		}

		log.Printf("Server starting on port %s (env: %s)", cfg.Port, cfg.Environment)
		return se.Next()
	})

	app.OnTerminate().BindFunc(func(te *core.TerminateEvent) error {
		log.Println("Shutting down background workers")
		cancel()
		return te.Next()
	})

	if err := app.Start(); err != nil {
		cancel()
		log.Fatal(err)
	}
}

func startMetricsServer(port string) {
	e := echo.New()
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: e,
	}
	log.Printf("Metrics server listening on :%s", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("Metrics server stopped: %v", err)
	}
}
