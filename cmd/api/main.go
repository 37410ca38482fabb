package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/grocery-storefront/internal/config"
	"github.com/flicky/grocery-storefront/internal/discount"
	"github.com/flicky/grocery-storefront/internal/events"
	"github.com/flicky/grocery-storefront/internal/handler"
	"github.com/flicky/grocery-storefront/internal/middleware"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/payment"
	"github.com/flicky/grocery-storefront/internal/repository"
	"github.com/flicky/grocery-storefront/internal/service"
	"github.com/flicky/grocery-storefront/internal/token"
	"github.com/flicky/grocery-storefront/internal/worker"
)

func main() {
	bootLog := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	if cfg.DB.AutoMigrate {
		if err := repository.Migrate(ctx, dbPool); err != nil {
			log.Error("migrate database", "error", err)
			os.Exit(1)
		}
		log.Info("database migrated")
	}

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// RabbitMQ: one channel publishes, one consumes.
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	pubCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer pubCh.Close()

	if err := events.DeclareTopology(pubCh); err != nil {
		log.Error("setup RabbitMQ", "error", err)
		os.Exit(1)
	}

	consumeCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer consumeCh.Close()

	if err := consumeCh.Qos(1, 0, false); err != nil {
		log.Error("set QoS", "error", err)
		os.Exit(1)
	}
	log.Info("connected to RabbitMQ")

	publishers := events.Fanout{events.NewAMQPPublisher(pubCh)}

	// Kafka (optional)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := events.NewKafkaClient(cfg.Kafka.Brokers)
		if err != nil {
			log.Error("connect to Kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaClient.Close()
		publishers = append(publishers, events.NewKafkaPublisher(kafkaClient, cfg.Kafka.Topic))
		log.Info("Kafka publisher enabled", "topic", cfg.Kafka.Topic)
	}

	if cfg.Stripe.SecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY is empty, payment calls will fail")
	}
	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	discounts := discount.Default()
	tokens := token.NewService(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)
	cartRepo := repository.NewCartRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)
	addressRepo := repository.NewAddressRepository(dbPool)
	checkoutRepo := repository.NewCheckoutRepository(dbPool)

	// Services
	authSvc := service.NewAuthService(userRepo, tokens, log)
	userSvc := service.NewUserService(userRepo, log)
	notifier := worker.NewLogNotifier(log)
	resetSvc := service.NewPasswordResetService(userRepo, notifier, log)
	productSvc := service.NewProductService(productRepo, redisClient)
	cartSvc := service.NewCartService(cartRepo, productRepo, discounts)
	addressSvc := service.NewAddressService(addressRepo)
	orderSvc := service.NewOrderService(orderRepo, productRepo, addressRepo, userRepo, log)
	checkoutSvc := service.NewCheckoutService(
		cartRepo, addressRepo, orderRepo, checkoutRepo,
		gateway, discounts, service.NewRedisLocker(redisClient, log), publishers,
		service.CheckoutConfig{Currency: cfg.Stripe.Currency, MinAmount: cfg.Stripe.MinAmount},
		log,
	)

	// Handlers
	authH := handler.NewAuthHandler(authSvc, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL,
		handler.CookieConfig{Domain: cfg.JWT.CookieDomain, Secure: cfg.JWT.CookieSecure})
	userH := handler.NewUserHandler(userSvc)
	resetH := handler.NewPasswordResetHandler(resetSvc)
	productH := handler.NewProductHandler(productSvc)
	cartH := handler.NewCartHandler(cartSvc)
	discountH := handler.NewDiscountHandler(discounts)
	addressH := handler.NewAddressHandler(addressSvc)
	orderH := handler.NewOrderHandler(orderSvc)
	paymentH := handler.NewPaymentHandler(checkoutSvc)
	healthH := handler.NewHealthHandler(map[string]handler.Check{
		"postgres": handler.PostgresCheck(dbPool),
		"redis":    handler.RedisCheck(redisClient),
		"rabbitmq": handler.RabbitMQCheck(amqpConn),
	})

	// Worker
	settlementWorker := worker.NewSettlementWorker(consumeCh, worker.NewRedisDeduper(redisClient),
		notifier, log)

	// Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)

	authLimit := middleware.RateLimit(middleware.NewRedisCounter(redisClient), "auth",
		cfg.RateLimit.AuthMax, cfg.RateLimit.AuthWindow, log)
	signedIn := []gin.HandlerFunc{middleware.Authenticate(tokens), middleware.Authorize(userRepo)}
	adminOnly := []gin.HandlerFunc{middleware.Authenticate(tokens), middleware.Authorize(userRepo, model.RoleAdmin)}

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", authLimit, authH.Register)
		auth.POST("/login", authLimit, authH.Login)
		auth.POST("/refresh", authH.Refresh)
		auth.POST("/logout", append(signedIn, authH.Logout)...)
		auth.POST("/forgot-password", authLimit, resetH.Forgot)
		auth.POST("/verify-forgot-password-otp", authLimit, resetH.VerifyOTP)
		auth.POST("/reset-password", authLimit, resetH.Reset)

		users := v1.Group("/users")
		users.GET("/me", append(signedIn, userH.Me)...)
		users.PUT("/me", append(signedIn, userH.UpdateMe)...)
		users.GET("", append(adminOnly, userH.List)...)
		users.PATCH("/:id/status", append(adminOnly, userH.UpdateStatus)...)
		users.PATCH("/:id/role", append(adminOnly, userH.UpdateRole)...)

		products := v1.Group("/products")
		products.GET("", productH.List)
		products.GET("/:id", productH.GetByID)

		adminProducts := v1.Group("/admin/products", adminOnly...)
		adminProducts.GET("", productH.AdminList)
		adminProducts.GET("/:id", productH.AdminGetByID)
		adminProducts.POST("", productH.Create)
		adminProducts.PUT("/:id", productH.Update)
		adminProducts.DELETE("/:id", productH.Delete)

		cart := v1.Group("/cart", signedIn...)
		cart.GET("", cartH.View)
		cart.DELETE("", cartH.Clear)
		cart.POST("/items", cartH.AddLine)
		cart.PUT("/items/:id", cartH.UpdateLine)
		cart.DELETE("/items/:id", cartH.RemoveLine)

		v1.GET("/discounts/:code", append(signedIn, discountH.Preview)...)

		addresses := v1.Group("/addresses", signedIn...)
		addresses.GET("", addressH.List)
		addresses.POST("", addressH.Add)
		addresses.PUT("/:id", addressH.Update)
		addresses.DELETE("/:id", addressH.Delete)

		pay := v1.Group("/payment")
		pay.POST("/create-intent", append(signedIn, paymentH.CreateIntent)...)
		pay.POST("/confirm", append(signedIn, paymentH.Confirm)...)
		pay.POST("/webhook", paymentH.Webhook)

		orders := v1.Group("/orders")
		orders.GET("/my-orders", append(signedIn, orderH.MyOrders)...)
		orders.GET("/:orderId", append(signedIn, orderH.Get)...)
		orders.GET("", append(adminOnly, orderH.ListAll)...)
		orders.POST("/create", append(adminOnly, orderH.Create)...)
		orders.PATCH("/update-status", append(adminOnly, orderH.UpdateStatus)...)
		orders.DELETE("", append(adminOnly, orderH.Delete)...)
	}

	if err := settlementWorker.Start(ctx); err != nil {
		log.Error("start settlement worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	settlementWorker.Stop()
	time.Sleep(500 * time.Millisecond)
	cancel()
	log.Info("server stopped")
}
