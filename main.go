package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"checkout-service/cache"
	"checkout-service/config"
	"checkout-service/consumers"
	"checkout-service/controllers"
	"checkout-service/database"
	"checkout-service/gateway"
	"checkout-service/ledger"
	"checkout-service/middlewares"
	"checkout-service/pricing"
	"checkout-service/rabbitmq"
	"checkout-service/reconciler"
)

func main() {
	cfg := config.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := database.Connect(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	rmq, err := rabbitmq.NewRabbitMQ(cfg)
	if err != nil {
		log.Fatalf("RabbitMQ initialization failed: %v", err)
	}
	defer rmq.Close()

	if err := rmq.SetupQueues(); err != nil {
		log.Fatalf("Failed to setup RabbitMQ queues: %v", err)
	}

	orders := ledger.NewLedger(db, cfg.OrderCodePrefix)
	payments := ledger.NewPaymentStore(db)
	stripeGateway := gateway.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.GatewayTimeout)

	rec := reconciler.New(reconciler.Deps{
		Calculator:        pricing.DefaultCalculator(),
		Orders:            orders,
		Payments:          payments,
		Gateway:           stripeGateway,
		Events:            cache.NewRedisGuard(redisClient),
		Publisher:         rmq,
		DefaultCurrency:   cfg.DefaultCurrency,
		PaymentCheckDelay: cfg.PaymentCheckDelay,
		WarnHook:          middlewares.RecordWebhookUnmatched,
	})

	consumers.StartOrderConsumer(rmq.Channel, cfg, rec)

	checkoutController := controllers.NewCheckoutController(rec)
	orderController := controllers.NewOrderController(orders)

	r := gin.Default()

	r.Use(middlewares.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// gateway callbacks authenticate by signature, not JWT
	r.POST("/webhook/gateway", checkoutController.Webhook)

	r.POST("/dead-letter", orderController.HandleDeadLetter)

	authGroup := r.Group("/api")
	authGroup.Use(middlewares.AuthMiddleware(cfg.JWTSecret))
	{
		authGroup.POST("/checkout/create-payment-intent", checkoutController.CreatePaymentIntent)
		authGroup.GET("/orders", orderController.GetUserOrders)
		authGroup.GET("/orders/:code", orderController.GetOrderDetails)
		authGroup.PUT("/orders/:code/status", orderController.UpdateOrderStatus)
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		log.Printf("Checkout service starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}
