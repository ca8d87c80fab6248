package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"checkout-service/handlers"
	"checkout-service/internal/auth"
	"checkout-service/internal/cart"
	"checkout-service/internal/checkout"
	"checkout-service/internal/consul"
	"checkout-service/internal/orders"
	"checkout-service/internal/products"
	"checkout-service/internal/stores/kafka"
	"checkout-service/internal/stores/postgres"
	"checkout-service/pkg/logkey"
	"checkout-service/pkg/metrics"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/joho/godotenv"
)

func main() {
	if err := startApp(); err != nil {
		slog.Error("service failed to start", slog.String(logkey.ERROR, err.Error()))
		os.Exit(1)
	}
}

func startApp() error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on environment")
	}

	db, err := postgres.OpenDB()
	if err != nil {
		return fmt.Errorf("database setup: %w", err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	keyPEM, err := os.ReadFile(getEnv("AUTH_PUBLIC_KEY_FILE", "pubkey.pem"))
	if err != nil {
		return fmt.Errorf("reading auth public key: %w", err)
	}
	keys, err := auth.NewKeys(keyPEM)
	if err != nil {
		return fmt.Errorf("auth setup: %w", err)
	}

	cartConf, err := cart.NewConf(db)
	if err != nil {
		return fmt.Errorf("cart setup: %w", err)
	}
	productConf, err := products.NewConf(db)
	if err != nil {
		return fmt.Errorf("products setup: %w", err)
	}
	orderConf, err := orders.NewConf(db, &productConf)
	if err != nil {
		return fmt.Errorf("orders setup: %w", err)
	}

	txTimeout := time.Duration(getEnvInt("CHECKOUT_TX_TIMEOUT_MS", 5000)) * time.Millisecond
	txr, err := postgres.NewTxRunner(db, txTimeout)
	if err != nil {
		return fmt.Errorf("tx runner setup: %w", err)
	}

	policy := checkout.PricingPolicy{
		ShippingFee:        int64(getEnvInt("SHIPPING_FEE", 599)),
		TaxRateBasisPoints: int64(getEnvInt("TAX_RATE_BASIS_POINTS", 800)),
	}

	orchOpts := []checkout.OrchestratorOption{
		checkout.WithMetrics(metrics.NewCheckoutMetrics("checkout")),
		checkout.WithRetryPolicy(uint64(getEnvInt("CHECKOUT_MAX_ATTEMPTS", 3)), 25*time.Millisecond),
	}

	// Kafka is optional; the checkout core stays correct without events.
	var orderEvents handlers.OrderEvents
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		kafkaConf, err := kafka.NewConf([]string{brokers})
		if err != nil {
			slog.Warn("kafka unavailable, events disabled", slog.String(logkey.ERROR, err.Error()))
		} else {
			defer kafkaConf.Close()
			orchOpts = append(orchOpts, checkout.WithEventPublisher(kafkaConf))
			orderEvents = kafkaConf
		}
	}

	orch, err := checkout.NewOrchestrator(txr, &cartConf, &productConf, &orderConf,
		checkout.AutoApprove{}, policy, orchOpts...)
	if err != nil {
		return fmt.Errorf("orchestrator setup: %w", err)
	}

	port := getEnvInt("APP_PORT", 8085)

	if consulAddr := os.Getenv("CONSUL_HTTP_ADDR"); consulAddr != "" {
		client, err := consulapi.NewClient(&consulapi.Config{Address: consulAddr})
		if err != nil {
			slog.Warn("consul client setup failed", slog.String(logkey.ERROR, err.Error()))
		} else {
			host := getEnv("SERVICE_HOST", "localhost")
			serviceID := fmt.Sprintf("checkout-%s-%d", host, port)
			if err := consul.RegisterService(client, "checkout", serviceID, host, port); err != nil {
				slog.Warn("consul registration failed", slog.String(logkey.ERROR, err.Error()))
			} else {
				defer func() {
					if err := consul.DeregisterService(client, serviceID); err != nil {
						slog.Warn("consul deregistration failed", slog.String(logkey.ERROR, err.Error()))
					}
				}()
			}
		}
	}

	api := handlers.API("/v1", keys, &cartConf, &productConf, &orderConf, orch, orderEvents)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      api,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("checkout service listening", slog.Int("port", port))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		slog.Info("shutdown started", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
