package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/audiotailoc/commerce/internal/cart"
	"github.com/audiotailoc/commerce/internal/catalog"
	"github.com/audiotailoc/commerce/internal/config"
	"github.com/audiotailoc/commerce/internal/httpx"
	kafkax "github.com/audiotailoc/commerce/internal/kafka"
	"github.com/audiotailoc/commerce/internal/orders"
	"github.com/audiotailoc/commerce/internal/payments"
	"github.com/audiotailoc/commerce/internal/postgres"
	"github.com/audiotailoc/commerce/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RunMigrations {
		if err := postgres.RunMigrations(cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	// DB; a few retries cover the container racing postgres at startup
	var db *pgxpool.Pool
	err := postgres.WithRetry(ctx, 5, func(ctx context.Context) error {
		var err error
		db, err = postgres.Connect(ctx, cfg.PostgresDSN)
		return err
	})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per event topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pCancelled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCancelled, 1024)
	pCancelled.Start(ctx)
	pPaid := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentSucceeded, 1024)
	pPaid.Start(ctx)
	pFailed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentFailed, 1024)
	pFailed.Start(ctx)
	producers := []*kafkax.Producer{pCreated, pCancelled, pPaid, pFailed}

	// Repos & services
	catalogRepo := &catalog.Repo{DB: db}
	cartSvc := &cart.Service{
		Store:   &cart.Repo{DB: db},
		Catalog: catalogRepo,
		Redis:   rdb,
	}
	orderRepo := &orders.Repo{DB: db}
	paySvc := &payments.Service{
		Intents: &payments.Repo{DB: db},
		Orders:  orderRepo,
		Redis:   rdb,
		Clients: map[payments.Provider]payments.Client{
			payments.ProviderCOD: &payments.CODClient{ReturnURL: cfg.PaymentReturnURL},
			payments.ProviderVNPay: payments.NewVNPayClient(payments.VNPayConfig{
				TmnCode:    cfg.VNPayTmnCode,
				HashSecret: cfg.VNPayHashSecret,
				PayURL:     cfg.VNPayPayURL,
				ReturnURL:  cfg.PaymentReturnURL,
			}),
			payments.ProviderPayOS: payments.NewPayOSClient(payments.PayOSConfig{
				APIURL:      cfg.PayOSAPIURL,
				ClientID:    cfg.PayOSClientID,
				APIKey:      cfg.PayOSAPIKey,
				ChecksumKey: cfg.PayOSChecksumKey,
				ReturnURL:   cfg.PaymentReturnURL,
			}),
		},
	}

	// Router & handlers
	router := httpx.NewRouter()
	(&httpx.CatalogHandler{Store: catalogRepo}).Register(router)
	(&httpx.CartHandler{Cart: cartSvc}).Register(router)
	(&httpx.OrdersHandler{
		Store:             orderRepo,
		ProducerCreated:   pCreated,
		ProducerCancelled: pCancelled,
		Service:           cfg.ServiceName,
	}).Register(router)
	(&httpx.PaymentsHandler{
		Payments:       paySvc,
		ProducerPaid:   pPaid,
		ProducerFailed: pFailed,
		Service:        cfg.ServiceName,
	}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close() // stop intake, flush the inbox
	}
	cancel()
	for _, p := range producers {
		p.WaitClosed()
	}
}
