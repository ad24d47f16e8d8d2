package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"vitrine_back_end/internal/cache"
	"vitrine_back_end/internal/cart"
	"vitrine_back_end/internal/catalog"
	"vitrine_back_end/internal/config"
	"vitrine_back_end/internal/database"
	"vitrine_back_end/internal/events"
	"vitrine_back_end/internal/handlers"
	"vitrine_back_end/internal/inventory"
	"vitrine_back_end/internal/journal"
	"vitrine_back_end/internal/notify"
	"vitrine_back_end/internal/order"
	"vitrine_back_end/internal/payment"
	"vitrine_back_end/internal/reconcile"
	"vitrine_back_end/internal/routes"
	"vitrine_back_end/internal/services"
	"vitrine_back_end/internal/store/memory"
)

// stores regroupe les implémentations de persistance choisies par STORE_DRIVER.
type stores struct {
	products     catalog.Repository
	carts        cart.Repository
	orders       order.Repository
	reservations inventory.Reservations
	close        func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Configuration invalide: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := database.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer rdb.Close()
	kv := cache.New(rdb)

	st, err := openStores(ctx, cfg, kv)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer st.close()

	minioClient, err := database.ConnectMinIO(ctx, cfg.MinIO)
	if err != nil {
		log.Printf("⚠️ MinIO indisponible, images désactivées: %v", err)
	}
	images := services.NewImageStore(minioClient, cfg.MinIO.Bucket, cfg.MinIO.URLExpiry)

	var (
		recorder journal.Recorder = journal.NopRecorder{}
		auditor  journal.Auditor  = journal.NopRecorder{}
	)
	if session, err := database.ConnectScylla(cfg.Scylla); err != nil {
		log.Printf("⚠️ ScyllaDB indisponible, journal désactivé: %v", err)
	} else if session != nil {
		defer session.Close()
		if j, err := journal.NewScyllaJournal(session); err != nil {
			log.Printf("⚠️ %v", err)
		} else {
			recorder, auditor = j, j
		}
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka)
		defer kp.Close()
		publisher = kp
		log.Printf("✅ Événements de commande publiés sur Kafka (%s)", cfg.Kafka.Topic)
	}

	notifier := cart.NewRedisNotifier(kv)
	carts := cart.NewManager(st.carts, st.products, notifier)
	orders := order.NewService(st.orders, st.carts, notifier)

	gateway := payment.NewStripeGateway(cfg.Stripe, cfg.Checkout)
	adapter := payment.NewAdapter(gateway, carts, st.reservations, payment.AdapterOptions{
		ReservationTTL:   cfg.Checkout.ReservationTTL,
		ReservationGrace: cfg.Checkout.ReservationGrace,
		Images:           images,
	})
	coordinator := reconcile.NewCoordinator(orders, st.reservations, adapter, reconcile.Options{
		Dedup:     kv,
		Publisher: publisher,
		Journal:   recorder,
		Mailer:    notify.NewMailer(cfg.SMTP),
	})

	r := gin.Default()
	routes.RegisterRoutes(r, routes.Deps{
		Cart:           handlers.NewCartHandler(carts, images),
		Payment:        handlers.NewPaymentHandler(adapter, coordinator),
		Order:          handlers.NewOrderHandler(orders),
		Admin:          handlers.NewAdminHandler(coordinator, st.products),
		CartEvents:     notifier,
		RateLimit:      kv,
		Audit:          auditor,
		JWTSecret:      []byte(cfg.JWT.Secret),
		AllowedOrigins: cfg.AllowedOrigins,
		SecureCookies:  os.Getenv("GIN_MODE") == gin.ReleaseMode,
		CartRateLimit:  cfg.Checkout.CartRateLimit,
		CartRateWindow: cfg.Checkout.CartRateWindow,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		inventory.NewSweeper(st.reservations, cfg.Checkout.SweepInterval).Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Println("🚀 Serveur Vitrine lancé sur le port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Println("🛑 Arrêt du serveur...")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("❌ %v", err)
	}
	coordinator.Wait()
	log.Println("👋 Serveur arrêté")
}

func openStores(ctx context.Context, cfg *config.Config, kv *cache.Store) (*stores, error) {
	if cfg.StoreDriver == "memory" {
		log.Println("⚠️ STORE_DRIVER=memory, données perdues à l'arrêt")
		m := memory.New()
		return &stores{
			products:     m.Catalog(),
			carts:        m.Carts(),
			orders:       m.Orders(),
			reservations: m.Reservations(),
			close:        func() {},
		}, nil
	}

	if err := database.RunMigrations(cfg.PostgresDSN); err != nil {
		return nil, err
	}
	pool, err := database.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	products := catalog.NewCachedReader(catalog.NewPostgresRepository(pool), kv)
	return &stores{
		products:     products,
		carts:        cart.NewPostgresRepository(pool),
		orders:       order.NewPostgresRepository(pool, products),
		reservations: inventory.NewPostgresReservations(pool, products),
		close:        pool.Close,
	}, nil
}
