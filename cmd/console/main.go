package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fruitshop/orderdesk/internal/auth"
	"github.com/fruitshop/orderdesk/internal/bills"
	"github.com/fruitshop/orderdesk/internal/config"
	"github.com/fruitshop/orderdesk/internal/dashboard"
	"github.com/fruitshop/orderdesk/internal/dispatch"
	"github.com/fruitshop/orderdesk/internal/journal"
	"github.com/fruitshop/orderdesk/internal/logger"
	"github.com/fruitshop/orderdesk/internal/notify"
	"github.com/fruitshop/orderdesk/internal/orderapi"
	"github.com/fruitshop/orderdesk/internal/rider"
	"github.com/fruitshop/orderdesk/internal/router"
	"github.com/fruitshop/orderdesk/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewZapLogger(cfg.App.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openJournal(ctx, cfg.Journal, log)
	defer closeStore()

	hub := ws.NewHub()
	go hub.Run(ctx)

	session := auth.NewSession(cfg.Server.JWTSecret)
	client := orderapi.NewClient(cfg.Backend.BaseURL, session, log, orderapi.WithTimeout(cfg.Backend.Timeout))
	inbox := notify.NewInbox(hub, notify.DefaultLimit)

	manager := dispatch.NewManager(client, inbox, nil, cfg.Dispatch.PublicAppURL,
		dispatch.WithInterval(cfg.Dispatch.PollInterval),
		dispatch.WithJournal(store),
		dispatch.WithPublisher(hub),
		dispatch.WithLogger(log),
		dispatch.WithActor(session.Username),
	)
	defer manager.Shutdown()

	board := dashboard.New(client, manager, inbox,
		dashboard.WithJournal(store),
		dashboard.WithPublisher(hub),
		dashboard.WithLogger(log),
		dashboard.WithMaxPhotoBytes(cfg.Dispatch.MaxPhotoBytes),
		dashboard.WithActor(session.Username),
	)
	manager.SetReloader(board)

	r := router.New(cfg, router.Deps{
		Session:       session,
		Verifier:      client,
		Hub:           hub,
		Board:         board,
		QR:            manager,
		Journal:       store,
		Invoices:      client,
		Notifications: inbox,
		Bills:         bills.NewViewer(client, session),
		Rider:         rider.NewConsumer(client, log),
		Log:           log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("console listening",
			logger.String("addr", srv.Addr),
			logger.String("backend", cfg.Backend.BaseURL),
			logger.String("env", cfg.App.Env),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", logger.Error(err))
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", logger.Error(err))
	}
}

// openJournal uses Postgres when DATABASE_URL is set and an in-memory
// journal otherwise.
func openJournal(ctx context.Context, cfg config.JournalConfig, log logger.Logger) (journal.Store, func()) {
	if cfg.DatabaseURL == "" {
		log.Info("journal: in-memory")
		return journal.NewMemoryStore(0), func() {}
	}

	pool, err := journal.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("journal: postgres connection failed", logger.Error(err))
	}
	store := journal.NewPGStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		log.Fatal("journal: schema setup failed", logger.Error(err))
	}
	log.Info("journal: postgres")
	return store, pool.Close
}
