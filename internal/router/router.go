package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fruitshop/orderdesk/internal/auth"
	"github.com/fruitshop/orderdesk/internal/config"
	"github.com/fruitshop/orderdesk/internal/enum"
	"github.com/fruitshop/orderdesk/internal/handler"
	"github.com/fruitshop/orderdesk/internal/logger"
	mw "github.com/fruitshop/orderdesk/internal/middleware"
	"github.com/fruitshop/orderdesk/internal/notify"
	"github.com/fruitshop/orderdesk/internal/ws"
)

// Deps are the wired components the console routes serve.
type Deps struct {
	Session       *auth.Session
	Verifier      handler.TokenVerifier
	Hub           *ws.Hub
	Board         handler.OrderBoard
	QR            handler.QRSurface
	Journal       handler.JournalReader
	Invoices      handler.InvoiceDownloader
	Notifications handler.NotificationInbox
	Bills         handler.BillViewer
	Rider         handler.RiderConfirmer
	Log           logger.Logger
}

// New creates a Chi router with all console routes wired up.
// Public routes come first; everything else needs the console session and
// the /admin tree additionally needs the admin role.
func New(cfg *config.Config, d Deps) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	sessionHandler := handler.NewSessionHandler(d.Session, d.Verifier, d.Log)
	sessionHandler.RegisterRoutes(r)

	// Rider page (the token is the credential)
	handler.NewRiderHandler(d.Rider).RegisterRoutes(r)

	// Protected routes (require the console session)
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireSession(d.Session))

		sessionHandler.RegisterProtectedRoutes(r)

		notificationHandler := handler.NewNotificationHandler(d.Notifications)
		r.Route("/notifications", notificationHandler.RegisterRoutes)

		r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			ws.ServeWS(d.Hub, notify.Room, d.Log, w, r)
		})

		billHandler := handler.NewBillHandler(d.Bills, d.Log)
		r.Route("/me", billHandler.RegisterRoutes)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))
			adminHandler := handler.NewAdminOrderHandler(d.Board, d.QR, d.Journal, d.Invoices, cfg.Dispatch.MaxPhotoBytes, d.Log)
			r.Route("/admin", adminHandler.RegisterRoutes)
		})
	})

	d.Log.Info("router initialized")
	return r
}
