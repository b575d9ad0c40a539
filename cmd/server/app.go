package main

import (
	"net/http"
	"time"

	"github.com/diewo77/go-workshop/internal/handlers"
	"github.com/diewo77/go-workshop/internal/httpx"
	"github.com/diewo77/go-workshop/internal/services"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux *http.ServeMux
	db  *gorm.DB
	log logrus.FieldLogger

	orders  *handlers.OrderHandler
	parties *handlers.PartyHandler
	ledger  *handlers.LedgerHandler
	cashbox *handlers.CashboxHandler
	reports *handlers.ReportHandler
	catalog *handlers.CatalogHandler
}

// NewApp wires the services and handlers over db.
func NewApp(db *gorm.DB, clock services.Clock, lockTimeout time.Duration, log logrus.FieldLogger) *App {
	ledger := services.NewLedgerService(db, clock, log)
	parties := services.NewPartyResolver(db, log)
	orders := services.NewOrderService(db, parties, services.NewTransitionNotifier(clock, log), clock, log)
	cashbox := services.NewCashboxManager(db, ledger, clock, lockTimeout, log)

	app := &App{
		mux:     http.NewServeMux(),
		db:      db,
		log:     log,
		orders:  handlers.NewOrderHandler(orders, services.NewPaymentLedger(db, clock, log), log),
		parties: handlers.NewPartyHandler(parties, log),
		ledger:  handlers.NewLedgerHandler(ledger, log),
		cashbox: handlers.NewCashboxHandler(cashbox, clock, log),
		reports: handlers.NewReportHandler(services.NewReportingEngine(db, log), log),
		catalog: handlers.NewCatalogHandler(services.NewReferenceGuard(db, log), log),
	}
	app.setupRoutes()
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *App) setupRoutes() {
	a.mux.HandleFunc("GET /healthz", a.health)

	// Parties
	a.mux.HandleFunc("POST /parties/resolve", a.parties.Resolve)

	// Work orders and payments
	a.mux.HandleFunc("GET /orders", a.orders.List)
	a.mux.HandleFunc("POST /orders", a.orders.Create)
	a.mux.HandleFunc("GET /orders/{id}", a.orders.Get)
	a.mux.HandleFunc("POST /orders/{id}", a.orders.Update)
	a.mux.HandleFunc("POST /orders/{id}/delete", a.orders.Delete)
	a.mux.HandleFunc("GET /orders/{id}/balance", a.orders.Balance)
	a.mux.HandleFunc("POST /orders/{id}/payments", a.orders.AddPayment)
	a.mux.HandleFunc("POST /payments/{id}/paid", a.orders.SetPaid)

	// Ledger
	a.mux.HandleFunc("GET /ledger/movements", a.ledger.List)
	a.mux.HandleFunc("POST /ledger/movements", a.ledger.Record)
	a.mux.HandleFunc("POST /ledger/movements/{id}/reverse", a.ledger.Reverse)

	// Daily cashbox
	a.mux.HandleFunc("GET /cashbox", a.cashbox.List)
	a.mux.HandleFunc("POST /cashbox/open", a.cashbox.Open)
	a.mux.HandleFunc("POST /cashbox/close", a.cashbox.Close)
	a.mux.HandleFunc("POST /cashbox/petty-cash", a.cashbox.PettyCash)
	a.mux.HandleFunc("GET /cashbox/{date}", a.cashbox.Get)

	// Reports
	a.mux.HandleFunc("GET /reports/{name}", a.reports.Report)

	// Catalog and party deletion guard
	a.mux.HandleFunc("GET /catalog/{kind}/{id}/references", a.catalog.References)
	a.mux.HandleFunc("POST /catalog/{kind}/{id}/delete", a.catalog.Delete)
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		a.log.WithError(err).Warn("health check failed")
		httpx.JSONError(w, http.StatusServiceUnavailable, "unavailable", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withLogging tags each request with an X-Request-ID and logs it once served.
func withLogging(next http.Handler, log logrus.FieldLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start),
		}).Info("request")
	})
}
