package controllers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"schoolcoop/config"
	"schoolcoop/database"
	"schoolcoop/middleware"
	"schoolcoop/services"
	"schoolcoop/utils"
)

// NewHandler собирает маршруты API с middleware
func NewHandler(db *database.Database, cfg *config.Config, notifier services.Notifier) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.RateLimitMiddleware(
		utils.NewRateLimiter(cfg.RateLimit.PerMinute, time.Minute),
		cfg.RateLimit.TrustedProxies,
	))

	authController := NewAuthController(db, cfg)
	jwtKey := []byte(authController.GetJWTKey())
	memberController := NewMemberController(db, notifier)
	ledgerController := NewLedgerController(db)
	loanController := NewLoanController(db, notifier)
	overdueController := NewOverdueController(db, notifier)
	dividendController := NewDividendController(db)

	// Публичные маршруты для аутентификации, регистрация после первой требует токен
	router.Handle("/api/auth/signUp", middleware.OptionalAuthMiddleware(jwtKey)(http.HandlerFunc(authController.SignUp))).Methods("POST")
	router.HandleFunc("/api/auth/signIn", authController.SignIn).Methods("POST")

	// Защищенные маршруты
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware(jwtKey))

	protected.HandleFunc("/metrics", Metrics).Methods("GET")

	protected.HandleFunc("/schools", memberController.CreateSchool).Methods("POST")
	protected.HandleFunc("/schools", memberController.ListSchools).Methods("GET")

	protected.HandleFunc("/members", memberController.Register).Methods("POST")
	protected.HandleFunc("/members", memberController.List).Methods("GET")
	protected.HandleFunc("/members/{id}", memberController.Get).Methods("GET")
	protected.HandleFunc("/members/{id}/commitments", memberController.SetCommitments).Methods("PUT")
	protected.HandleFunc("/members/{id}/close", memberController.Close).Methods("POST")

	protected.HandleFunc("/members/{id}/savings", ledgerController.RecordSaving).Methods("POST")
	protected.HandleFunc("/members/{id}/savings", ledgerController.ListSavings).Methods("GET")
	protected.HandleFunc("/savings/{id}/approve", ledgerController.ApproveSaving).Methods("POST")
	protected.HandleFunc("/savings/{id}/reject", ledgerController.RejectSaving).Methods("POST")

	protected.HandleFunc("/share-types", ledgerController.CreateShareType).Methods("POST")
	protected.HandleFunc("/share-types", ledgerController.ListShareTypes).Methods("GET")
	protected.HandleFunc("/members/{id}/shares", ledgerController.AllocateShares).Methods("POST")
	protected.HandleFunc("/members/{id}/shares", ledgerController.ListShares).Methods("GET")
	protected.HandleFunc("/shares/{id}/approve", ledgerController.ApproveShare).Methods("POST")

	protected.HandleFunc("/service-charges", ledgerController.CreateServiceCharge).Methods("POST")
	protected.HandleFunc("/service-charges", ledgerController.ListServiceCharges).Methods("GET")
	protected.HandleFunc("/service-charges/{id}/apply", ledgerController.ApplyServiceCharge).Methods("POST")
	protected.HandleFunc("/members/{id}/charges", ledgerController.PendingCharges).Methods("GET")

	protected.HandleFunc("/loans", loanController.IssueLoan).Methods("POST")
	protected.HandleFunc("/loans/{id}", loanController.GetLoan).Methods("GET")
	protected.HandleFunc("/loans/{id}/repay", loanController.RepayLoan).Methods("POST")
	protected.HandleFunc("/members/{id}/loans", loanController.GetMemberLoans).Methods("GET")

	protected.HandleFunc("/dividends", dividendController.Distribute).Methods("POST")
	protected.HandleFunc("/dividends", dividendController.List).Methods("GET")

	protected.HandleFunc("/overdue", overdueController.Report).Methods("GET")
	protected.HandleFunc("/overdue/{memberId}", overdueController.MemberOverdue).Methods("GET")
	protected.HandleFunc("/overdue/{memberId}/catch-up", overdueController.CatchUp).Methods("POST")

	return middleware.CORSMiddleware(middleware.RecoveryMiddleware(router))
}
