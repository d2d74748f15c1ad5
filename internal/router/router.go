package router

import (
	"net/http"

	"github.com/atelierly/backend/internal/auth"
	"github.com/atelierly/backend/internal/handlers"
	"github.com/atelierly/backend/internal/middleware"
	"github.com/atelierly/backend/internal/models"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Deps bundles everything the router mounts.
type Deps struct {
	Auth    *auth.Handler
	Account *handlers.AccountHandler
	Jobs    *handlers.JobHandler
	Escrow  *handlers.EscrowHandler
	Topups  *handlers.TopupHandler

	Authenticate Middleware
	SpendLimit   Middleware
}

// New returns the API handler serving everything under /api/v1. Auth routes
// and the processor webhook are public; all other routes require a bearer
// token, and the arbitration routes additionally require the arbiter role.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	const base = "/api/v1"

	mux.HandleFunc("POST "+base+"/auth/register", d.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", d.Auth.Login)
	mux.HandleFunc("POST "+base+"/topups/confirm", d.Topups.Confirm)

	protect := func(h http.HandlerFunc) http.Handler {
		return d.Authenticate(h)
	}
	arbiter := middleware.RequireRole(models.RoleArbiter)

	mux.Handle("GET "+base+"/account", protect(d.Account.Get))
	mux.Handle("PATCH "+base+"/account/settings", protect(d.Account.UpdateSettings))
	mux.Handle("GET "+base+"/transactions", protect(d.Account.ListTransactions))
	mux.Handle("POST "+base+"/transfers", protect(d.Account.Transfer))
	mux.Handle("POST "+base+"/topups", protect(d.Topups.Create))

	mux.Handle("POST "+base+"/jobs", protect(d.Jobs.Create))
	mux.Handle("GET "+base+"/jobs", protect(d.Jobs.List))
	mux.Handle("GET "+base+"/jobs/{id}", protect(d.Jobs.Get))
	mux.Handle("GET "+base+"/jobs/{id}/submissions", protect(d.Jobs.ListSubmissions))

	mux.Handle("POST "+base+"/jobs/{id}/hire", d.Authenticate(d.SpendLimit(http.HandlerFunc(d.Escrow.Hire))))
	mux.Handle("POST "+base+"/jobs/{id}/submissions", protect(d.Escrow.SubmitWork))
	mux.Handle("POST "+base+"/jobs/{id}/revision", protect(d.Escrow.RequestRevision))
	mux.Handle("POST "+base+"/jobs/{id}/approve", protect(d.Escrow.Approve))
	mux.Handle("POST "+base+"/jobs/{id}/dispute", protect(d.Escrow.Dispute))
	mux.Handle("POST "+base+"/jobs/{id}/cancel", protect(d.Escrow.Cancel))
	mux.Handle("POST "+base+"/jobs/{id}/resolve", d.Authenticate(arbiter(http.HandlerFunc(d.Escrow.ResolveDispute))))

	mux.Handle("GET "+base+"/refund-requests", d.Authenticate(arbiter(http.HandlerFunc(d.Escrow.ListRefundRequests))))
	mux.Handle("POST "+base+"/refund-requests/{id}/resolve", d.Authenticate(arbiter(http.HandlerFunc(d.Escrow.ResolveRefundRequest))))

	return mux
}
