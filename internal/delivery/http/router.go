package http

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"ticketbooth/internal/delivery/http/controllers"
	"ticketbooth/internal/delivery/http/middleware"
)

// NewRouter initializes the HTTP router with all application routes
func NewRouter(ticketController *controllers.TicketController, identity *middleware.IdentityIssuer) *http.ServeMux {
	mux := http.NewServeMux()

	// Issuance goes through the identity middleware so the daily throttle has
	// a key to claim.
	mux.HandleFunc("POST /tickets", identity.Wrap(ticketController.IssueTicket))

	// Redemption is registered for GET too: scanned QR URLs open in a browser.
	mux.HandleFunc("POST /redeem/{token}", ticketController.RedeemTicket)
	mux.HandleFunc("GET /redeem/{token}", ticketController.RedeemTicket)

	mux.HandleFunc("GET /tickets/{token}/qr", ticketController.TicketQR)

	// Reporting
	mux.HandleFunc("GET /stats", ticketController.Stats)
	mux.HandleFunc("GET /export", ticketController.Export)

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
