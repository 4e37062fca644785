package controllers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"ticketbooth/internal/delivery/http/helpers"
	"ticketbooth/internal/delivery/http/middleware"
	"ticketbooth/internal/domain"
)

// tokenRegex matches the syntax of minted redemption tokens. Anything else is
// treated as an unknown ticket without touching the store.
var tokenRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{20,64}$`)

// qrImageSize is the edge length in pixels of the generated QR PNG.
const qrImageSize = 256

type TicketController struct {
	Logger   *slog.Logger
	Service  domain.TicketService
	Codec    domain.TokenCodec
	QR       domain.QRRenderer
	Exporter domain.TicketExporter
}

func NewTicketController(
	logger *slog.Logger,
	service domain.TicketService,
	codec domain.TokenCodec,
	qr domain.QRRenderer,
	exporter domain.TicketExporter,
) *TicketController {
	return &TicketController{
		Logger:   logger,
		Service:  service,
		Codec:    codec,
		QR:       qr,
		Exporter: exporter,
	}
}

// IssueTicketResponse is the success payload for POST /tickets.
type IssueTicketResponse struct {
	Token         string    `json:"token"`
	RedemptionURL string    `json:"redemption_url"`
	QRImagePath   string    `json:"qr_image_path"`
	IssuedAt      time.Time `json:"issued_at"`
}

// RedeemTicketResponse is the payload for the redeem endpoint. RedeemedNow is
// true only for the call that performed the transition; on an
// already-redeemed ticket RedeemedAt carries the original timestamp.
type RedeemTicketResponse struct {
	Token       string     `json:"token"`
	RedeemedNow bool       `json:"redeemed_now"`
	IssuedAt    time.Time  `json:"issued_at"`
	RedeemedAt  *time.Time `json:"redeemed_at"`
}

// IssueTicket godoc
// @Summary Issue a ticket for the requesting visitor
// @Description Issues at most one ticket per visitor identity per calendar day (reference timezone). Returns the redemption token, the redemption URL, and the path of the scannable QR image.
// @Tags tickets
// @Produce json
// @Success 201 {object} helpers.APIResponse{data=controllers.IssueTicketResponse}
// @Failure 409 {object} helpers.APIResponse "error.code: duplicate_issuance"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /tickets [post]
func (c *TicketController) IssueTicket(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		c.Logger.ErrorContext(r.Context(), "identity missing from request context", "path", r.URL.Path)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "identity unavailable")
		return
	}

	ticket, err := c.Service.Issue(r.Context(), identity)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateIssuance) {
			helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeDuplicateIssuance, "a ticket was already issued today, try again tomorrow")
			return
		}
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "could not issue ticket")
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusCreated, IssueTicketResponse{
		Token:         ticket.Token,
		RedemptionURL: c.Codec.RedemptionURL(ticket.Token),
		QRImagePath:   fmt.Sprintf("/tickets/%s/qr", ticket.Token),
		IssuedAt:      ticket.IssuedAt,
	})
}

// RedeemTicket godoc
// @Summary Redeem a ticket
// @Description Redeems the ticket exactly once. Exactly one concurrent caller gets 200 with redeemed_now=true; later (or losing) callers get 409 with the original redemption timestamp. Registered for GET as well so scanned QR URLs work directly in a browser.
// @Tags tickets
// @Produce json
// @Param token path string true "Redemption token"
// @Success 200 {object} helpers.APIResponse{data=controllers.RedeemTicketResponse} "Redeemed by this call"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse{data=controllers.RedeemTicketResponse} "Already redeemed; data.redeemed_at is the original timestamp"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /redeem/{token} [post]
func (c *TicketController) RedeemTicket(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if !tokenRegex.MatchString(token) {
		helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "invalid ticket")
		return
	}

	ticket, redeemedNow, err := c.Service.Redeem(r.Context(), token)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "invalid ticket")
			return
		}
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "could not redeem ticket")
		return
	}

	resp := RedeemTicketResponse{
		Token:       ticket.Token,
		RedeemedNow: redeemedNow,
		IssuedAt:    ticket.IssuedAt,
		RedeemedAt:  ticket.RedeemedAt,
	}
	if redeemedNow {
		helpers.WriteJSONSuccess(w, http.StatusOK, resp)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusConflict, resp)
}

// TicketQR godoc
// @Summary QR image for a ticket's redemption URL
// @Description Returns a PNG QR code encoding the redemption URL. Unknown tokens get 404 so the endpoint cannot be used to mint scannable codes for guessed tokens.
// @Tags tickets
// @Produce png
// @Param token path string true "Redemption token"
// @Success 200 {file} file
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /tickets/{token}/qr [get]
func (c *TicketController) TicketQR(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if !tokenRegex.MatchString(token) {
		helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "invalid ticket")
		return
	}

	ticket, err := c.Service.GetByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "invalid ticket")
			return
		}
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "could not load ticket")
		return
	}

	png, err := c.QR.RenderPNG(c.Codec.RedemptionURL(ticket.Token), qrImageSize)
	if err != nil {
		c.Logger.ErrorContext(r.Context(), "qr render failed", "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "could not render qr code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// Stats godoc
// @Summary Aggregate issuance/redemption counts
// @Description Returns tickets bucketed by day and by day+hour in the reference timezone, plus the overall redeemed split. An empty store yields empty buckets.
// @Tags stats
// @Produce json
// @Success 200 {object} helpers.APIResponse{data=domain.StatsSnapshot}
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /stats [get]
func (c *TicketController) Stats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := c.Service.StatsSnapshot(r.Context())
	if err != nil {
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "could not compute stats")
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, snapshot)
}

// Export godoc
// @Summary Download the full ticket history
// @Description Streams every ticket record, ordered by issuance time, as a CSV attachment.
// @Tags stats
// @Produce text/csv
// @Success 200 {file} file
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /export [get]
func (c *TicketController) Export(w http.ResponseWriter, r *http.Request) {
	tickets, err := c.Service.Export(r.Context())
	if err != nil {
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "could not export tickets")
		return
	}
	w.Header().Set("Content-Type", c.Exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.Exporter.Filename()))
	w.WriteHeader(http.StatusOK)
	if err := c.Exporter.Write(w, tickets); err != nil {
		// Headers are already gone; all we can do is log.
		c.Logger.ErrorContext(r.Context(), "export write failed", "err", err)
	}
}
