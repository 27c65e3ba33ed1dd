package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/domain"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
	"github.com/robertarktes/ticket-waitlist/internal/rateLimit"
	"github.com/robertarktes/ticket-waitlist/internal/waitlist"
	"github.com/shopspring/decimal"
)

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

type Handlers struct {
	svc       *waitlist.Service
	logger    observability.Logger
	limiter   *rateLimit.RateLimiter
	joinLimit int
	checks    map[string]ReadyCheck
}

func NewHandlers(svc *waitlist.Service, logger observability.Logger) *Handlers {
	return &Handlers{svc: svc, logger: logger, checks: map[string]ReadyCheck{}}
}

// WithJoinLimit caps joins per user per minute. A nil limiter disables it.
func (h *Handlers) WithJoinLimit(rl *rateLimit.RateLimiter, perMinute int) *Handlers {
	h.limiter = rl
	h.joinLimit = perMinute
	return h
}

// AddReadyCheck registers a dependency probed by /v1/readyz.
func (h *Handlers) AddReadyCheck(name string, check ReadyCheck) *Handlers {
	h.checks[name] = check
	return h
}

type eventResponse struct {
	ID           uuid.UUID `json:"id"`
	TotalTickets int       `json:"total_tickets"`
	Cancelled    bool      `json:"cancelled"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toEventResponse(e domain.Event) eventResponse {
	return eventResponse{
		ID:           e.ID,
		TotalTickets: e.TotalTickets,
		Cancelled:    e.Cancelled,
		Version:      e.Version,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

type entryResponse struct {
	ID             uuid.UUID          `json:"id"`
	EventID        uuid.UUID          `json:"event_id"`
	UserID         string             `json:"user_id"`
	Status         domain.EntryStatus `json:"status"`
	OfferExpiresAt *time.Time         `json:"offer_expires_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

func toEntryResponse(e domain.WaitingListEntry) entryResponse {
	return entryResponse{
		ID:             e.ID,
		EventID:        e.EventID,
		UserID:         e.UserID,
		Status:         e.Status,
		OfferExpiresAt: e.OfferExpiresAt,
		CreatedAt:      e.CreatedAt,
	}
}

type ticketResponse struct {
	ID          uuid.UUID           `json:"id"`
	EventID     uuid.UUID           `json:"event_id"`
	UserID      string              `json:"user_id"`
	EntryID     uuid.UUID           `json:"entry_id"`
	Status      domain.TicketStatus `json:"status"`
	PurchasedAt time.Time           `json:"purchased_at"`
	PaymentRef  string              `json:"payment_ref"`
	Amount      decimal.Decimal     `json:"amount"`
}

func toTicketResponse(t domain.Ticket) ticketResponse {
	return ticketResponse{
		ID:          t.ID,
		EventID:     t.EventID,
		UserID:      t.UserID,
		EntryID:     t.EntryID,
		Status:      t.Status,
		PurchasedAt: t.PurchasedAt,
		PaymentRef:  t.PaymentRef,
		Amount:      t.Amount,
	}
}

func toTicketList(tickets []domain.Ticket) []ticketResponse {
	out := make([]ticketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, toTicketResponse(t))
	}
	return out
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID           uuid.UUID `json:"id"`
		TotalTickets int       `json:"total_tickets"`
	}
	if !decode(w, r, &req) {
		return
	}
	event, err := h.svc.CreateEvent(r.Context(), req.ID, req.TotalTickets)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(event))
}

func (h *Handlers) UpdateCapacity(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	var req struct {
		TotalTickets int `json:"total_tickets"`
	}
	if !decode(w, r, &req) {
		return
	}
	event, err := h.svc.UpdateCapacity(r.Context(), eventID, req.TotalTickets)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(event))
}

func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	avail, err := h.svc.Availability(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event_id":        avail.EventID,
		"total_tickets":   avail.TotalTickets,
		"purchased_count": avail.PurchasedCount,
		"active_offers":   avail.ActiveOffers,
		"remaining":       avail.Remaining(),
		"sold_out":        avail.SoldOut(),
	})
}

func (h *Handlers) CancelEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	if err := h.svc.CancelEvent(r.Context(), eventID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"event_id": eventID, "cancelled": true})
}

func (h *Handlers) Join(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if h.limiter != nil && req.UserID != "" &&
		!h.limiter.Allow(r.Context(), "join:"+req.UserID, h.joinLimit, time.Minute) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	res, err := h.svc.Join(r.Context(), eventID, req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": res.Success,
		"status":  res.Status,
		"message": res.Message,
		"entry":   toEntryResponse(res.Entry),
	})
}

func (h *Handlers) QueuePosition(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	pos, err := h.svc.GetQueuePosition(r.Context(), eventID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if pos == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"in_queue": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"in_queue": true,
		"position": pos.Position,
		"entry":    toEntryResponse(pos.Entry),
	})
}

func (h *Handlers) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	granted, err := h.svc.ProcessQueue(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"granted": granted})
}

func (h *Handlers) ReleaseOffer(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	entryID, ok := uuidParam(w, r, "entryID")
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ReleaseOffer(r.Context(), eventID, entryID, req.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Purchase(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	entryID, ok := uuidParam(w, r, "entryID")
	if !ok {
		return
	}
	var req struct {
		UserID     string          `json:"user_id"`
		PaymentRef string          `json:"payment_ref"`
		Amount     decimal.Decimal `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	ticket, err := h.svc.Purchase(r.Context(), waitlist.PurchaseInput{
		EventID: eventID,
		UserID:  req.UserID,
		EntryID: entryID,
		Payment: domain.PaymentConfirmation{Reference: req.PaymentRef, Amount: req.Amount},
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTicketResponse(ticket))
}

func (h *Handlers) EventTickets(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	tickets, err := h.svc.EventTickets(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketList(tickets))
}

func (h *Handlers) Refund(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, h.svc.Refund)
}

func (h *Handlers) MarkTicketUsed(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, h.svc.MarkTicketUsed)
}

func (h *Handlers) CancelTicket(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, h.svc.CancelTicket)
}

func (h *Handlers) ticketAction(w http.ResponseWriter, r *http.Request, action func(context.Context, uuid.UUID) (domain.Ticket, error)) {
	ticketID, ok := uuidParam(w, r, "ticketID")
	if !ok {
		return
	}
	ticket, err := action(r.Context(), ticketID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(ticket))
}

func (h *Handlers) UserTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.svc.UserTickets(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketList(tickets))
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WithField("dependency", name).WithError(err).Warn("readiness check failed")
			http.Error(w, name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

// statusFor maps an error class to its HTTP status.
func statusFor(err error) int {
	switch domain.ClassOf(err) {
	case domain.ErrValidation:
		return http.StatusBadRequest
	case domain.ErrConflict:
		return http.StatusConflict
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrPreconditionFailed:
		return http.StatusPreconditionFailed
	case domain.ErrExternalDependency:
		return http.StatusFailedDependency
	}
	return http.StatusInternalServerError
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		loggerFrom(r.Context(), h.logger).WithError(err).Error("request failed")
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	body := map[string]string{"error": err.Error()}
	if c := domain.ClassOf(err); c != "" {
		body["class"] = string(c)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, errors.Wrap(err, "invalid request body").Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
