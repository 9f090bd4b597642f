package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BoweryJG/bowerycreativepayments/internal/domain"
	"github.com/BoweryJG/bowerycreativepayments/internal/service"
)

// BillingService is what the handlers need from the service layer. Depending
// on the interface instead of the concrete service keeps the handlers testable
// with func-field mocks.
type BillingService interface {
	CreateCustomer(ctx context.Context, c domain.Customer) (int64, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	CreateCheckoutSession(ctx context.Context, email, planID string, annual bool) (string, error)
	CreatePortalSession(ctx context.Context, email string) (string, error)
	CancelSubscription(ctx context.Context, email string) error
	ActiveSubscription(ctx context.Context, email string) (*domain.Subscription, error)
	PaymentHistory(ctx context.Context, email string) ([]domain.Payment, error)
	ProcessWebhook(ctx context.Context, payload []byte, sigHeader string) error
}

// BillingHandler serves the authenticated portal API under /api.
type BillingHandler struct {
	service BillingService
}

func NewBillingHandler(s BillingService) *BillingHandler {
	return &BillingHandler{service: s}
}

// Routes returns the portal API routes. Callers are expected to wrap them in
// RequireAuthorized.
func (h *BillingHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/plans", h.GetPlans)
	r.Post("/customers", h.CreateCustomer)
	r.Get("/customers/{id}", h.GetCustomer)
	r.Post("/checkout", h.CreateCheckoutSession)
	r.Post("/portal", h.CreatePortalSession)
	r.Get("/subscription", h.GetActiveSubscription)
	r.Post("/subscription/cancel", h.CancelSubscription)
	r.Get("/payments", h.GetPaymentHistory)

	return r
}

// @Summary      Lists the purchasable plans
// @Tags         plans
// @Produce      json
// @Success      200  {array}  service.Plan
// @Router       /api/plans [get]
func (h *BillingHandler) GetPlans(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, service.Plans())
}

// @Summary      Registers a customer
// @Tags         customers
// @Accept       json
// @Produce      json
// @Param        customer  body      domain.Customer  true  "Customer to create"
// @Success      201       {object}  domain.Customer
// @Failure      400       {object}  map[string]string
// @Router       /api/customers [post]
func (h *BillingHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var cust domain.Customer
	if err := json.NewDecoder(r.Body).Decode(&cust); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.service.CreateCustomer(r.Context(), cust)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCustomer) {
			respondWithError(w, http.StatusBadRequest, err.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "failed to create customer")
		}
		return
	}

	cust.ID = id
	respondWithJSON(w, http.StatusCreated, cust)
}

// @Summary      Fetches a customer by id
// @Tags         customers
// @Produce      json
// @Param        id   path      int  true  "Customer ID"
// @Success      200  {object}  domain.Customer
// @Failure      404  {object}  map[string]string
// @Router       /api/customers/{id} [get]
func (h *BillingHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid customer id")
		return
	}

	cust, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrCustomerNotFound) {
			respondWithError(w, http.StatusNotFound, err.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "failed to fetch customer")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, cust)
}

type checkoutRequest struct {
	PlanID string `json:"plan_id"`
	Annual bool   `json:"annual"`
}

// @Summary      Creates a Stripe checkout session
// @Description  Starts a subscription purchase and returns the hosted payment URL
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        checkout  body      checkoutRequest  true  "Plan selection"
// @Success      200       {object}  map[string]string
// @Failure      400       {object}  map[string]string
// @Failure      409       {object}  map[string]string
// @Router       /api/checkout [post]
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	url, err := h.service.CreateCheckoutSession(r.Context(), userEmail(r.Context()), req.PlanID, req.Annual)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownPlan):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrSubscriptionActive):
			respondWithError(w, http.StatusConflict, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "failed to create checkout session")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"checkout_url": url})
}

// @Summary      Creates a Stripe billing-portal session
// @Tags         billing
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/portal [post]
func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	url, err := h.service.CreatePortalSession(r.Context(), userEmail(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrCustomerNotFound) {
			respondWithError(w, http.StatusNotFound, err.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "failed to create portal session")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"portal_url": url})
}

// @Summary      Returns the caller's active subscription
// @Tags         billing
// @Produce      json
// @Success      200  {object}  domain.Subscription
// @Failure      404  {object}  map[string]string
// @Router       /api/subscription [get]
func (h *BillingHandler) GetActiveSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.ActiveSubscription(r.Context(), userEmail(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCustomerNotFound), errors.Is(err, service.ErrSubscriptionNotFound):
			respondWithError(w, http.StatusNotFound, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "failed to fetch subscription")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

// @Summary      Cancels the caller's subscription at period end
// @Tags         billing
// @Produce      json
// @Success      202  {string}  string "Accepted"
// @Failure      404  {object}  map[string]string
// @Router       /api/subscription/cancel [post]
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	err := h.service.CancelSubscription(r.Context(), userEmail(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCustomerNotFound), errors.Is(err, service.ErrSubscriptionNotFound):
			respondWithError(w, http.StatusNotFound, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "failed to cancel subscription")
		}
		return
	}
	// The status flips to canceled when Stripe's webhook confirms it.
	w.WriteHeader(http.StatusAccepted)
}

// @Summary      Returns the caller's payment history
// @Tags         billing
// @Produce      json
// @Success      200  {array}   domain.Payment
// @Failure      404  {object}  map[string]string
// @Router       /api/payments [get]
func (h *BillingHandler) GetPaymentHistory(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.PaymentHistory(r.Context(), userEmail(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrCustomerNotFound) {
			respondWithError(w, http.StatusNotFound, err.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "failed to fetch payments")
		}
		return
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	respondWithJSON(w, http.StatusOK, payments)
}

// --- shared helpers ---

func respondWithError(w http.ResponseWriter, code int, message string) {
	slog.Error("api error", "code", code, "message", message)
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal json response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
