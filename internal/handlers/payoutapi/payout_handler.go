package payoutapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/elevenpay/axis-payout-service/internal/domain"
	payoutsvc "github.com/elevenpay/axis-payout-service/internal/services/payout"
)

// Handler exposes the payout REST surface
type Handler struct {
	service *payoutsvc.Service
	logger  *zap.Logger
}

// NewHandler creates a payout API handler
func NewHandler(service *payoutsvc.Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Routes mounts the payout endpoints on a chi router
func (h *Handler) Routes(r chi.Router) {
	r.Post("/payouts", h.CreatePayout)
	r.Get("/payouts/{crn}", h.GetPayout)
	r.Get("/payouts/{crn}/events", h.ListEvents)
	r.Post("/payouts/{crn}/poll", h.PollPayout)
	r.Get("/balance", h.GetBalance)
	r.Post("/beneficiaries", h.RegisterBeneficiary)
	r.Get("/beneficiaries/{code}", h.EnquireBeneficiary)
}

// CreatePayout handles POST /payouts
func (h *Handler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	var cmd payoutsvc.CreatePayoutCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.respondError(w, domain.NewDomainError(domain.ErrorCodeValidationFailed, "malformed request body"))
		return
	}
	if merchantID := r.Header.Get("X-Merchant-Id"); merchantID != "" {
		cmd.MerchantID = merchantID
	}

	payout, err := h.service.CreatePayout(r.Context(), &cmd)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, payout)
}

// GetPayout handles GET /payouts/{crn}
func (h *Handler) GetPayout(w http.ResponseWriter, r *http.Request) {
	crn := chi.URLParam(r, "crn")

	payout, err := h.service.GetPayout(r.Context(), crn)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, payout)
}

// ListEvents handles GET /payouts/{crn}/events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	crn := chi.URLParam(r, "crn")

	events, err := h.service.ListEvents(r.Context(), crn)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"crn":    crn,
		"events": events,
	})
}

// PollPayout handles POST /payouts/{crn}/poll: an on-demand status enquiry
// for one correlation reference.
func (h *Handler) PollPayout(w http.ResponseWriter, r *http.Request) {
	crn := chi.URLParam(r, "crn")

	// existence check first so an unknown crn is a 404, not a silent no-op
	if _, err := h.service.GetPayout(r.Context(), crn); err != nil {
		h.respondError(w, err)
		return
	}

	moved, err := h.service.PollStatuses(r.Context(), []string{crn})
	if err != nil {
		h.respondError(w, err)
		return
	}

	payout, err := h.service.GetPayout(r.Context(), crn)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"moved":  moved > 0,
		"payout": payout,
	})
}

// GetBalance handles GET /balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.CaptureBalance(r.Context(), r.Header.Get("X-Merchant-Id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, snapshot)
}

// RegisterBeneficiary handles POST /beneficiaries
func (h *Handler) RegisterBeneficiary(w http.ResponseWriter, r *http.Request) {
	var bene domain.Beneficiary
	if err := json.NewDecoder(r.Body).Decode(&bene); err != nil {
		h.respondError(w, domain.NewDomainError(domain.ErrorCodeValidationFailed, "malformed request body"))
		return
	}

	result, err := h.service.RegisterBeneficiary(r.Context(), &bene)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, result)
}

// EnquireBeneficiary handles GET /beneficiaries/{code}
func (h *Handler) EnquireBeneficiary(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.EnquireBeneficiary(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// errorBody is the wire shape of an error response
type errorBody struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// respondError maps domain error codes to HTTP statuses
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	code := domain.GetErrorCode(err)
	status := statusForCode(code)

	body := errorBody{
		Error: "request failed",
		Code:  string(code),
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		body.Error = de.Message
		if len(de.Details) > 0 {
			body.Details = de.Details
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		// never leak internals
		body.Error = "internal server error"
		body.Details = nil
		if body.Code == "" {
			body.Code = string(domain.ErrorCodeInternalError)
		}
	}

	h.respondJSON(w, status, body)
}

func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.ErrorCodeValidationFailed,
		domain.ErrorCodeValidationMissingField,
		domain.ErrorCodeValidationAmountInvalid:
		return http.StatusBadRequest
	case domain.ErrorCodeDuplicateCRN:
		return http.StatusConflict
	case domain.ErrorCodePayoutNotFound:
		return http.StatusNotFound
	case domain.ErrorCodeAuthMissing, domain.ErrorCodeAuthInvalid:
		return http.StatusUnauthorized
	case domain.ErrorCodeGatewayNetwork, domain.ErrorCodeGatewayTimeout:
		return http.StatusBadGateway
	case domain.ErrorCodeGatewayRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
