package payoutapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elevenpay/axis-payout-service/internal/domain"
	"github.com/elevenpay/axis-payout-service/internal/domain/ports"
	payoutsvc "github.com/elevenpay/axis-payout-service/internal/services/payout"
)

// stubRepo backs the handler tests with a single-payout store
type stubRepo struct {
	payout *domain.PayoutRequest
}

func (r *stubRepo) InsertPayoutUnique(ctx context.Context, payout *domain.PayoutRequest) (string, error) {
	if r.payout != nil && r.payout.CRN == payout.CRN {
		return "", domain.ErrDuplicateCRN
	}
	stored := *payout
	stored.ID = "payout-1"
	r.payout = &stored
	return stored.ID, nil
}

func (r *stubRepo) FindByCRN(ctx context.Context, crn string) (*domain.PayoutRequest, error) {
	if r.payout != nil && r.payout.CRN == crn {
		return r.payout, nil
	}
	return nil, domain.ErrPayoutNotFound
}

func (r *stubRepo) FindByGatewayRef(ctx context.Context, ref string) (*domain.PayoutRequest, error) {
	return nil, domain.ErrPayoutNotFound
}

func (r *stubRepo) ApplyStatusEvent(ctx context.Context, event *domain.StatusEvent) (*ports.ApplyOutcome, error) {
	if r.payout == nil || r.payout.CRN != event.CRN {
		return nil, domain.ErrPayoutNotFound
	}
	return &ports.ApplyOutcome{PayoutID: r.payout.ID, EventInserted: true}, nil
}

func (r *stubRepo) RecordSyncResult(ctx context.Context, payoutID string, status domain.PayoutStatus, gatewayRef, rawResponse string) error {
	r.payout.Status = status
	r.payout.GatewayTxnRef = gatewayRef
	return nil
}

func (r *stubRepo) ListUnsettledCRNs(ctx context.Context, updatedBefore time.Time, limit int) ([]string, error) {
	return nil, nil
}

func (r *stubRepo) ListStatusEvents(ctx context.Context, payoutID string) ([]domain.StatusEvent, error) {
	return []domain.StatusEvent{{CRN: r.payout.CRN, Source: domain.EventSourceSync}}, nil
}

func (r *stubRepo) InsertBalanceSnapshot(ctx context.Context, snapshot *domain.BalanceSnapshot) error {
	return nil
}

func (r *stubRepo) PendingOutwardTotal(ctx context.Context, merchantID string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

// acceptGateway acknowledges every transfer
type acceptGateway struct{}

func (acceptGateway) TransferPayment(ctx context.Context, instr *ports.TransferInstruction) (*ports.TransferResult, error) {
	return &ports.TransferResult{Accepted: true, GatewayTxnRef: "AXIS123", StatusCode: "S"}, nil
}

func (acceptGateway) GetTransferStatus(ctx context.Context, crns []string) ([]ports.StatusObservation, error) {
	return nil, nil
}

func (acceptGateway) GetBalance(ctx context.Context, corpAccNum string) (*ports.BalanceResult, error) {
	return &ports.BalanceResult{Balance: decimal.Zero}, nil
}

func (acceptGateway) RegisterBeneficiary(ctx context.Context, bene *domain.Beneficiary) (*ports.BeneficiaryResult, error) {
	return &ports.BeneficiaryResult{Registered: true}, nil
}

func (acceptGateway) EnquireBeneficiary(ctx context.Context, beneCode string) (*ports.BeneficiaryResult, error) {
	return &ports.BeneficiaryResult{Registered: true}, nil
}

func newTestRouter(repo *stubRepo) http.Handler {
	service := payoutsvc.NewService(repo, acceptGateway{}, domain.DefaultStatusCodeMap(), zap.NewNop())
	handler := NewHandler(service, zap.NewNop())
	router := chi.NewRouter()
	router.Route("/api/v1", handler.Routes)
	return router
}

const createBody = `{
	"crn": "REF-001",
	"pay_mode": "NE",
	"txn_type": "CUST",
	"amount": "1000.00",
	"value_date": "2026-09-01",
	"beneficiary": {
		"bene_code": "BENE01",
		"bene_name": "Acme Traders",
		"bene_acc_num": "1234567890",
		"bene_ifsc_code": "UTIB0000001"
	}
}`

func TestCreatePayout_Returns201(t *testing.T) {
	router := newTestRouter(&stubRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payouts", strings.NewReader(createBody))
	req.Header.Set("X-Merchant-Id", "merchant-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var payout domain.PayoutRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payout))
	assert.Equal(t, "REF-001", payout.CRN)
	assert.Equal(t, domain.PayoutStatusProcessing, payout.Status)
	assert.Equal(t, "merchant-1", payout.MerchantID)
}

func TestCreatePayout_DuplicateReturns409(t *testing.T) {
	router := newTestRouter(&stubRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payouts", strings.NewReader(createBody))
	router.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/payouts", strings.NewReader(createBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "PAYOUT_DUPLICATE_CRN", body["code"])
}

func TestCreatePayout_ValidationReturns400(t *testing.T) {
	router := newTestRouter(&stubRepo{})

	bad := strings.Replace(createBody, `"1000.00"`, `"1000"`, 1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payouts", strings.NewReader(bad))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPayout_UnknownReturns404(t *testing.T) {
	router := newTestRouter(&stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payouts/NOPE", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPayout_ReturnsStoredPayout(t *testing.T) {
	repo := &stubRepo{payout: &domain.PayoutRequest{
		ID:     "payout-1",
		CRN:    "REF-001",
		Status: domain.PayoutStatusProcessed,
		Amount: decimal.RequireFromString("1000.00"),
	}}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payouts/REF-001", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payout domain.PayoutRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payout))
	assert.Equal(t, domain.PayoutStatusProcessed, payout.Status)
}
