package callback

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elevenpay/axis-payout-service/internal/domain"
	"github.com/elevenpay/axis-payout-service/internal/domain/ports"
	payoutsvc "github.com/elevenpay/axis-payout-service/internal/services/payout"
	"github.com/elevenpay/axis-payout-service/pkg/crypto"
)

const testSecret = "7d320cf27dab0564a8de42f4ca9f00ca"

var testIV = []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

// encryptPush mirrors the counterparty's callback encryption for tests.
func encryptPush(t *testing.T, plaintext []byte) string {
	t.Helper()
	key, err := hex.DecodeString(testSecret)
	require.NoError(t, err)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := make([]byte, len(plaintext)+pad)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, testIV).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out)
}

// memRepo is the minimal in-memory PayoutRepository the handler tests need
type memRepo struct {
	payouts   map[string]*domain.PayoutRequest
	eventKeys map[string]bool
	events    int
	failApply bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		payouts:   make(map[string]*domain.PayoutRequest),
		eventKeys: make(map[string]bool),
	}
}

func (r *memRepo) seed(crn, id string) {
	r.payouts[crn] = &domain.PayoutRequest{
		ID:     id,
		CRN:    crn,
		Status: domain.PayoutStatusProcessing,
		Amount: decimal.RequireFromString("1000.00"),
	}
}

func (r *memRepo) InsertPayoutUnique(ctx context.Context, payout *domain.PayoutRequest) (string, error) {
	return "", domain.ErrInternalError
}

func (r *memRepo) FindByCRN(ctx context.Context, crn string) (*domain.PayoutRequest, error) {
	if p, ok := r.payouts[crn]; ok {
		return p, nil
	}
	return nil, domain.ErrPayoutNotFound
}

func (r *memRepo) FindByGatewayRef(ctx context.Context, ref string) (*domain.PayoutRequest, error) {
	return nil, domain.ErrPayoutNotFound
}

func (r *memRepo) ApplyStatusEvent(ctx context.Context, event *domain.StatusEvent) (*ports.ApplyOutcome, error) {
	if r.failApply {
		return nil, domain.ErrDatabaseError
	}
	p, ok := r.payouts[event.CRN]
	if !ok {
		return nil, domain.ErrPayoutNotFound
	}
	key := fmt.Sprintf("%s|%s|%d", event.CRN, event.CounterpartyCode, event.CounterpartyTime.UnixNano())
	inserted := !r.eventKeys[key]
	if inserted {
		r.eventKeys[key] = true
		r.events++
	}
	previous := p.Status
	next, moved := domain.NextProjection(previous, event.MappedStatus)
	if moved {
		p.Status = next
	}
	return &ports.ApplyOutcome{
		PayoutID:        p.ID,
		PreviousStatus:  previous,
		ProjectedStatus: next,
		EventInserted:   inserted,
		ProjectionMoved: moved,
	}, nil
}

func (r *memRepo) RecordSyncResult(ctx context.Context, payoutID string, status domain.PayoutStatus, gatewayRef, rawResponse string) error {
	return nil
}

func (r *memRepo) ListUnsettledCRNs(ctx context.Context, updatedBefore time.Time, limit int) ([]string, error) {
	return nil, nil
}

func (r *memRepo) ListStatusEvents(ctx context.Context, payoutID string) ([]domain.StatusEvent, error) {
	return nil, nil
}

func (r *memRepo) InsertBalanceSnapshot(ctx context.Context, snapshot *domain.BalanceSnapshot) error {
	return nil
}

func (r *memRepo) PendingOutwardTotal(ctx context.Context, merchantID string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func newTestHandler(repo *memRepo) *Handler {
	decryptor := crypto.NewCallbackDecryptor(&crypto.KeyMaterial{CallbackSecret: testSecret})
	service := payoutsvc.NewService(repo, nil, domain.DefaultStatusCodeMap(), zap.NewNop())
	return NewHandler(decryptor, service, zap.NewNop())
}

// statusPayload builds an encrypted callback body with a valid checksum
func statusPayload(t *testing.T, crn, code string) string {
	t.Helper()
	payload := crypto.OrderedObject{
		{Key: "crn", Value: crn},
		{Key: "transactionStatus", Value: code},
		{Key: "utrNo", Value: "UTR123"},
		{Key: "processingDate", Value: "2026-09-01 10:22:33"},
	}
	payload = payload.Set("checksum", crypto.Checksum(payload))
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return encryptPush(t, raw)
}

func post(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/axis/callback", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleCallback(rec, req)
	return rec
}

func TestCallback_AppliesSettlement(t *testing.T) {
	repo := newMemRepo()
	repo.seed("REF-001", "payout-1")
	h := newTestHandler(repo)

	rec := post(t, h, statusPayload(t, "REF-001", "3"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, domain.PayoutStatusProcessed, repo.payouts["REF-001"].Status)
	assert.Equal(t, 1, repo.events)
}

// nestedStatusPayload builds the counterparty's documented push shape: the
// record array and checksum nested under data, checksum over data alone.
func nestedStatusPayload(t *testing.T, crn, code string) string {
	t.Helper()
	record := crypto.OrderedObject{
		{Key: "transaction_id", Value: "CN0006204254"},
		{Key: "chequeNo", Value: nil},
		{Key: "statusDescription", Value: "Credited to beneficiary"},
		{Key: "batchNo", Value: "6r8wkrcQbzu7RpSnxSt54S4XRq7r9S"},
		{Key: "utrNo", Value: "815812301659"},
		{Key: "transactionStatus", Value: code},
		{Key: "processingDate", Value: "06-07-2020 18:40:22"},
		{Key: "corpCode", Value: "DEMOCORP11"},
		{Key: "crn", Value: crn},
		{Key: "responseCode", Value: "AC02"},
	}
	data := crypto.OrderedObject{
		{Key: "CUR_TXN_ENQ", Value: []interface{}{record}},
	}
	data = data.Set("checksum", crypto.Checksum(data))
	payload := crypto.OrderedObject{
		{Key: "data", Value: data},
		{Key: "message", Value: "Success"},
		{Key: "status", Value: "S"},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return encryptPush(t, raw)
}

func TestCallback_NestedDataShapeSettles(t *testing.T) {
	repo := newMemRepo()
	repo.seed("REF-001", "payout-1")
	h := newTestHandler(repo)

	rec := post(t, h, nestedStatusPayload(t, "REF-001", "3"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, domain.PayoutStatusProcessed, repo.payouts["REF-001"].Status)
	assert.Equal(t, 1, repo.events)
}

func TestCallback_NestedDataRedeliveryIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	repo.seed("REF-001", "payout-1")
	h := newTestHandler(repo)

	body := nestedStatusPayload(t, "REF-001", "3")
	post(t, h, body)
	post(t, h, body)

	assert.Equal(t, domain.PayoutStatusProcessed, repo.payouts["REF-001"].Status)
	assert.Equal(t, 1, repo.events)
}

func TestCallback_MissingChecksumDiscarded(t *testing.T) {
	repo := newMemRepo()
	repo.seed("REF-001", "payout-1")
	h := newTestHandler(repo)

	payload := crypto.OrderedObject{
		{Key: "crn", Value: "REF-001"},
		{Key: "transactionStatus", Value: "3"},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	rec := post(t, h, encryptPush(t, raw))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, domain.PayoutStatusProcessing, repo.payouts["REF-001"].Status)
	assert.Equal(t, 0, repo.events)
}

func TestCallback_JSONWrapperAccepted(t *testing.T) {
	repo := newMemRepo()
	repo.seed("REF-001", "payout-1")
	h := newTestHandler(repo)

	wrapper, err := json.Marshal(map[string]string{
		"GetStatusResponseBodyEncrypted": statusPayload(t, "REF-001", "3"),
	})
	require.NoError(t, err)

	rec := post(t, h, string(wrapper))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PayoutStatusProcessed, repo.payouts["REF-001"].Status)
}

func TestCallback_OrphanStillAcknowledged(t *testing.T) {
	repo := newMemRepo()
	h := newTestHandler(repo)

	rec := post(t, h, statusPayload(t, "UNKNOWN-1", "3"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	// orphans never create payout rows
	assert.Empty(t, repo.payouts)
	assert.Equal(t, 0, repo.events)
}

func TestCallback_ChecksumMismatchDiscarded(t *testing.T) {
	repo := newMemRepo()
	repo.seed("REF-001", "payout-1")
	h := newTestHandler(repo)

	payload := crypto.OrderedObject{
		{Key: "crn", Value: "REF-001"},
		{Key: "transactionStatus", Value: "3"},
	}
	payload = payload.Set("checksum", crypto.Checksum(payload))
	payload = payload.Set("transactionStatus", "2") // tamper after checksum
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	rec := post(t, h, encryptPush(t, raw))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PayoutStatusProcessing, repo.payouts["REF-001"].Status)
	assert.Equal(t, 0, repo.events)
}

func TestCallback_GarbageBodyStillAcknowledged(t *testing.T) {
	repo := newMemRepo()
	h := newTestHandler(repo)

	rec := post(t, h, "not base64 at all!!!")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCallback_RedeliveryIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	repo.seed("REF-001", "payout-1")
	h := newTestHandler(repo)

	body := statusPayload(t, "REF-001", "3")
	post(t, h, body)
	post(t, h, body)

	assert.Equal(t, domain.PayoutStatusProcessed, repo.payouts["REF-001"].Status)
	assert.Equal(t, 1, repo.events)
}

func TestCallback_PersistFailureStillAcknowledged(t *testing.T) {
	repo := newMemRepo()
	repo.seed("REF-001", "payout-1")
	repo.failApply = true
	h := newTestHandler(repo)

	rec := post(t, h, statusPayload(t, "REF-001", "3"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
