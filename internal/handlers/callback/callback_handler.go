package callback

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/elevenpay/axis-payout-service/internal/domain"
	"github.com/elevenpay/axis-payout-service/internal/domain/ports"
	payoutsvc "github.com/elevenpay/axis-payout-service/internal/services/payout"
	"github.com/elevenpay/axis-payout-service/pkg/crypto"
	"github.com/elevenpay/axis-payout-service/pkg/observability"
	"github.com/elevenpay/axis-payout-service/pkg/resilience"
)

// maxBodyBytes bounds the callback body read
const maxBodyBytes = 1 << 20

// persistAttempts is how many times a failed event write is retried before
// the callback is dropped. The poll sweep is the safety net after that.
const persistAttempts = 3

// Handler receives asynchronous status pushes from the counterparty.
// Contract with the counterparty: always acknowledge with HTTP 200 and the
// literal body "OK", regardless of what happened. Anything else triggers
// redelivery storms on their side. Failures are recorded in logs and metrics
// only.
type Handler struct {
	decryptor *crypto.CallbackDecryptor
	service   *payoutsvc.Service
	logger    *zap.Logger
}

// NewHandler creates a callback handler
func NewHandler(decryptor *crypto.CallbackDecryptor, service *payoutsvc.Service, logger *zap.Logger) *Handler {
	return &Handler{
		decryptor: decryptor,
		service:   service,
		logger:    logger,
	}
}

// envelopeBody is the JSON wrapper some counterparty versions send
type envelopeBody struct {
	GetStatusResponseBodyEncrypted string `json:"GetStatusResponseBodyEncrypted"`
}

// HandleCallback processes POST /axis/callback
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	defer h.acknowledge(w)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("failed to read callback body", zap.Error(err))
		observability.ObserveCallback("decode_error")
		return
	}

	payload, err := h.decryptor.Decrypt(extractCiphertext(body))
	if err != nil {
		h.observeDecryptFailure(err)
		return
	}

	section := statusSection(payload)
	if !crypto.VerifyChecksum(section) {
		h.logger.Warn("callback discarded", zap.Error(domain.ErrChecksumMismatch))
		observability.ObserveCallback("checksum_mismatch")
		return
	}

	raw, _ := json.Marshal(payload)
	for _, record := range callbackRecords(section) {
		h.applyRecord(r.Context(), record, raw)
	}
}

// extractCiphertext accepts either the bare base64 ciphertext or the JSON
// wrapper carrying it.
func extractCiphertext(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var wrapper envelopeBody
		if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.GetStatusResponseBodyEncrypted != "" {
			return wrapper.GetStatusResponseBodyEncrypted
		}
	}
	return trimmed
}

// statusSection unwraps the checksummed data object. The counterparty pushes
// {data: {CUR_TXN_ENQ: [...], checksum}, message, status} with the checksum
// inside data and the checksum computed over data alone; some versions send
// the section bare.
func statusSection(payload crypto.OrderedObject) crypto.OrderedObject {
	for _, key := range []string{"data", "Data"} {
		if inner, ok := payload.Get(key).(crypto.OrderedObject); ok {
			return inner
		}
	}
	return payload
}

// callbackRecords flattens the verified section into individual status
// records. Record arrays are named differently per callback version, so fall
// back to the first array value, then to the section itself as one record.
func callbackRecords(section crypto.OrderedObject) []crypto.OrderedObject {
	arr := recordArray(section)
	if arr == nil {
		return []crypto.OrderedObject{section}
	}
	records := make([]crypto.OrderedObject, 0, len(arr))
	for _, item := range arr {
		if obj, ok := item.(crypto.OrderedObject); ok {
			records = append(records, obj)
		}
	}
	return records
}

func recordArray(section crypto.OrderedObject) []interface{} {
	for _, key := range []string{"CUR_TXN_ENQ", "curTxnEnq", "transactionDetails"} {
		if arr, ok := section.Get(key).([]interface{}); ok {
			return arr
		}
	}
	for _, f := range section {
		if arr, ok := f.Value.([]interface{}); ok {
			return arr
		}
	}
	return nil
}

func (h *Handler) applyRecord(ctx context.Context, record crypto.OrderedObject, raw []byte) {
	obs := &ports.StatusObservation{
		CRN:              firstString(record, "crn", "custUniqRef"),
		GatewayTxnRef:    firstString(record, "transaction_id", "transactionid", "transactionId", "txnReferenceId"),
		CounterpartyCode: firstString(record, "transactionStatus", "txnStatus", "status"),
		Description:      firstString(record, "statusDescription"),
		UTR:              firstString(record, "utrNo"),
		BatchID:          firstString(record, "batchNo"),
		CounterpartyTime: firstString(record, "processingDate", "statusDate"),
	}
	if obs.CRN == "" && obs.GatewayTxnRef == "" {
		h.logger.Warn("callback record carries no reference, discarded")
		observability.ObserveCallback("decode_error")
		return
	}

	var outcome *ports.ApplyOutcome
	err := resilience.Retry(ctx, persistAttempts, resilience.PersistenceBackoff(), func() error {
		var applyErr error
		outcome, applyErr = h.service.ApplyObservation(ctx, obs, domain.EventSourceCallback, raw)
		if applyErr != nil && errors.Is(applyErr, domain.ErrPayoutNotFound) {
			// orphans never resolve by retrying
			return nil
		}
		return applyErr
	})

	switch {
	case err != nil:
		h.logger.Error("callback event not persisted",
			zap.String("crn", obs.CRN),
			zap.Error(err),
		)
		observability.ObserveCallback("persist_error")
	case outcome == nil:
		// a callback for a payout this service never created is dropped, it
		// must not create payout rows
		h.logger.Warn("orphan callback discarded",
			zap.Error(domain.ErrCallbackOrphan),
			zap.String("crn", obs.CRN),
			zap.String("gateway_txn_ref", obs.GatewayTxnRef),
		)
		observability.ObserveCallback("orphan")
	case !outcome.EventInserted:
		h.logger.Info("duplicate callback ignored", zap.String("crn", obs.CRN))
		observability.ObserveCallback("duplicate")
	default:
		observability.ObserveCallback("applied")
	}
}

func (h *Handler) observeDecryptFailure(err error) {
	var decodeErr *crypto.DecodeError
	if errors.As(err, &decodeErr) {
		wrapped := domain.WrapError(domain.ErrorCodeCallbackDecode, "callback payload not decodable", err)
		h.logger.Warn("callback payload not decodable", zap.Error(wrapped))
		observability.ObserveCallback("decode_error")
		return
	}
	h.logger.Warn("callback decryption failed", zap.Error(err))
	observability.ObserveCallback("decrypt_error")
}

// acknowledge writes the counterparty's fixed acknowledgement
func (h *Handler) acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("failed to write callback acknowledgement", zap.Error(err))
	}
}

func firstString(obj crypto.OrderedObject, keys ...string) string {
	for _, key := range keys {
		switch v := obj.Get(key).(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}
