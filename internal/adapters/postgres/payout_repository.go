package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/elevenpay/axis-payout-service/internal/domain"
	"github.com/elevenpay/axis-payout-service/internal/domain/ports"
)

// uniqueViolation is the postgres error class for unique constraint breaches
const uniqueViolation = "23505"

// PayoutRepository is the postgres implementation of ports.PayoutRepository.
// Payout inserts rely on the unique index on crn for idempotency; status
// events dedupe on their natural key (crn, counterparty_status,
// counterparty_time) with ON CONFLICT DO NOTHING.
type PayoutRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPayoutRepository creates a postgres-backed payout repository
func NewPayoutRepository(pool *pgxpool.Pool, logger *zap.Logger) *PayoutRepository {
	return &PayoutRepository{pool: pool, logger: logger}
}

const insertPayoutSQL = `
INSERT INTO payout_requests (
	id, merchant_id, crn, pay_mode, txn_type, amount, value_date,
	beneficiary, checksum_sent, gateway_txn_ref, raw_request_token,
	raw_response, status, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
RETURNING id`

// InsertPayoutUnique implements ports.PayoutRepository.InsertPayoutUnique
func (r *PayoutRepository) InsertPayoutUnique(ctx context.Context, payout *domain.PayoutRequest) (string, error) {
	id := payout.ID
	if id == "" {
		id = uuid.NewString()
	}

	bene, err := json.Marshal(payout.Beneficiary)
	if err != nil {
		return "", domain.WrapError(domain.ErrorCodeDatabaseError, "encode beneficiary", err)
	}

	var returned string
	err = r.pool.QueryRow(ctx, insertPayoutSQL,
		id, payout.MerchantID, payout.CRN, string(payout.PayMode), string(payout.TxnType),
		payout.Amount.String(), payout.ValueDate, bene, payout.ChecksumSent,
		payout.GatewayTxnRef, payout.RawRequestToken, payout.RawResponse,
		string(payout.Status),
	).Scan(&returned)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", domain.WrapError(domain.ErrorCodeDuplicateCRN,
				"correlation reference already exists", domain.ErrDuplicateCRN).
				WithDetail("crn", payout.CRN)
		}
		return "", domain.WrapError(domain.ErrorCodeDatabaseError, "insert payout", err)
	}
	return returned, nil
}

const selectPayoutSQL = `
SELECT id, merchant_id, crn, pay_mode, txn_type, amount::text, value_date,
       beneficiary, checksum_sent, gateway_txn_ref, raw_request_token,
       raw_response, status, created_at, updated_at
FROM payout_requests `

// FindByCRN implements ports.PayoutRepository.FindByCRN
func (r *PayoutRepository) FindByCRN(ctx context.Context, crn string) (*domain.PayoutRequest, error) {
	return r.findOne(ctx, r.pool, selectPayoutSQL+"WHERE crn = $1", crn)
}

// FindByGatewayRef implements ports.PayoutRepository.FindByGatewayRef
func (r *PayoutRepository) FindByGatewayRef(ctx context.Context, ref string) (*domain.PayoutRequest, error) {
	return r.findOne(ctx, r.pool, selectPayoutSQL+"WHERE gateway_txn_ref = $1", ref)
}

// querier abstracts pool and transaction for row lookups
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PayoutRepository) findOne(ctx context.Context, q querier, sql string, arg any) (*domain.PayoutRequest, error) {
	var (
		p          domain.PayoutRequest
		amountText string
		beneJSON   []byte
		payMode    string
		txnType    string
		status     string
	)
	err := q.QueryRow(ctx, sql, arg).Scan(
		&p.ID, &p.MerchantID, &p.CRN, &payMode, &txnType, &amountText,
		&p.ValueDate, &beneJSON, &p.ChecksumSent, &p.GatewayTxnRef,
		&p.RawRequestToken, &p.RawResponse, &status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPayoutNotFound
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "query payout", err)
	}

	p.PayMode = domain.PayMode(payMode)
	p.TxnType = domain.TxnType(txnType)
	p.Status = domain.PayoutStatus(status)
	if p.Amount, err = decimal.NewFromString(amountText); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "decode amount", err)
	}
	if err := json.Unmarshal(beneJSON, &p.Beneficiary); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "decode beneficiary", err)
	}
	return &p, nil
}

const lockPayoutByCRNSQL = `
SELECT id, status, gateway_txn_ref FROM payout_requests WHERE crn = $1 FOR UPDATE`

const lockPayoutByRefSQL = `
SELECT id, status, gateway_txn_ref FROM payout_requests WHERE gateway_txn_ref = $1 FOR UPDATE`

const insertEventSQL = `
INSERT INTO payout_status_events (
	id, payout_id, crn, gateway_txn_ref, counterparty_status, description,
	utr, batch_id, source, mapped_status, counterparty_time, observed_at,
	raw_payload
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (crn, counterparty_status, counterparty_time) DO NOTHING`

const updateProjectionSQL = `
UPDATE payout_requests
SET status = $2,
    gateway_txn_ref = CASE WHEN gateway_txn_ref = '' THEN $3 ELSE gateway_txn_ref END,
    updated_at = now()
WHERE id = $1`

// ApplyStatusEvent implements ports.PayoutRepository.ApplyStatusEvent.
// Runs in one transaction with the owning payout row locked, so concurrent
// callback and poll deliveries for the same correlation reference serialize.
func (r *PayoutRepository) ApplyStatusEvent(ctx context.Context, event *domain.StatusEvent) (*ports.ApplyOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var (
		payoutID   string
		statusText string
		gatewayRef string
	)
	err = tx.QueryRow(ctx, lockPayoutByCRNSQL, event.CRN).Scan(&payoutID, &statusText, &gatewayRef)
	if errors.Is(err, pgx.ErrNoRows) && event.GatewayTxnRef != "" {
		err = tx.QueryRow(ctx, lockPayoutByRefSQL, event.GatewayTxnRef).Scan(&payoutID, &statusText, &gatewayRef)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrorCodePayoutNotFound,
				"no payout matches event", domain.ErrPayoutNotFound).
				WithDetail("crn", event.CRN)
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "lock payout", err)
	}

	observedAt := event.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}
	tag, err := tx.Exec(ctx, insertEventSQL,
		uuid.NewString(), payoutID, event.CRN, event.GatewayTxnRef,
		event.CounterpartyCode, event.Description, event.UTR, event.BatchID,
		string(event.Source), string(event.MappedStatus), event.CounterpartyTime,
		observedAt, event.RawPayload,
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "insert status event", err)
	}

	current := domain.PayoutStatus(statusText)
	next, moved := domain.NextProjection(current, event.MappedStatus)
	if moved {
		if _, err := tx.Exec(ctx, updateProjectionSQL, payoutID, string(next), event.GatewayTxnRef); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "update projection", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "commit transaction", err)
	}

	return &ports.ApplyOutcome{
		PayoutID:        payoutID,
		PreviousStatus:  current,
		ProjectedStatus: next,
		EventInserted:   tag.RowsAffected() > 0,
		ProjectionMoved: moved,
	}, nil
}

const recordSyncSQL = `
UPDATE payout_requests
SET status = $2,
    gateway_txn_ref = $3,
    raw_response = $4,
    updated_at = now()
WHERE id = $1`

// RecordSyncResult implements ports.PayoutRepository.RecordSyncResult
func (r *PayoutRepository) RecordSyncResult(ctx context.Context, payoutID string, status domain.PayoutStatus, gatewayRef, rawResponse string) error {
	tag, err := r.pool.Exec(ctx, recordSyncSQL, payoutID, string(status), gatewayRef, rawResponse)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "record sync result", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.WrapError(domain.ErrorCodePayoutNotFound,
			"payout missing for sync result", domain.ErrPayoutNotFound).
			WithDetail("payout_id", payoutID)
	}
	return nil
}

const listUnsettledSQL = `
SELECT crn
FROM payout_requests
WHERE status IN ('pending', 'processing') AND updated_at < $1
ORDER BY updated_at
LIMIT $2`

// ListUnsettledCRNs implements ports.PayoutRepository.ListUnsettledCRNs
func (r *PayoutRepository) ListUnsettledCRNs(ctx context.Context, updatedBefore time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, listUnsettledSQL, updatedBefore, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "query unsettled payouts", err)
	}
	defer rows.Close()

	var crns []string
	for rows.Next() {
		var crn string
		if err := rows.Scan(&crn); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan unsettled crn", err)
		}
		crns = append(crns, crn)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "iterate unsettled payouts", err)
	}
	return crns, nil
}

const listEventsSQL = `
SELECT crn, gateway_txn_ref, counterparty_status, description, utr, batch_id,
       source, mapped_status, counterparty_time, observed_at, raw_payload
FROM payout_status_events
WHERE payout_id = $1
ORDER BY counterparty_time, observed_at`

// ListStatusEvents implements ports.PayoutRepository.ListStatusEvents
func (r *PayoutRepository) ListStatusEvents(ctx context.Context, payoutID string) ([]domain.StatusEvent, error) {
	rows, err := r.pool.Query(ctx, listEventsSQL, payoutID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "query status events", err)
	}
	defer rows.Close()

	var events []domain.StatusEvent
	for rows.Next() {
		var (
			e      domain.StatusEvent
			source string
			mapped string
		)
		if err := rows.Scan(
			&e.CRN, &e.GatewayTxnRef, &e.CounterpartyCode, &e.Description,
			&e.UTR, &e.BatchID, &source, &mapped, &e.CounterpartyTime,
			&e.ObservedAt, &e.RawPayload,
		); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan status event", err)
		}
		e.PayoutID = payoutID
		e.Source = domain.EventSource(source)
		e.MappedStatus = domain.PayoutStatus(mapped)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "iterate status events", err)
	}
	return events, nil
}

const insertSnapshotSQL = `
INSERT INTO balance_snapshots (
	id, merchant_id, corp_acc_num, balance, pending_outward, raw_response, captured_at
) VALUES ($1, $2, $3, $4, $5, $6, $7)`

// InsertBalanceSnapshot implements ports.PayoutRepository.InsertBalanceSnapshot
func (r *PayoutRepository) InsertBalanceSnapshot(ctx context.Context, snapshot *domain.BalanceSnapshot) error {
	id := snapshot.ID
	if id == "" {
		id = uuid.NewString()
	}
	capturedAt := snapshot.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, insertSnapshotSQL,
		id, snapshot.MerchantID, snapshot.CorpAccNum,
		snapshot.Balance.String(), snapshot.PendingOutward.String(),
		snapshot.RawResponse, capturedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "insert balance snapshot", err)
	}
	return nil
}

const pendingTotalSQL = `
SELECT COALESCE(SUM(amount), 0)::text
FROM payout_requests
WHERE merchant_id = $1 AND status IN ('pending', 'processing')`

// PendingOutwardTotal implements ports.PayoutRepository.PendingOutwardTotal
func (r *PayoutRepository) PendingOutwardTotal(ctx context.Context, merchantID string) (decimal.Decimal, error) {
	var totalText string
	if err := r.pool.QueryRow(ctx, pendingTotalSQL, merchantID).Scan(&totalText); err != nil {
		return decimal.Zero, domain.WrapError(domain.ErrorCodeDatabaseError, "sum pending payouts", err)
	}
	total, err := decimal.NewFromString(totalText)
	if err != nil {
		return decimal.Zero, domain.WrapError(domain.ErrorCodeDatabaseError, "decode pending total", err)
	}
	return total, nil
}
