package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/elevenpay/axis-payout-service/internal/domain"
)

// ApplyOutcome describes what a status event application actually did.
// EventInserted is false when the event's natural key was already recorded
// (redelivered callback); ProjectionMoved is false when the monotonicity rule
// kept the stored status.
type ApplyOutcome struct {
	PayoutID        string
	PreviousStatus  domain.PayoutStatus
	ProjectedStatus domain.PayoutStatus
	EventInserted   bool
	ProjectionMoved bool
}

// PayoutRepository is the abstract persistence store for payout state.
// The physical engine is out of scope for callers; implementations must make
// InsertPayoutUnique atomic with respect to concurrent duplicate submissions,
// and ApplyStatusEvent atomic per correlation reference.
type PayoutRepository interface {
	// InsertPayoutUnique persists a new payout in pending state and returns its
	// opaque identifier. Returns domain.ErrDuplicateCRN if the correlation
	// reference already exists; no second record is ever created.
	InsertPayoutUnique(ctx context.Context, payout *domain.PayoutRequest) (string, error)

	// FindByCRN returns the payout owning the correlation reference, or
	// domain.ErrPayoutNotFound.
	FindByCRN(ctx context.Context, crn string) (*domain.PayoutRequest, error)

	// FindByGatewayRef is the fallback lookup by counterparty transaction id.
	FindByGatewayRef(ctx context.Context, ref string) (*domain.PayoutRequest, error)

	// ApplyStatusEvent locates the owning payout (CRN first, counterparty
	// transaction id as fallback), appends the event to the audit trail, and
	// advances the projected status under the monotonicity rule. The whole
	// sequence is atomic per correlation reference. Returns
	// domain.ErrPayoutNotFound for orphan events; the caller decides whether
	// that is an error or merely informational.
	ApplyStatusEvent(ctx context.Context, event *domain.StatusEvent) (*ApplyOutcome, error)

	// RecordSyncResult stores the synchronous gateway acknowledgement for a
	// payout: projected status, counterparty transaction ref, and the raw
	// response token, in one statement.
	RecordSyncResult(ctx context.Context, payoutID string, status domain.PayoutStatus, gatewayRef, rawResponse string) error

	// ListUnsettledCRNs returns correlation references still pending or
	// processing, oldest first, for the reconciliation sweep. Only payouts
	// last touched before the cutoff qualify, so fresh submissions are not
	// polled while their synchronous handshake is still in flight.
	ListUnsettledCRNs(ctx context.Context, updatedBefore time.Time, limit int) ([]string, error)

	// ListStatusEvents returns the audit trail for a payout, oldest first.
	ListStatusEvents(ctx context.Context, payoutID string) ([]domain.StatusEvent, error)

	// InsertBalanceSnapshot appends a balance snapshot. Snapshots are
	// immutable once written.
	InsertBalanceSnapshot(ctx context.Context, snapshot *domain.BalanceSnapshot) error

	// PendingOutwardTotal sums amounts of payouts still in pending or
	// processing state for a merchant.
	PendingOutwardTotal(ctx context.Context, merchantID string) (decimal.Decimal, error)
}
