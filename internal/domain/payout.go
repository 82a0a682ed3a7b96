package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutStatus represents the lifecycle state of an outbound transfer instruction
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"    // created, outbound call not yet acknowledged
	PayoutStatusProcessing PayoutStatus = "processing" // counterparty accepted the instruction, not yet settled
	PayoutStatusProcessed  PayoutStatus = "processed"  // settled successfully (terminal)
	PayoutStatusRejected   PayoutStatus = "rejected"   // rejected by counterparty (terminal)
	PayoutStatusReturned   PayoutStatus = "returned"   // funds returned after settlement attempt (terminal)
)

// IsTerminal returns true once the counterparty reported a final outcome.
// Terminal states never regress; later pending-equivalent events are recorded
// for audit but do not change the projection.
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusProcessed || s == PayoutStatusRejected || s == PayoutStatusReturned
}

// PayMode is the counterparty payment rail selector
type PayMode string

const (
	PayModeRTGS    PayMode = "RT"
	PayModeNEFT    PayMode = "NE"
	PayModeIMPS    PayMode = "PA"
	PayModeIntra   PayMode = "FT"
	PayModeCheque  PayMode = "CC"
	PayModeDemand  PayMode = "DD"
)

// TxnType classifies the beneficiary relationship
type TxnType string

const (
	TxnTypeCustomer     TxnType = "CUST"
	TxnTypeMerchant     TxnType = "MERC"
	TxnTypeDistributor  TxnType = "DIST"
	TxnTypeInternal     TxnType = "INTN"
	TxnTypeVendor       TxnType = "VEND"
)

// Beneficiary describes the receiving party of a transfer
type Beneficiary struct {
	Code     string `json:"bene_code"`
	Name     string `json:"bene_name"`
	AccNum   string `json:"bene_acc_num"`
	AcType   string `json:"bene_ac_type"`
	IFSC     string `json:"bene_ifsc_code"`
	BankName string `json:"bene_bank_name"`
	Addr1    string `json:"bene_addr1"`
	Addr2    string `json:"bene_addr2"`
	Addr3    string `json:"bene_addr3"`
	City     string `json:"bene_city"`
	State    string `json:"bene_state"`
	Pincode  string `json:"bene_pincode"`
	Email    string `json:"bene_email"`
	Mobile   string `json:"bene_mobile"`
	LEI      string `json:"bene_lei"`
}

// PayoutRequest represents one outbound transfer instruction.
// CRN is the merchant-assigned correlation reference and the idempotency key
// of the whole system: created exactly once, globally unique.
type PayoutRequest struct {
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ID              string          `json:"id"`
	MerchantID      string          `json:"merchant_id"`
	CRN             string          `json:"crn"`
	PayMode         PayMode         `json:"pay_mode"`
	TxnType         TxnType         `json:"txn_type"`
	Amount          decimal.Decimal `json:"amount"`
	ValueDate       string          `json:"value_date"` // YYYY-MM-DD
	Beneficiary     Beneficiary     `json:"beneficiary"`
	ChecksumSent    string          `json:"checksum_sent"`
	GatewayTxnRef   string          `json:"gateway_txn_ref"`
	RawRequestToken string          `json:"-"` // compact signed-encrypted token sent
	RawResponse     string          `json:"-"` // compact token received
	Status          PayoutStatus    `json:"status"`
}

// StatusEvent is an immutable, append-only record of one status observation
// for a payout, from either a synchronous poll or an asynchronous callback.
// The natural key (CRN, CounterpartyStatus, CounterpartyTime) dedupes
// redelivered callbacks.
type StatusEvent struct {
	CounterpartyTime time.Time    `json:"counterparty_time"`
	ObservedAt       time.Time    `json:"observed_at"`
	PayoutID         string       `json:"payout_id"`
	CRN              string       `json:"crn"`
	GatewayTxnRef    string       `json:"gateway_txn_ref"`
	CounterpartyCode string       `json:"counterparty_code"` // raw status code as reported
	Description      string       `json:"description"`
	UTR              string       `json:"utr"` // settlement reference
	BatchID          string       `json:"batch_id"`
	Source           EventSource  `json:"source"`
	MappedStatus     PayoutStatus `json:"mapped_status"`
	RawPayload       []byte       `json:"-"`
}

// EventSource identifies which channel delivered a status observation
type EventSource string

const (
	EventSourceSync     EventSource = "sync"     // synchronous transfer response
	EventSourcePoll     EventSource = "poll"     // get-status poll
	EventSourceCallback EventSource = "callback" // asynchronous push
)

// BalanceSnapshot is a point-in-time read of the counterparty account balance
// plus the locally computed pending-outbound aggregate. Append-only.
type BalanceSnapshot struct {
	CapturedAt     time.Time       `json:"captured_at"`
	ID             string          `json:"id"`
	MerchantID     string          `json:"merchant_id"`
	CorpAccNum     string          `json:"corp_acc_num"`
	Balance        decimal.Decimal `json:"balance"`
	PendingOutward decimal.Decimal `json:"pending_outward"`
	RawResponse    []byte          `json:"-"`
}

// StatusCodeMap maps raw counterparty status codes to lifecycle outcomes.
// The counterparty's code set is configuration, not something this service
// hard-codes: the documented sample maps 2=rejected, 3=processed, 4=returned,
// everything else pending-equivalent, but the authoritative table comes from
// the counterparty schema and is injected at startup.
type StatusCodeMap map[string]PayoutStatus

// DefaultStatusCodeMap returns the mapping observed in the counterparty's
// sample data. Override via configuration when the counterparty publishes
// additional codes.
func DefaultStatusCodeMap() StatusCodeMap {
	return StatusCodeMap{
		"1": PayoutStatusProcessing,
		"2": PayoutStatusRejected,
		"3": PayoutStatusProcessed,
		"4": PayoutStatusReturned,
	}
}

// Resolve maps a raw code to a lifecycle status. Unknown codes resolve to
// processing: they never regress a projection and a later poll or a revised
// mapping can settle them.
func (m StatusCodeMap) Resolve(code string) PayoutStatus {
	if s, ok := m[code]; ok {
		return s
	}
	return PayoutStatusProcessing
}
