package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/elevenpay/axis-payout-service/internal/domain"
)

// TransferInstruction is the validated outbound transfer command handed to
// the gateway adapter. Amount is already formatted to two decimal places by
// validation.
type TransferInstruction struct {
	CRN         string
	PayMode     domain.PayMode
	TxnType     domain.TxnType
	Amount      decimal.Decimal
	ValueDate   string
	Beneficiary domain.Beneficiary

	// Cheque fields, mandatory for CC/DD paymodes
	BaseCode        string
	ChequeNumber    string
	ChequeDate      string
	PayableLocation string
	PrintLocation   string

	ProductCode          string
	SenderToReceiverInfo string
}

// TransferResult carries the decrypted synchronous acknowledgement.
// Accepted=false with a nil error means a business-level rejection encoded
// inside the payload, not a transport failure.
type TransferResult struct {
	Accepted      bool
	GatewayTxnRef string
	StatusCode    string
	Description   string
	ChecksumSent  string
	RawToken      string // compact signed-encrypted token as sent
	RawResponse   string // compact token as received
}

// StatusObservation is one CRN's state as reported by a get-status poll.
type StatusObservation struct {
	CRN              string
	GatewayTxnRef    string
	CounterpartyCode string
	Description      string
	UTR              string
	BatchID          string
	CounterpartyTime string // counterparty-reported timestamp, gateway format
}

// BalanceResult is the decrypted get-balance reply.
type BalanceResult struct {
	CorpAccNum  string
	Balance     decimal.Decimal
	RawResponse []byte
}

// BeneficiaryResult is the decrypted reply of beneficiary registration or enquiry.
type BeneficiaryResult struct {
	BeneCode    string
	StatusCode  string
	Description string
	Registered  bool
}

// PayoutGateway is the boundary to the counterparty bank. Every call wraps
// its payload in the secure envelope and unwraps the response; errors follow
// the domain taxonomy (GATEWAY_NETWORK vs GATEWAY_REJECTED vs ENVELOPE_*).
type PayoutGateway interface {
	TransferPayment(ctx context.Context, instr *TransferInstruction) (*TransferResult, error)
	GetTransferStatus(ctx context.Context, crns []string) ([]StatusObservation, error)
	GetBalance(ctx context.Context, corpAccNum string) (*BalanceResult, error)
	RegisterBeneficiary(ctx context.Context, bene *domain.Beneficiary) (*BeneficiaryResult, error)
	EnquireBeneficiary(ctx context.Context, beneCode string) (*BeneficiaryResult, error)
}
