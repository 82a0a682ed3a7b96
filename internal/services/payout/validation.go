package payout

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/elevenpay/axis-payout-service/internal/domain"
	"github.com/elevenpay/axis-payout-service/internal/domain/ports"
)

// Counterparty schema limits and formats. Violations are caught here so a
// bad instruction never reaches the wire or the database.
var (
	amountPattern = regexp.MustCompile(`^\d+\.\d{2}$`)

	validPayModes = map[domain.PayMode]bool{
		domain.PayModeRTGS:   true,
		domain.PayModeNEFT:   true,
		domain.PayModeIMPS:   true,
		domain.PayModeIntra:  true,
		domain.PayModeCheque: true,
		domain.PayModeDemand: true,
	}

	validTxnTypes = map[domain.TxnType]bool{
		domain.TxnTypeCustomer:    true,
		domain.TxnTypeMerchant:    true,
		domain.TxnTypeDistributor: true,
		domain.TxnTypeInternal:    true,
		domain.TxnTypeVendor:      true,
	}

	// LEI becomes mandatory at this amount per the counterparty schema
	leiThreshold = decimal.NewFromInt(500000000)
)

const (
	maxCRNLen      = 30
	maxBeneCodeLen = 30
	maxBeneNameLen = 70
	maxAccNumLen   = 30
	maxBankNameLen = 70
	maxEmailLen    = 250
	maxMobileLen   = 25
	ifscLen        = 11
)

// CreatePayoutCommand is the raw, unvalidated payout submission. Amount stays
// a string until validated so the two-decimal format rule applies to what the
// merchant actually sent.
type CreatePayoutCommand struct {
	MerchantID  string             `json:"merchant_id"`
	CRN         string             `json:"crn"`
	PayMode     string             `json:"pay_mode"`
	TxnType     string             `json:"txn_type"`
	Amount      string             `json:"amount"`
	ValueDate   string             `json:"value_date"`
	Beneficiary domain.Beneficiary `json:"beneficiary"`

	BaseCode        string `json:"base_code,omitempty"`
	ChequeNumber    string `json:"cheque_number,omitempty"`
	ChequeDate      string `json:"cheque_date,omitempty"`
	PayableLocation string `json:"payable_location,omitempty"`
	PrintLocation   string `json:"print_location,omitempty"`

	ProductCode          string `json:"product_code,omitempty"`
	SenderToReceiverInfo string `json:"sender_to_receiver_info,omitempty"`
}

func missingField(field string) error {
	return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "required field missing").
		WithDetail("field", field)
}

func invalidField(field, reason string) error {
	return domain.NewDomainError(domain.ErrorCodeValidationFailed, reason).
		WithDetail("field", field)
}

// validateCommand checks a submission against the counterparty schema and
// returns the gateway-ready instruction. Runs before any side effect: no
// database row and no outbound call for an invalid command.
func validateCommand(cmd *CreatePayoutCommand) (*ports.TransferInstruction, error) {
	if cmd.CRN == "" {
		return nil, missingField("crn")
	}
	if len(cmd.CRN) > maxCRNLen {
		return nil, invalidField("crn", "correlation reference exceeds maximum length")
	}

	payMode := domain.PayMode(cmd.PayMode)
	if !validPayModes[payMode] {
		return nil, invalidField("pay_mode", "unknown payment mode")
	}
	txnType := domain.TxnType(cmd.TxnType)
	if !validTxnTypes[txnType] {
		return nil, invalidField("txn_type", "unknown transaction type")
	}

	if cmd.Amount == "" {
		return nil, missingField("amount")
	}
	if !amountPattern.MatchString(cmd.Amount) {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid,
			"amount must be a positive number with exactly two decimal places").
			WithDetail("amount", cmd.Amount)
	}
	amount, err := decimal.NewFromString(cmd.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid,
			"amount must be greater than zero").
			WithDetail("amount", cmd.Amount)
	}

	if cmd.ValueDate == "" {
		return nil, missingField("value_date")
	}
	if _, err := time.Parse("2006-01-02", cmd.ValueDate); err != nil {
		return nil, invalidField("value_date", "value date must be YYYY-MM-DD")
	}

	if err := validateBeneficiary(&cmd.Beneficiary, payMode, amount); err != nil {
		return nil, err
	}

	// cheque rails carry their instrument details inline
	if payMode == domain.PayModeCheque || payMode == domain.PayModeDemand {
		if cmd.BaseCode == "" {
			return nil, missingField("base_code")
		}
		if cmd.ChequeNumber == "" {
			return nil, missingField("cheque_number")
		}
	}

	return &ports.TransferInstruction{
		CRN:                  cmd.CRN,
		PayMode:              payMode,
		TxnType:              txnType,
		Amount:               amount,
		ValueDate:            cmd.ValueDate,
		Beneficiary:          cmd.Beneficiary,
		BaseCode:             cmd.BaseCode,
		ChequeNumber:         cmd.ChequeNumber,
		ChequeDate:           cmd.ChequeDate,
		PayableLocation:      cmd.PayableLocation,
		PrintLocation:        cmd.PrintLocation,
		ProductCode:          cmd.ProductCode,
		SenderToReceiverInfo: cmd.SenderToReceiverInfo,
	}, nil
}

func validateBeneficiary(bene *domain.Beneficiary, payMode domain.PayMode, amount decimal.Decimal) error {
	if bene.Name == "" {
		return missingField("beneficiary.bene_name")
	}
	if bene.Code == "" {
		return missingField("beneficiary.bene_code")
	}
	if len(bene.Name) > maxBeneNameLen {
		return invalidField("beneficiary.bene_name", "beneficiary name exceeds maximum length")
	}
	if len(bene.Code) > maxBeneCodeLen {
		return invalidField("beneficiary.bene_code", "beneficiary code exceeds maximum length")
	}
	if len(bene.AccNum) > maxAccNumLen {
		return invalidField("beneficiary.bene_acc_num", "account number exceeds maximum length")
	}
	if len(bene.BankName) > maxBankNameLen {
		return invalidField("beneficiary.bene_bank_name", "bank name exceeds maximum length")
	}
	if len(bene.Email) > maxEmailLen {
		return invalidField("beneficiary.bene_email", "email exceeds maximum length")
	}
	if len(bene.Mobile) > maxMobileLen {
		return invalidField("beneficiary.bene_mobile", "mobile number exceeds maximum length")
	}

	// RT/NE/FT need routable account coordinates; PA resolves the account
	// from the registered beneficiary code alone
	switch payMode {
	case domain.PayModeRTGS, domain.PayModeNEFT:
		if bene.AccNum == "" {
			return missingField("beneficiary.bene_acc_num")
		}
		if len(bene.IFSC) != ifscLen {
			return invalidField("beneficiary.bene_ifsc_code", "IFSC code must be 11 characters")
		}
	case domain.PayModeIntra:
		if bene.AccNum == "" {
			return missingField("beneficiary.bene_acc_num")
		}
	}

	if amount.GreaterThanOrEqual(leiThreshold) && bene.LEI == "" {
		return missingField("beneficiary.bene_lei")
	}
	return nil
}
