package axis

import (
	"github.com/elevenpay/axis-payout-service/internal/domain"
	"github.com/elevenpay/axis-payout-service/internal/domain/ports"
	"github.com/elevenpay/axis-payout-service/pkg/crypto"
)

// Payload builders. Field order follows the counterparty's documented schema
// and is load-bearing: the checksum is positional, so these OrderedObjects
// are the single source of truth for field sequence. Optional fields are
// sent as empty strings, never omitted.

// buildTransferPayload assembles the transfer-payment request body. The
// checksum covers the Data object with the checksum field itself skipped.
func (c *Client) buildTransferPayload(instr *ports.TransferInstruction) (crypto.OrderedObject, string) {
	payment := crypto.OrderedObject{
		{Key: "txnPaymode", Value: string(instr.PayMode)},
		{Key: "custUniqRef", Value: instr.CRN},
		{Key: "txnType", Value: string(instr.TxnType)},
		{Key: "txnAmount", Value: instr.Amount.StringFixed(2)},
		{Key: "beneLEI", Value: instr.Beneficiary.LEI},
		{Key: "corpAccNum", Value: c.config.CorpAccNum},
		{Key: "beneCode", Value: instr.Beneficiary.Code},
		{Key: "valueDate", Value: instr.ValueDate},
		{Key: "beneName", Value: instr.Beneficiary.Name},
		{Key: "beneAccNum", Value: instr.Beneficiary.AccNum},
		{Key: "beneAcType", Value: instr.Beneficiary.AcType},
		{Key: "beneAddr1", Value: instr.Beneficiary.Addr1},
		{Key: "beneAddr2", Value: instr.Beneficiary.Addr2},
		{Key: "beneAddr3", Value: instr.Beneficiary.Addr3},
		{Key: "beneCity", Value: instr.Beneficiary.City},
		{Key: "beneState", Value: instr.Beneficiary.State},
		{Key: "benePincode", Value: instr.Beneficiary.Pincode},
		{Key: "beneIfscCode", Value: instr.Beneficiary.IFSC},
		{Key: "beneBankName", Value: instr.Beneficiary.BankName},
		{Key: "baseCode", Value: instr.BaseCode},
		{Key: "chequeNumber", Value: instr.ChequeNumber},
		{Key: "chequeDate", Value: instr.ChequeDate},
		{Key: "payableLocation", Value: instr.PayableLocation},
		{Key: "printLocation", Value: instr.PrintLocation},
		{Key: "beneEmailAddr1", Value: instr.Beneficiary.Email},
		{Key: "beneMobileNo", Value: instr.Beneficiary.Mobile},
		{Key: "productCode", Value: instr.ProductCode},
		{Key: "senderToReceiverInfo", Value: instr.SenderToReceiverInfo},
	}

	data := crypto.OrderedObject{
		{Key: "channelId", Value: c.config.ChannelID},
		{Key: "corpCode", Value: c.config.CorpCode},
		{Key: "paymentDetails", Value: []interface{}{payment}},
	}
	checksum := crypto.Checksum(data)
	data = data.Set("checksum", checksum)

	return crypto.OrderedObject{
		{Key: "Data", Value: data},
		{Key: "Risk", Value: crypto.OrderedObject{}},
	}, checksum
}

// buildStatusPayload assembles the get-status request. The counterparty
// takes correlation references as an array.
func (c *Client) buildStatusPayload(crns []string) crypto.OrderedObject {
	refs := make([]interface{}, len(crns))
	for i, crn := range crns {
		refs[i] = crn
	}

	data := crypto.OrderedObject{
		{Key: "channelId", Value: c.config.ChannelID},
		{Key: "corpCode", Value: c.config.CorpCode},
		{Key: "crn", Value: refs},
	}
	data = data.Set("checksum", crypto.Checksum(data))

	return crypto.OrderedObject{
		{Key: "Data", Value: data},
		{Key: "Risk", Value: crypto.OrderedObject{}},
	}
}

// buildBalancePayload assembles the get-balance request. Note the schema
// puts corpAccNum first for this operation.
func (c *Client) buildBalancePayload(corpAccNum string) crypto.OrderedObject {
	data := crypto.OrderedObject{
		{Key: "corpAccNum", Value: corpAccNum},
		{Key: "channelId", Value: c.config.ChannelID},
		{Key: "corpCode", Value: c.config.CorpCode},
	}
	data = data.Set("checksum", crypto.Checksum(data))

	return crypto.OrderedObject{
		{Key: "Data", Value: data},
	}
}

// buildBeneRegistrationPayload assembles the beneficiary-registration request.
func (c *Client) buildBeneRegistrationPayload(bene *domain.Beneficiary) crypto.OrderedObject {
	detail := crypto.OrderedObject{
		{Key: "beneCode", Value: bene.Code},
		{Key: "beneName", Value: bene.Name},
		{Key: "beneAccNum", Value: bene.AccNum},
		{Key: "beneIfscCode", Value: bene.IFSC},
		{Key: "beneAcType", Value: bene.AcType},
		{Key: "beneBankName", Value: bene.BankName},
		{Key: "beneAddr1", Value: bene.Addr1},
		{Key: "beneAddr2", Value: bene.Addr2},
		{Key: "beneAddr3", Value: bene.Addr3},
		{Key: "beneCity", Value: bene.City},
		{Key: "beneState", Value: bene.State},
		{Key: "benePincode", Value: bene.Pincode},
		{Key: "beneEmailAddr1", Value: bene.Email},
		{Key: "beneMobileNo", Value: bene.Mobile},
		{Key: "beneLEI", Value: bene.LEI},
	}

	data := crypto.OrderedObject{
		{Key: "channelId", Value: c.config.ChannelID},
		{Key: "corpCode", Value: c.config.CorpCode},
		{Key: "beneDetails", Value: []interface{}{detail}},
	}
	data = data.Set("checksum", crypto.Checksum(data))

	return crypto.OrderedObject{
		{Key: "Data", Value: data},
		{Key: "Risk", Value: crypto.OrderedObject{}},
	}
}

// buildBeneEnquiryPayload assembles the beneficiary-enquiry request.
func (c *Client) buildBeneEnquiryPayload(beneCode string) crypto.OrderedObject {
	data := crypto.OrderedObject{
		{Key: "channelId", Value: c.config.ChannelID},
		{Key: "corpCode", Value: c.config.CorpCode},
		{Key: "beneCode", Value: []interface{}{beneCode}},
	}
	data = data.Set("checksum", crypto.Checksum(data))

	return crypto.OrderedObject{
		{Key: "Data", Value: data},
		{Key: "Risk", Value: crypto.OrderedObject{}},
	}
}
