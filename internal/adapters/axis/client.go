package axis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/elevenpay/axis-payout-service/internal/domain"
	"github.com/elevenpay/axis-payout-service/internal/domain/ports"
	"github.com/elevenpay/axis-payout-service/pkg/crypto"
	"github.com/elevenpay/axis-payout-service/pkg/observability"
)

// Gateway endpoint paths under the configured base URL
const (
	pathTransferPayment = "/payments/transfer-payment"
	pathTransferStatus  = "/acct-recon/get-status"
	pathGetBalance      = "/acct-recon/get-balance"
	pathBeneReg         = "/payee-mgmt/beneficiary-registration"
	pathBeneEnquiry     = "/payee-mgmt/beneficiary-enquiry"
)

// acceptedStatus is the synchronous acknowledgement code meaning the
// counterparty accepted the instruction for processing.
const acceptedStatus = "S"

// Config holds counterparty gateway configuration
type Config struct {
	BaseURL        string // e.g. https://saksham.axis.bank.in/gateway/api/txb/v3
	ChannelID      string
	CorpCode       string
	CorpAccNum     string
	ClientID       string
	ClientSecret   string
	ServiceID      string
	ServiceVersion string
	Timeout        time.Duration
}

// Client implements ports.PayoutGateway against the counterparty's TXB API.
// Every call is a POST whose body is the compact signed-encrypted token; the
// counterparty replies 200 with another compact token even for business
// rejections, which are encoded inside the decrypted payload.
type Client struct {
	config     Config
	envelope   *crypto.Envelope
	httpClient ports.HTTPClient
	logger     *zap.Logger
}

// NewClient creates a gateway client with dependency injection
func NewClient(config Config, envelope *crypto.Envelope, httpClient ports.HTTPClient, logger *zap.Logger) *Client {
	return &Client{
		config:     config,
		envelope:   envelope,
		httpClient: httpClient,
		logger:     logger,
	}
}

// NewClientWithDefaults creates a gateway client with a default HTTP client
func NewClientWithDefaults(config Config, envelope *crypto.Envelope, logger *zap.Logger) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config:   config,
		envelope: envelope,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// TransferPayment implements ports.PayoutGateway.TransferPayment
func (c *Client) TransferPayment(ctx context.Context, instr *ports.TransferInstruction) (*ports.TransferResult, error) {
	payload, checksum := c.buildTransferPayload(instr)

	token, respToken, respPayload, err := c.post(ctx, "transfer_payment", pathTransferPayment, payload)
	if err != nil {
		return nil, err
	}

	data := dataSection(respPayload)
	result := &ports.TransferResult{
		Accepted:      strField(data, "status") == acceptedStatus,
		GatewayTxnRef: strField(data, "txnReferenceId"),
		StatusCode:    strField(data, "status"),
		Description:   strField(data, "statusDescription"),
		ChecksumSent:  checksum,
		RawToken:      token,
		RawResponse:   respToken,
	}

	c.logger.Info("transfer payment acknowledged",
		zap.String("crn", instr.CRN),
		zap.Bool("accepted", result.Accepted),
		zap.String("gateway_txn_ref", result.GatewayTxnRef),
	)
	return result, nil
}

// GetTransferStatus implements ports.PayoutGateway.GetTransferStatus
func (c *Client) GetTransferStatus(ctx context.Context, crns []string) ([]ports.StatusObservation, error) {
	payload := c.buildStatusPayload(crns)

	_, _, respPayload, err := c.post(ctx, "get_status", pathTransferStatus, payload)
	if err != nil {
		return nil, err
	}

	data := dataSection(respPayload)
	records := findRecordArray(data)

	observations := make([]ports.StatusObservation, 0, len(records))
	for _, rec := range records {
		obj, ok := rec.(crypto.OrderedObject)
		if !ok {
			continue
		}
		observations = append(observations, ports.StatusObservation{
			CRN:              firstStrField(obj, "crn", "custUniqRef"),
			GatewayTxnRef:    firstStrField(obj, "transactionid", "transactionId", "txnReferenceId"),
			CounterpartyCode: firstStrField(obj, "transactionStatus", "txnStatus"),
			Description:      strField(obj, "statusDescription"),
			UTR:              strField(obj, "utrNo"),
			BatchID:          strField(obj, "batchNo"),
			CounterpartyTime: strField(obj, "processingDate"),
		})
	}

	c.logger.Info("transfer status polled",
		zap.Int("requested", len(crns)),
		zap.Int("observations", len(observations)),
	)
	return observations, nil
}

// GetBalance implements ports.PayoutGateway.GetBalance
func (c *Client) GetBalance(ctx context.Context, corpAccNum string) (*ports.BalanceResult, error) {
	if corpAccNum == "" {
		corpAccNum = c.config.CorpAccNum
	}
	payload := c.buildBalancePayload(corpAccNum)

	_, _, respPayload, err := c.post(ctx, "get_balance", pathGetBalance, payload)
	if err != nil {
		return nil, err
	}

	data := dataSection(respPayload)
	balanceText := firstStrField(data, "balance", "Balance")
	balance, perr := decimal.NewFromString(balanceText)
	if perr != nil {
		return nil, domain.WrapError(domain.ErrorCodeGatewayNetwork,
			"unparseable balance in gateway reply", perr).WithDetail("balance", balanceText)
	}

	raw, _ := json.Marshal(respPayload)
	return &ports.BalanceResult{
		CorpAccNum:  corpAccNum,
		Balance:     balance,
		RawResponse: raw,
	}, nil
}

// RegisterBeneficiary implements ports.PayoutGateway.RegisterBeneficiary
func (c *Client) RegisterBeneficiary(ctx context.Context, bene *domain.Beneficiary) (*ports.BeneficiaryResult, error) {
	payload := c.buildBeneRegistrationPayload(bene)

	_, _, respPayload, err := c.post(ctx, "beneficiary_registration", pathBeneReg, payload)
	if err != nil {
		return nil, err
	}

	data := dataSection(respPayload)
	status := strField(data, "status")
	return &ports.BeneficiaryResult{
		BeneCode:    bene.Code,
		StatusCode:  status,
		Description: strField(data, "statusDescription"),
		Registered:  status == acceptedStatus,
	}, nil
}

// EnquireBeneficiary implements ports.PayoutGateway.EnquireBeneficiary
func (c *Client) EnquireBeneficiary(ctx context.Context, beneCode string) (*ports.BeneficiaryResult, error) {
	payload := c.buildBeneEnquiryPayload(beneCode)

	_, _, respPayload, err := c.post(ctx, "beneficiary_enquiry", pathBeneEnquiry, payload)
	if err != nil {
		return nil, err
	}

	data := dataSection(respPayload)
	status := strField(data, "status")
	return &ports.BeneficiaryResult{
		BeneCode:    firstStrField(data, "beneCode", "beneCodes"),
		StatusCode:  status,
		Description: strField(data, "statusDescription"),
		Registered:  status == acceptedStatus,
	}, nil
}

// baseHeaders builds the per-call header set: fresh nonce and epoch
// timestamp on every request.
func (c *Client) baseHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	h.Set("x-fapi-epoch-millis", strconv.FormatInt(time.Now().UnixMilli(), 10))
	h.Set("x-fapi-channel-id", c.config.ChannelID)
	h.Set("x-fapi-uuid", uuid.NewString())
	h.Set("x-fapi-serviceId", c.config.ServiceID)
	h.Set("x-fapi-serviceVersion", c.config.ServiceVersion)
	h.Set("X-IBM-Client-Id", c.config.ClientID)
	h.Set("X-IBM-Client-Secret", c.config.ClientSecret)
	return h
}

// post wraps the payload in the secure envelope, sends it, and unwraps the
// response. Returns the request token, response token, and decrypted
// response payload. Network-level failures and envelope failures are
// distinguished per the error taxonomy; a 200 always decrypts, business
// rejection lives inside the payload.
func (c *Client) post(ctx context.Context, operation, path string, payload interface{}) (string, string, interface{}, error) {
	start := time.Now()

	token, err := c.envelope.EncryptAndSign(payload)
	if err != nil {
		observability.ObserveGatewayRequest(operation, "envelope_error", time.Since(start))
		return "", "", nil, err
	}

	url := c.config.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(token))
	if err != nil {
		return "", "", nil, domain.WrapError(domain.ErrorCodeGatewayNetwork, "build request", err)
	}
	req.Header = c.baseHeaders()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome, derr := classifyTransportError(err)
		observability.ObserveGatewayRequest(operation, outcome, time.Since(start))
		c.logger.Error("gateway call failed",
			zap.String("operation", operation),
			zap.Error(err),
		)
		return "", "", nil, derr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.ObserveGatewayRequest(operation, "network_error", time.Since(start))
		return "", "", nil, domain.WrapError(domain.ErrorCodeGatewayNetwork, "read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.ObserveGatewayRequest(operation, "network_error", time.Since(start))
		return "", "", nil, domain.NewDomainError(domain.ErrorCodeGatewayNetwork,
			fmt.Sprintf("gateway returned HTTP %d", resp.StatusCode)).
			WithDetail("operation", operation)
	}

	respToken := strings.TrimSpace(string(body))
	respPayload, err := c.envelope.VerifyAndDecrypt(respToken)
	if err != nil {
		observability.ObserveGatewayRequest(operation, "envelope_error", time.Since(start))
		c.logger.Error("gateway response failed envelope verification",
			zap.String("operation", operation),
			zap.Error(err),
		)
		return "", "", nil, err
	}

	observability.ObserveGatewayRequest(operation, "ok", time.Since(start))
	return token, respToken, respPayload, nil
}

// classifyTransportError separates timeouts from other network failures so
// callers can apply the retry policy. Both are retryable with the same
// correlation reference; business rejections never come through this path.
func classifyTransportError(err error) (string, error) {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "timeout", domain.WrapError(domain.ErrorCodeGatewayTimeout, "gateway call timed out", err)
	}
	return "network_error", domain.WrapError(domain.ErrorCodeGatewayNetwork, "gateway unreachable", err)
}

// dataSection unwraps the response's Data object. The counterparty is not
// consistent about casing or nesting, so check Data, then data, then fall
// back to the payload itself. A nested inner data object is flattened one
// level since field lookups search it anyway.
func dataSection(payload interface{}) crypto.OrderedObject {
	obj, ok := payload.(crypto.OrderedObject)
	if !ok {
		return nil
	}
	for _, key := range []string{"Data", "data"} {
		if inner, ok := obj.Get(key).(crypto.OrderedObject); ok {
			obj = inner
			break
		}
	}
	if inner, ok := obj.Get("data").(crypto.OrderedObject); ok {
		// merge: inner fields take precedence for lookups, outer kept for
		// status/checksum fields
		merged := make(crypto.OrderedObject, 0, len(obj)+len(inner))
		merged = append(merged, inner...)
		merged = append(merged, obj...)
		return merged
	}
	return obj
}

// findRecordArray locates the first array value in the data section; the
// counterparty wraps status enquiry records in differently named arrays per
// API version.
func findRecordArray(data crypto.OrderedObject) []interface{} {
	for _, key := range []string{"curTxnEnq", "transactionDetails", "statusDetails"} {
		if arr, ok := data.Get(key).([]interface{}); ok {
			return arr
		}
	}
	for _, f := range data {
		if arr, ok := f.Value.([]interface{}); ok {
			return arr
		}
	}
	return nil
}

func strField(obj crypto.OrderedObject, key string) string {
	switch v := obj.Get(key).(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func firstStrField(obj crypto.OrderedObject, keys ...string) string {
	for _, key := range keys {
		if s := strField(obj, key); s != "" {
			return s
		}
	}
	return ""
}
