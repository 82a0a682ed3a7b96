package axis

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elevenpay/axis-payout-service/internal/domain"
	"github.com/elevenpay/axis-payout-service/internal/domain/ports"
	"github.com/elevenpay/axis-payout-service/pkg/crypto"
)

type mockHTTPClient struct {
	do func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.do(req)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func testConfig() Config {
	return Config{
		BaseURL:        "https://gateway.test/api/txb/v3",
		ChannelID:      "ELEVENPAY",
		CorpCode:       "DEMOCORP159",
		CorpAccNum:     "309010100067740",
		ClientID:       "client-id",
		ClientSecret:   "client-secret",
		ServiceID:      "OpenApi",
		ServiceVersion: "1.0",
		Timeout:        30 * time.Second,
	}
}

func testEnvelope(t *testing.T) *crypto.Envelope {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	env, err := crypto.NewEnvelope(&crypto.KeyMaterial{
		ClientPrivateKey:      key,
		CounterpartyPublicKey: &key.PublicKey,
	})
	require.NoError(t, err)
	return env
}

// respondWith decrypts the request token and replies with an enveloped payload.
func respondWith(t *testing.T, env *crypto.Envelope, reply crypto.OrderedObject, capture *crypto.OrderedObject) func(*http.Request) (*http.Response, error) {
	t.Helper()
	return func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)

		decrypted, err := env.VerifyAndDecrypt(string(body))
		require.NoError(t, err)
		if capture != nil {
			obj, ok := decrypted.(crypto.OrderedObject)
			require.True(t, ok)
			*capture = obj
		}

		token, err := env.EncryptAndSign(reply)
		require.NoError(t, err)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(token)),
		}, nil
	}
}

func testInstruction() *ports.TransferInstruction {
	return &ports.TransferInstruction{
		CRN:       "REF-001",
		PayMode:   domain.PayModeNEFT,
		TxnType:   domain.TxnTypeCustomer,
		Amount:    decimal.RequireFromString("1000.00"),
		ValueDate: "2026-09-01",
		Beneficiary: domain.Beneficiary{
			Code:   "BENE01",
			Name:   "Acme Traders",
			AccNum: "1234567890",
			IFSC:   "UTIB0000001",
		},
	}
}

func TestTransferPayment_Accepted(t *testing.T) {
	env := testEnvelope(t)
	var sent crypto.OrderedObject

	reply := crypto.OrderedObject{
		{Key: "Data", Value: crypto.OrderedObject{
			{Key: "status", Value: "S"},
			{Key: "txnReferenceId", Value: "AXIS123"},
			{Key: "statusDescription", Value: "accepted for processing"},
		}},
	}

	client := NewClient(testConfig(), env, &mockHTTPClient{do: respondWith(t, env, reply, &sent)}, zap.NewNop())

	result, err := client.TransferPayment(context.Background(), testInstruction())
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Equal(t, "AXIS123", result.GatewayTxnRef)
	assert.NotEmpty(t, result.RawToken)
	assert.NotEmpty(t, result.RawResponse)

	// the outbound payload carries a self-consistent positional checksum
	data, ok := sent.Get("Data").(crypto.OrderedObject)
	require.True(t, ok)
	assert.True(t, crypto.VerifyChecksum(data))
	assert.Equal(t, result.ChecksumSent, data.Get("checksum"))

	details, ok := data.Get("paymentDetails").([]interface{})
	require.True(t, ok)
	require.Len(t, details, 1)
	payment, ok := details[0].(crypto.OrderedObject)
	require.True(t, ok)
	assert.Equal(t, "REF-001", payment.Get("custUniqRef"))
	assert.Equal(t, "1000.00", payment.Get("txnAmount"))
	// corp account comes from config, not the instruction
	assert.Equal(t, "309010100067740", payment.Get("corpAccNum"))
}

func TestTransferPayment_BusinessRejectionIsNotAnError(t *testing.T) {
	env := testEnvelope(t)
	reply := crypto.OrderedObject{
		{Key: "Data", Value: crypto.OrderedObject{
			{Key: "status", Value: "F"},
			{Key: "statusDescription", Value: "insufficient balance"},
		}},
	}

	client := NewClient(testConfig(), env, &mockHTTPClient{do: respondWith(t, env, reply, nil)}, zap.NewNop())

	result, err := client.TransferPayment(context.Background(), testInstruction())
	require.NoError(t, err)

	assert.False(t, result.Accepted)
	assert.Equal(t, "insufficient balance", result.Description)
}

func TestTransferPayment_SetsPerCallHeaders(t *testing.T) {
	env := testEnvelope(t)
	var gotHeaders http.Header

	reply := crypto.OrderedObject{
		{Key: "Data", Value: crypto.OrderedObject{{Key: "status", Value: "S"}}},
	}
	inner := respondWith(t, env, reply, nil)
	client := NewClient(testConfig(), env, &mockHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		gotHeaders = req.Header.Clone()
		return inner(req)
	}}, zap.NewNop())

	_, err := client.TransferPayment(context.Background(), testInstruction())
	require.NoError(t, err)

	assert.Equal(t, "text/plain", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "ELEVENPAY", gotHeaders.Get("x-fapi-channel-id"))
	assert.Equal(t, "client-id", gotHeaders.Get("X-IBM-Client-Id"))
	assert.NotEmpty(t, gotHeaders.Get("x-fapi-uuid"))
	assert.NotEmpty(t, gotHeaders.Get("x-fapi-epoch-millis"))
}

func TestTransferPayment_Non2xxIsNetworkError(t *testing.T) {
	env := testEnvelope(t)
	client := NewClient(testConfig(), env, &mockHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadGateway,
			Body:       io.NopCloser(strings.NewReader("upstream unavailable")),
		}, nil
	}}, zap.NewNop())

	_, err := client.TransferPayment(context.Background(), testInstruction())
	require.Error(t, err)

	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeGatewayNetwork))
	assert.True(t, domain.IsRetriable(err))
}

func TestTransferPayment_TimeoutIsDistinctFromNetworkError(t *testing.T) {
	env := testEnvelope(t)
	client := NewClient(testConfig(), env, &mockHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		return nil, timeoutErr{}
	}}, zap.NewNop())

	_, err := client.TransferPayment(context.Background(), testInstruction())
	require.Error(t, err)

	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeGatewayTimeout))
	assert.True(t, domain.IsRetriable(err))
}

func TestGetTransferStatus_ParsesObservations(t *testing.T) {
	env := testEnvelope(t)
	var sent crypto.OrderedObject

	reply := crypto.OrderedObject{
		{Key: "Data", Value: crypto.OrderedObject{
			{Key: "data", Value: crypto.OrderedObject{
				{Key: "curTxnEnq", Value: []interface{}{
					crypto.OrderedObject{
						{Key: "crn", Value: "REF-001"},
						{Key: "transactionid", Value: "AXIS123"},
						{Key: "transactionStatus", Value: "3"},
						{Key: "statusDescription", Value: "PROCESSED"},
						{Key: "utrNo", Value: "UTR123"},
						{Key: "batchNo", Value: "B77"},
						{Key: "processingDate", Value: "2026-09-01 10:22:33"},
					},
				}},
			}},
		}},
	}

	client := NewClient(testConfig(), env, &mockHTTPClient{do: respondWith(t, env, reply, &sent)}, zap.NewNop())

	obs, err := client.GetTransferStatus(context.Background(), []string{"REF-001"})
	require.NoError(t, err)
	require.Len(t, obs, 1)

	assert.Equal(t, "REF-001", obs[0].CRN)
	assert.Equal(t, "AXIS123", obs[0].GatewayTxnRef)
	assert.Equal(t, "3", obs[0].CounterpartyCode)
	assert.Equal(t, "UTR123", obs[0].UTR)
	assert.Equal(t, "B77", obs[0].BatchID)

	// request carried the CRN as an array element
	data, ok := sent.Get("Data").(crypto.OrderedObject)
	require.True(t, ok)
	crns, ok := data.Get("crn").([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"REF-001"}, crns)
}

func TestGetBalance_ParsesBalance(t *testing.T) {
	env := testEnvelope(t)
	reply := crypto.OrderedObject{
		{Key: "Data", Value: crypto.OrderedObject{
			{Key: "data", Value: crypto.OrderedObject{
				{Key: "balance", Value: "250000.50"},
			}},
		}},
	}

	client := NewClient(testConfig(), env, &mockHTTPClient{do: respondWith(t, env, reply, nil)}, zap.NewNop())

	result, err := client.GetBalance(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "309010100067740", result.CorpAccNum) // defaults from config
	assert.Equal(t, "250000.50", result.Balance.StringFixed(2))
	assert.NotEmpty(t, result.RawResponse)
}
