package crypto

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestChecksum_ConcatenatesLeavesInOrder(t *testing.T) {
	payload := OrderedObject{
		{Key: "channelId", Value: "ELEVENPAY"},
		{Key: "corpCode", Value: "DEMOCORP159"},
		{Key: "corpAccNum", Value: "309010100067740"},
	}

	assert.Equal(t, md5hex("ELEVENPAYDEMOCORP159309010100067740"), Checksum(payload))
}

func TestChecksum_SkipsChecksumField(t *testing.T) {
	without := OrderedObject{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "2"},
	}
	with := OrderedObject{
		{Key: "a", Value: "1"},
		{Key: "checksum", Value: "deadbeef"},
		{Key: "b", Value: "2"},
	}

	assert.Equal(t, Checksum(without), Checksum(with))
}

func TestChecksum_NormalizesNullish(t *testing.T) {
	payload := OrderedObject{
		{Key: "a", Value: nil},
		{Key: "b", Value: "null"},
		{Key: "c", Value: "x"},
	}

	assert.Equal(t, md5hex("x"), Checksum(payload))
}

func TestChecksum_TraversesNestedArraysAndObjects(t *testing.T) {
	payload := OrderedObject{
		{Key: "channelId", Value: "TXB"},
		{Key: "paymentDetails", Value: []interface{}{
			OrderedObject{
				{Key: "custUniqRef", Value: "REF-001"},
				{Key: "txnAmount", Value: "1000.00"},
			},
		}},
	}

	assert.Equal(t, md5hex("TXBREF-0011000.00"), Checksum(payload))
}

func TestChecksum_EmptyContainersContributeNothing(t *testing.T) {
	payload := OrderedObject{
		{Key: "a", Value: "x"},
		{Key: "empty", Value: []interface{}{}},
		{Key: "obj", Value: OrderedObject{}},
	}

	assert.Equal(t, md5hex("x"), Checksum(payload))
}

func TestChecksum_OrderSensitivity(t *testing.T) {
	ab := OrderedObject{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}
	ba := OrderedObject{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}}

	// positional, not canonical: same key/value set, different digest
	assert.NotEqual(t, Checksum(ab), Checksum(ba))
}

func TestVerifyChecksum_RoundTrip(t *testing.T) {
	payload := OrderedObject{
		{Key: "crn", Value: "REF-001"},
		{Key: "utrNo", Value: "UTR123"},
	}
	payload = payload.Set("checksum", Checksum(payload))

	assert.True(t, VerifyChecksum(payload))
}

func TestVerifyChecksum_MutatedLeafFails(t *testing.T) {
	payload := OrderedObject{
		{Key: "crn", Value: "REF-001"},
		{Key: "utrNo", Value: "UTR123"},
	}
	payload = payload.Set("checksum", Checksum(payload))
	payload = payload.Set("utrNo", "UTR999")

	assert.False(t, VerifyChecksum(payload))
}

func TestVerifyChecksum_MissingChecksumFails(t *testing.T) {
	payload := OrderedObject{{Key: "crn", Value: "REF-001"}}

	assert.False(t, VerifyChecksum(payload))
}

func TestDecodeOrdered_PreservesWireOrder(t *testing.T) {
	raw := []byte(`{"b":"2","a":"1","nested":{"z":"9","y":"8"},"arr":[1,"x"]}`)

	v, err := DecodeOrdered(raw)
	require.NoError(t, err)

	obj, ok := v.(OrderedObject)
	require.True(t, ok)
	assert.Equal(t, "b", obj[0].Key)
	assert.Equal(t, "a", obj[1].Key)

	nested, ok := obj.Get("nested").(OrderedObject)
	require.True(t, ok)
	assert.Equal(t, "z", nested[0].Key)

	// number `1` keeps its wire text through json.Number
	assert.Equal(t, md5hex("21981x"), Checksum(obj))
}

func TestDecodeOrdered_TrailingGarbageFails(t *testing.T) {
	_, err := DecodeOrdered([]byte(`{"a":1} trailing`))

	assert.Error(t, err)
}

func TestDecodeOrdered_VerifyWirePayload(t *testing.T) {
	inner := "REF-001UTR123"
	raw := []byte(`{"crn":"REF-001","utrNo":"UTR123","checksum":"` + md5hex(inner) + `"}`)

	v, err := DecodeOrdered(raw)
	require.NoError(t, err)

	obj, ok := v.(OrderedObject)
	require.True(t, ok)
	assert.True(t, VerifyChecksum(obj))
}
