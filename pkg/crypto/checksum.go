package crypto

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// checksumField is skipped during traversal; a checksum cannot include itself.
const checksumField = "checksum"

// Field is one key/value pair of an ordered payload object.
type Field struct {
	Key   string
	Value interface{}
}

// OrderedObject is a JSON object whose field order is explicit and
// load-bearing. The counterparty's checksum is positional, not canonical:
// two payloads with the same key/value sets but different field order hash
// differently. Outbound payloads are built as OrderedObject in the order the
// counterparty's schema declares; inbound payloads are decoded with
// DecodeOrdered so wire order is preserved.
type OrderedObject []Field

// Get returns the value for a key, or nil if absent.
func (o OrderedObject) Get(key string) interface{} {
	for _, f := range o {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

// Set replaces the value for an existing key or appends a new field.
func (o OrderedObject) Set(key string, value interface{}) OrderedObject {
	for i, f := range o {
		if f.Key == key {
			o[i].Value = value
			return o
		}
	}
	return append(o, Field{Key: key, Value: value})
}

// MarshalJSON serializes fields in declared order.
func (o OrderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", f.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Checksum computes the counterparty's integrity digest over a payload:
// recursive traversal in field order, every scalar leaf normalized to its
// string form (null and the literal "null" become empty strings), all leaves
// concatenated with no separator, MD5 of the concatenation as lowercase hex.
// This is a non-cryptographic integrity check only; it is not a substitute
// for the envelope signature.
func Checksum(payload interface{}) string {
	var sb strings.Builder
	appendLeaves(&sb, payload)
	sum := md5.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum recomputes the digest over the payload (the checksum field
// is always skipped during traversal) and compares it with the embedded
// checksum value. A payload without a checksum field never verifies.
func VerifyChecksum(payload OrderedObject) bool {
	embedded, ok := payload.Get(checksumField).(string)
	if !ok || embedded == "" {
		return false
	}
	return Checksum(payload) == embedded
}

func appendLeaves(sb *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case OrderedObject:
		for _, f := range val {
			if f.Key == checksumField {
				continue
			}
			appendLeaves(sb, f.Value)
		}
	case []interface{}:
		for _, item := range val {
			appendLeaves(sb, item)
		}
	default:
		sb.WriteString(normalizeLeaf(v))
	}
}

// normalizeLeaf renders a scalar the way the counterparty's reference
// implementation does: null-ish values become "", numbers keep their wire
// text when decoded as json.Number, everything else uses its string form.
func normalizeLeaf(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		if val == "null" {
			return ""
		}
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// DecodeOrdered parses JSON preserving object field order, so inbound
// payloads checksum positionally exactly as they arrived on the wire.
// Objects decode to OrderedObject, arrays to []interface{}, numbers to
// json.Number.
func DecodeOrdered(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}

	// trailing garbage means a framing problem, not valid JSON
	if _, err := dec.Token(); err == nil {
		return nil, fmt.Errorf("unexpected trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := OrderedObject{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj = append(obj, Field{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []interface{}{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return tok, nil
	}
}
