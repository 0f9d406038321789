// Package transcode bridges JSON request/response bodies to CBOR on the
// wire (RFC 7252 §12.3 application/cbor), grounded on the teacher's
// cbor_codec.go/cbor.go: fxamacker/cbor for the CBOR codec itself and
// json-iterator/go as the faster encoding/json-compatible substitute the
// teacher aliases as `json` in cbor.go ("var json =
// jsoniter.ConfigCompatibleWithStandardLibrary"). Used by the /debug/echo
// resource, which advertises application/cbor, to shrink response bodies
// for constrained links, the same "low-bandwidth" motivation as the teacher's
// MSC3079 JSON<->CBOR bridge (lowbandwidth.go).
package transcode

import (
	"bytes"
	"fmt"
	"io"

	cbor "github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Codec converts a single JSON document to/from a single CBOR document.
// The keys map passed to New optionally maps long JSON field names to small integer CBOR map
// keys (the teacher's MSC3079 key-shrinking trick) to further cut payload
// size; a nil/empty map passes field names through unchanged.
type Codec struct {
	keys     map[string]int
	enumKeys map[int]string
}

// New builds a Codec. keys maps JSON field name -> CBOR integer key; it may
// be nil to skip key-shrinking entirely.
func New(keys map[string]int) (*Codec, error) {
	c := &Codec{keys: keys, enumKeys: make(map[int]string, len(keys))}
	for k, v := range keys {
		if _, exists := c.enumKeys[v]; exists {
			return nil, fmt.Errorf("transcode: duplicate CBOR enum key %d (%q)", v, k)
		}
		c.enumKeys[v] = k
	}
	return c, nil
}

// JSONToCBOR converts a single JSON object read from input into CBOR bytes.
func (c *Codec) JSONToCBOR(input io.Reader) ([]byte, error) {
	var intermediate interface{}
	if err := json.NewDecoder(input).Decode(&intermediate); err != nil {
		return nil, fmt.Errorf("transcode: decoding json: %w", err)
	}
	intermediate = substituteKeys(intermediate, c.keys)
	return cbor.Marshal(intermediate)
}

// CBORToJSON converts a single CBOR object read from input into JSON bytes.
func (c *Codec) CBORToJSON(input io.Reader) ([]byte, error) {
	var intermediate interface{}
	if err := cbor.NewDecoder(input).Decode(&intermediate); err != nil {
		return nil, fmt.Errorf("transcode: decoding cbor: %w", err)
	}
	intermediate = restoreKeys(intermediate, c.enumKeys)
	return json.Marshal(intermediate)
}

// JSONBytesToCBOR is a byte-slice convenience wrapper over JSONToCBOR.
func (c *Codec) JSONBytesToCBOR(body []byte) ([]byte, error) {
	return c.JSONToCBOR(bytes.NewReader(body))
}

// CBORBytesToJSON is a byte-slice convenience wrapper over CBORToJSON.
func (c *Codec) CBORBytesToJSON(body []byte) ([]byte, error) {
	return c.CBORToJSON(bytes.NewReader(body))
}

// substituteKeys walks a decoded JSON value, replacing map string keys with
// their shrunk integer form wherever keys names one.
func substituteKeys(v interface{}, keys map[string]int) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[interface{}]interface{}, len(val))
		for k, child := range val {
			child = substituteKeys(child, keys)
			if enum, ok := keys[k]; ok {
				out[enum] = child
			} else {
				out[k] = child
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = substituteKeys(child, keys)
		}
		return out
	default:
		return v
	}
}

// restoreKeys is substituteKeys' inverse, applied after CBOR decode.
func restoreKeys(v interface{}, enumKeys map[int]string) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			child = restoreKeys(child, enumKeys)
			switch key := k.(type) {
			case int64:
				if name, ok := enumKeys[int(key)]; ok {
					out[name] = child
					continue
				}
				out[fmt.Sprintf("%d", key)] = child
			case uint64:
				if name, ok := enumKeys[int(key)]; ok {
					out[name] = child
					continue
				}
				out[fmt.Sprintf("%d", key)] = child
			case string:
				out[key] = child
			default:
				out[fmt.Sprintf("%v", key)] = child
			}
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[k] = restoreKeys(child, enumKeys)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = restoreKeys(child, enumKeys)
		}
		return out
	default:
		return v
	}
}
