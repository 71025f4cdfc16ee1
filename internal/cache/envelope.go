package cache

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/qnwis/qnwis/internal/query"
)

// CompressionThreshold is the serialized-payload size, in bytes, at which
// envelopes switch from identity to zlib encoding.
const CompressionThreshold = 8 * 1024

// Envelope content encodings.
const (
	EncodingIdentity = "identity"
	EncodingZlib     = "zlib"
)

// envelopeMeta is the _meta block of a stored envelope. CompressedBytes is
// only present for compressed payloads.
type envelopeMeta struct {
	ContentEncoding string `json:"content_encoding"`
	Compressed      bool   `json:"compressed"`
	OriginalBytes   int    `json:"original_bytes"`
	CompressedBytes int    `json:"compressed_bytes,omitempty"`
}

// envelope is the stored shape: meta plus a string payload holding either
// raw result JSON (identity) or base64 of zlib-compressed result JSON.
type envelope struct {
	Meta    envelopeMeta `json:"_meta"`
	Payload string       `json:"payload"`
}

// Encode serializes a result into the storable envelope string. Payloads at
// or above CompressionThreshold are zlib-compressed and base64-wrapped;
// smaller ones are embedded as-is.
func Encode(result *query.Result) (string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("envelope encode: %w", err)
	}

	env := envelope{
		Meta: envelopeMeta{
			ContentEncoding: EncodingIdentity,
			OriginalBytes:   len(payload),
		},
		Payload: string(payload),
	}

	if len(payload) >= CompressionThreshold {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return "", fmt.Errorf("envelope compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			return "", fmt.Errorf("envelope compress: %w", err)
		}
		env.Meta.ContentEncoding = EncodingZlib
		env.Meta.Compressed = true
		env.Meta.CompressedBytes = buf.Len()
		env.Payload = base64.StdEncoding.EncodeToString(buf.Bytes())
	}

	out, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("envelope encode: %w", err)
	}
	return string(out), nil
}

// Decode parses a stored value in any of the three accepted shapes:
// identity envelope, zlib envelope, or a legacy bare result (a JSON object
// with a top-level query_id and no _meta, written before envelopes
// existed). Anything else is a *DecodingError, which callers treat as a
// corrupt entry to delete, never as a query failure.
func Decode(value string) (*query.Result, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(value), &probe); err != nil {
		return nil, &DecodingError{Reason: "value is not a JSON object", Err: err}
	}

	if metaRaw, ok := probe["_meta"]; ok {
		return decodeEnvelope(metaRaw, probe)
	}
	if _, ok := probe["query_id"]; ok {
		var result query.Result
		if err := json.Unmarshal([]byte(value), &result); err != nil {
			return nil, &DecodingError{Reason: "legacy result malformed", Err: err}
		}
		return &result, nil
	}
	return nil, &DecodingError{Reason: "neither envelope nor legacy result"}
}

func decodeEnvelope(metaRaw json.RawMessage, probe map[string]json.RawMessage) (*query.Result, error) {
	var meta envelopeMeta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, &DecodingError{Reason: "malformed _meta", Err: err}
	}

	payloadRaw, ok := probe["payload"]
	if !ok {
		return nil, &DecodingError{Reason: "envelope missing payload"}
	}
	var payload string
	if err := json.Unmarshal(payloadRaw, &payload); err != nil {
		return nil, &DecodingError{Reason: "payload is not a string", Err: err}
	}

	var inner []byte
	switch meta.ContentEncoding {
	case EncodingIdentity:
		inner = []byte(payload)
	case EncodingZlib:
		compressed, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, &DecodingError{Reason: "payload is not valid base64", Err: err}
		}
		zr, err := zlib.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, &DecodingError{Reason: "payload is not a zlib stream", Err: err}
		}
		inner, err = io.ReadAll(zr)
		if cerr := zr.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, &DecodingError{Reason: "zlib stream truncated or corrupt", Err: err}
		}
	default:
		return nil, &DecodingError{
			Reason: fmt.Sprintf("unknown content_encoding %q", meta.ContentEncoding),
		}
	}

	var result query.Result
	if err := json.Unmarshal(inner, &result); err != nil {
		return nil, &DecodingError{Reason: "payload JSON malformed", Err: err}
	}
	if result.QueryID == "" {
		return nil, &DecodingError{Reason: "payload missing query_id"}
	}
	return &result, nil
}
