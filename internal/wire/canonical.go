// Package wire implements the two on-the-wire encodings this controller
// uses: the canonical, length-prefixed JSON framing every KEL/TEL event is
// stored and streamed in (§6 of the spec), and a protobuf-wire transport
// envelope for the Dispatcher's task/result traffic (see task.go).
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/karasz/kelissuer/internal/errs"
)

const (
	magic      = "KELI"
	versionTag = "10"
	encTag     = "JSON"
	sizeDigits = 6
	// HeaderLen is the fixed width of the version/length header that
	// precedes every serialized event: "KELI" + "10" + "JSON" + 6 hex
	// digits + "_".
	HeaderLen = len(magic) + len(versionTag) + len(encTag) + sizeDigits + 1
)

// Compose canonically serializes body and prefixes it with the
// version/length header. The header is not covered by digests or
// signatures: the kel and tel engines sign and digest the json.Marshal
// bytes of the event itself, and re-marshal decoded events to check them.
func Compose(body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errs.Wrapf(errs.KindParse, err, "marshal canonical body")
	}
	if len(payload) > (1<<(4*sizeDigits))-1 {
		return nil, errs.Newf(errs.KindParse, "event body too large: %d bytes", len(payload))
	}
	header := fmt.Sprintf("%s%s%s%0*x_", magic, versionTag, encTag, sizeDigits, len(payload))
	out := make([]byte, 0, len(header)+len(payload))
	out = append(out, header...)
	out = append(out, payload...)
	return out, nil
}

// Header describes a parsed version/length prefix.
type Header struct {
	Version string
	Size    int
}

// ParseHeader parses the fixed-width header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderLen {
		return Header{}, errs.Newf(errs.KindParse, "message shorter than header (%d bytes)", len(data))
	}
	if !bytes.HasPrefix(data, []byte(magic)) {
		return Header{}, errs.Newf(errs.KindParse, "bad magic %q", data[:len(magic)])
	}
	rest := data[len(magic):]
	version := string(rest[:len(versionTag)])
	rest = rest[len(versionTag):]
	if string(rest[:len(encTag)]) != encTag {
		return Header{}, errs.Newf(errs.KindParse, "unsupported encoding %q", rest[:len(encTag)])
	}
	rest = rest[len(encTag):]
	sizeHex := string(rest[:sizeDigits])
	n, err := parseHexSize(sizeHex)
	if err != nil {
		return Header{}, errs.Wrapf(errs.KindParse, err, "parse size field %q", sizeHex)
	}
	rest = rest[sizeDigits:]
	if len(rest) == 0 || rest[0] != '_' {
		return Header{}, errs.New(errs.KindParse, "missing header terminator")
	}
	return Header{Version: version, Size: n}, nil
}

func parseHexSize(s string) (int, error) {
	var n int
	for _, c := range s {
		n <<= 4
		switch {
		case c >= '0' && c <= '9':
			n |= int(c - '0')
		case c >= 'a' && c <= 'f':
			n |= int(c-'a') + 10
		default:
			return 0, fmt.Errorf("invalid hex digit %q", c)
		}
	}
	return n, nil
}

// Next splits one framed message off the front of data, returning the
// decoded body bytes and whatever remains of the stream. It is used both
// by get_kerl()'s canonical concatenation and by respond()'s foreign event
// stream, which may carry more than one message back to back.
func Next(data []byte) (body []byte, remainder []byte, err error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, nil, err
	}
	total := HeaderLen + h.Size
	if len(data) < total {
		return nil, nil, errs.Newf(errs.KindParse, "truncated message: need %d bytes, have %d", total, len(data))
	}
	return data[HeaderLen:total], data[total:], nil
}

// Decode parses a single framed message into v.
func Decode(data []byte, v any) (remainder []byte, err error) {
	body, rest, err := Next(data)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, errs.Wrapf(errs.KindParse, err, "unmarshal canonical body")
	}
	return rest, nil
}

// Concat joins pre-framed messages for get_kerl()'s "canonical
// concatenation of serialized signed events in sn order" contract.
func Concat(messages [][]byte) []byte {
	var out []byte
	for _, m := range messages {
		out = append(out, m...)
	}
	return out
}
