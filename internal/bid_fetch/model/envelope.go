package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ResultCodeOK is the header resultCode of a successful G2B response.
const ResultCodeOK = "00"

// Envelope is the decoded G2B response together with the bytes it was decoded from, so the
// raw payload can be stored verbatim.
//
//	{"response": {"header": {"resultCode", "resultMsg"}, "body": {"items", "totalCount", ...}}}
type Envelope struct {
	Response *EnvelopeResponse `json:"response"`

	Raw []byte `json:"-"`
}

type EnvelopeResponse struct {
	Header EnvelopeHeader `json:"header"`
	Body   EnvelopeBody   `json:"body"`
}

type EnvelopeHeader struct {
	ResultCode string `json:"resultCode"`
	ResultMsg  string `json:"resultMsg"`
}

type EnvelopeBody struct {
	Items      json.RawMessage `json:"items"`
	TotalCount FlexInt         `json:"totalCount"`
	NumOfRows  FlexInt         `json:"numOfRows"`
	PageNo     FlexInt         `json:"pageNo"`
}

// DecodeEnvelope parses a response body. It fails when the body is not a JSON object or has no
// top-level "response" key.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Response == nil {
		return nil, fmt.Errorf("decode envelope: missing %q field", "response")
	}
	env.Raw = raw
	return &env, nil
}

// OK reports whether the header carries the success result code.
func (e *Envelope) OK() bool {
	return e.Response != nil && e.Response.Header.ResultCode == ResultCodeOK
}

// TotalCount is body.totalCount.
func (e *Envelope) TotalCount() int {
	if e.Response == nil {
		return 0
	}
	return int(e.Response.Body.TotalCount)
}

// Items returns body.items as notices. The API has been seen returning a plain array, an
// object wrapping "item" (array or single object), and an empty string when nothing matched.
func (e *Envelope) Items() ([]BidNotice, error) {
	if e.Response == nil {
		return nil, nil
	}
	raw := bytes.TrimSpace(e.Response.Body.Items)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`)) {
		return []BidNotice{}, nil
	}

	switch raw[0] {
	case '[':
		return decodeNotices(raw)
	case '{':
		var wrapper struct {
			Item json.RawMessage `json:"item"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
		inner := bytes.TrimSpace(wrapper.Item)
		if len(inner) == 0 {
			return []BidNotice{}, nil
		}
		if inner[0] == '[' {
			return decodeNotices(inner)
		}
		one, err := decodeNotice(inner)
		if err != nil {
			return nil, err
		}
		return []BidNotice{one}, nil
	default:
		return nil, fmt.Errorf("decode items: unexpected shape %q", truncate(string(raw), 40))
	}
}

func decodeNotices(raw []byte) ([]BidNotice, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out []BidNotice
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if out == nil {
		out = []BidNotice{}
	}
	return out, nil
}

func decodeNotice(raw []byte) (BidNotice, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out BidNotice
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return out, nil
}

// FlexInt accepts both 12 and "12".
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("flexint %q: %w", s, err)
	}
	*f = FlexInt(n)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
