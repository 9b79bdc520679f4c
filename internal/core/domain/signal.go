package domain

import "encoding/json"

// SignalKind distinguishes which role produced a connection-setup blob.
type SignalKind string

const (
	SignalKindOffer  SignalKind = "offer"
	SignalKindAnswer SignalKind = "answer"
)

// SignalBlob is the opaque connection-setup data the two users exchange
// out-of-band. Beyond the "type" key it is transport-layer territory and
// never inspected here.
type SignalBlob struct {
	Kind SignalKind
	Raw  []byte
}

// ParseSignalBlob validates pasted signal text: it must be a JSON object
// carrying a known "type". Everything else is kept verbatim in Raw.
func ParseSignalBlob(text string) (*SignalBlob, error) {
	var probe struct {
		Type string `json:"type"`
	}
	raw := []byte(text)
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, ErrInvalidSignalFormat
	}
	kind := SignalKind(probe.Type)
	if kind != SignalKindOffer && kind != SignalKindAnswer {
		return nil, ErrInvalidSignalFormat
	}
	return &SignalBlob{Kind: kind, Raw: raw}, nil
}

func (b *SignalBlob) String() string {
	return string(b.Raw)
}
