package relay

import (
	"encoding/json"
	"fmt"

	"github.com/kushscan/kushscan/internal/domain"
)

// Kind tags a relay message on the wire.
type Kind string

const (
	KindProductDetected   Kind = "PRODUCT_DETECTED"
	KindOpenSidePanel     Kind = "OPEN_SIDE_PANEL"
	KindHighlightLookup   Kind = "HIGHLIGHT_LOOKUP"
	KindGetCurrentProduct Kind = "GET_CURRENT_PRODUCT"
	KindCurrentProduct    Kind = "CURRENT_PRODUCT"
)

// Message is the closed union of relay messages. Adding a kind means
// adding a struct here and a case to Encode, Decode and Hub.Dispatch;
// the compiler and the decode error path keep the set in sync.
type Message interface {
	Kind() Kind
}

// ProductDetected flows detector -> panel when the parser chain finds a
// product.
type ProductDetected struct {
	Product *domain.ProductRecord `json:"product"`
}

func (ProductDetected) Kind() Kind { return KindProductDetected }

// OpenSidePanel flows detector/popup -> background, which opens the panel
// for the sending tab.
type OpenSidePanel struct {
	TabID int `json:"tabId,omitempty"`
}

func (OpenSidePanel) Kind() Kind { return KindOpenSidePanel }

// HighlightLookup flows background -> panel carrying user-selected text.
type HighlightLookup struct {
	Text string `json:"text"`
}

func (HighlightLookup) Kind() Kind { return KindHighlightLookup }

// GetCurrentProduct flows panel -> detector as a request; the detector
// answers with CurrentProduct on the same channel.
type GetCurrentProduct struct{}

func (GetCurrentProduct) Kind() Kind { return KindGetCurrentProduct }

// CurrentProduct is the reply to GetCurrentProduct. Product is nil when
// nothing was detected on the current page.
type CurrentProduct struct {
	Product *domain.ProductRecord `json:"product"`
}

func (CurrentProduct) Kind() Kind { return KindCurrentProduct }

// envelope is the wire frame: a type tag plus the kind-specific payload.
type envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode frames a message for the wire.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", msg.Kind(), err)
	}
	return json.Marshal(envelope{Type: msg.Kind(), Payload: payload})
}

// Decode parses a wire frame back into a typed message. An unknown type
// tag is an error, never silently dropped.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	var (
		msg Message
		err error
	)
	switch env.Type {
	case KindProductDetected:
		var m ProductDetected
		err = json.Unmarshal(env.Payload, &m)
		msg = m
	case KindOpenSidePanel:
		var m OpenSidePanel
		if len(env.Payload) > 0 {
			err = json.Unmarshal(env.Payload, &m)
		}
		msg = m
	case KindHighlightLookup:
		var m HighlightLookup
		err = json.Unmarshal(env.Payload, &m)
		msg = m
	case KindGetCurrentProduct:
		msg = GetCurrentProduct{}
	case KindCurrentProduct:
		var m CurrentProduct
		err = json.Unmarshal(env.Payload, &m)
		msg = m
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", env.Type, err)
	}
	return msg, nil
}
