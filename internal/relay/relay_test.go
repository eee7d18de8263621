package relay

import (
	"encoding/json"
	"testing"

	"github.com/kushscan/kushscan/internal/domain"
)

func newTestClient(role Role) *Client {
	return &Client{role: role, send: make(chan []byte, sendBuffer)}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		msg, err := Decode(data)
		if err != nil {
			t.Fatalf("failed to decode delivered frame: %v", err)
		}
		return msg
	default:
		t.Fatal("expected a delivered message")
		return nil
	}
}

func TestEncodeDecode_ProductDetected(t *testing.T) {
	original := ProductDetected{
		Product: &domain.ProductRecord{
			Name:     "Blue Dream",
			Category: domain.CategoryFlower,
			Source:   "dutchie",
		},
	}

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if env.Type != KindProductDetected {
		t.Errorf("expected type tag %q, got %q", KindProductDetected, env.Type)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	pd, ok := decoded.(ProductDetected)
	if !ok {
		t.Fatalf("decoded to %T, want ProductDetected", decoded)
	}
	if pd.Product.Name != "Blue Dream" {
		t.Errorf("payload did not survive: %+v", pd.Product)
	}
}

func TestDecode_UnknownTypeRejected(t *testing.T) {
	if _, err := Decode([]byte(`{"type": "SOMETHING_NEW", "payload": {}}`)); err == nil {
		t.Fatal("unknown message type must be an error, not dropped")
	}
}

func TestDecode_EmptyPayloadKinds(t *testing.T) {
	msg, err := Decode([]byte(`{"type": "GET_CURRENT_PRODUCT"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if _, ok := msg.(GetCurrentProduct); !ok {
		t.Fatalf("decoded to %T, want GetCurrentProduct", msg)
	}

	msg, err = Decode([]byte(`{"type": "OPEN_SIDE_PANEL"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if _, ok := msg.(OpenSidePanel); !ok {
		t.Fatalf("decoded to %T, want OpenSidePanel", msg)
	}
}

func TestDispatch_ProductDetectedReachesPanel(t *testing.T) {
	hub := NewHub(nil)
	panel := newTestClient(RolePanel)
	background := newTestClient(RoleBackground)
	hub.add(panel)
	hub.add(background)

	hub.Dispatch(RoleDetector, ProductDetected{
		Product: &domain.ProductRecord{Name: "Blue Dream", Category: domain.CategoryFlower},
	})

	if _, ok := receive(t, panel).(ProductDetected); !ok {
		t.Error("panel should receive the detection")
	}
	if len(background.send) != 0 {
		t.Error("background should not receive detections")
	}
}

func TestDispatch_OpenSidePanelReachesBackground(t *testing.T) {
	hub := NewHub(nil)
	background := newTestClient(RoleBackground)
	hub.add(background)

	hub.Dispatch(RolePopup, OpenSidePanel{TabID: 7})

	msg, ok := receive(t, background).(OpenSidePanel)
	if !ok {
		t.Fatal("background should receive the open request")
	}
	if msg.TabID != 7 {
		t.Errorf("tab id lost in transit, got %d", msg.TabID)
	}
}

func TestDispatch_SendToAbsentReceiverNotFatal(t *testing.T) {
	hub := NewHub(nil)

	// No panel connected; must not panic or error
	hub.Dispatch(RoleDetector, ProductDetected{
		Product: &domain.ProductRecord{Name: "Blue Dream", Category: domain.CategoryFlower},
	})
}

func TestDispatch_ParkedHighlightFlushedOnPanelConnect(t *testing.T) {
	hub := NewHub(nil)

	// Background sends the highlight before any panel has loaded
	hub.Dispatch(RoleBackground, HighlightLookup{Text: "Sour Diesel"})

	panel := newTestClient(RolePanel)
	hub.add(panel)

	msg, ok := receive(t, panel).(HighlightLookup)
	if !ok {
		t.Fatal("late-connecting panel should receive the parked highlight")
	}
	if msg.Text != "Sour Diesel" {
		t.Errorf("parked text lost in transit, got %q", msg.Text)
	}

	// The parked value is delivered at most once
	second := newTestClient(RolePanel)
	hub.add(second)
	if len(second.send) != 0 {
		t.Error("a second panel must not receive the already-flushed highlight")
	}
}

func TestDispatch_HighlightDeliveredNotParked(t *testing.T) {
	hub := NewHub(nil)
	panel := newTestClient(RolePanel)
	hub.add(panel)

	hub.Dispatch(RoleBackground, HighlightLookup{Text: "Sour Diesel"})

	if _, ok := receive(t, panel).(HighlightLookup); !ok {
		t.Fatal("connected panel should receive the highlight directly")
	}

	// Nothing was parked, so a new panel connecting later gets nothing
	late := newTestClient(RolePanel)
	hub.add(late)
	if len(late.send) != 0 {
		t.Error("delivered highlight must not also be parked for later panels")
	}
}

func TestDispatch_GetCurrentProductAnswersRequester(t *testing.T) {
	current := &domain.ProductRecord{Name: "Wedding Cake", Category: domain.CategoryFlower}
	hub := NewHub(func() *domain.ProductRecord { return current })
	panel := newTestClient(RolePanel)
	hub.add(panel)

	hub.Dispatch(RolePanel, GetCurrentProduct{})

	reply, ok := receive(t, panel).(CurrentProduct)
	if !ok {
		t.Fatal("panel should receive a CurrentProduct reply")
	}
	if reply.Product == nil || reply.Product.Name != "Wedding Cake" {
		t.Errorf("unexpected reply payload: %+v", reply.Product)
	}
}

func TestDispatch_GetCurrentProductWithNoProvider(t *testing.T) {
	hub := NewHub(nil)
	panel := newTestClient(RolePanel)
	hub.add(panel)

	hub.Dispatch(RolePanel, GetCurrentProduct{})

	reply, ok := receive(t, panel).(CurrentProduct)
	if !ok {
		t.Fatal("panel should still get a reply")
	}
	if reply.Product != nil {
		t.Errorf("expected empty reply, got %+v", reply.Product)
	}
}
