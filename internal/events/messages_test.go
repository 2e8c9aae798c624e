package events

import (
	"testing"
	"time"
)

func TestChangeMessageRoundTrip(t *testing.T) {
	msg := NewChangeMessage(KindSplit, "user-1", "tx-9")
	if msg.Timestamp.IsZero() {
		t.Fatal("timestamp not stamped")
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := ChangeMessageFromJSON(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != KindSplit || got.UserID != "user-1" || got.TransactionID != "tx-9" {
		t.Errorf("round trip = %+v", got)
	}
	if !got.Timestamp.Equal(msg.Timestamp.Truncate(time.Nanosecond)) {
		t.Errorf("timestamp drifted: %v vs %v", got.Timestamp, msg.Timestamp)
	}
}

func TestChangeMessageFromJSONRejectsGarbage(t *testing.T) {
	if _, err := ChangeMessageFromJSON([]byte("{not json")); err == nil {
		t.Fatal("expected unmarshal error")
	}
}
