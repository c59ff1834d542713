package proto

import (
	"encoding/json"
	"testing"
)

func TestNewEventWireShape(t *testing.T) {
	out, err := NewEvent(EventTypingStatus, TypingStatus{UserID: 7, IsTyping: true})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}

	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if generic["type"] != "event" || generic["event"] != "typing_status" {
		t.Fatalf("unexpected envelope: %s", raw)
	}
	data, ok := generic["data"].(map[string]any)
	if !ok || data["userId"] != float64(7) || data["isTyping"] != true {
		t.Fatalf("unexpected payload: %s", raw)
	}
	if _, ok := generic["error"]; ok {
		t.Fatalf("event must not carry an error: %s", raw)
	}
}

func TestDecodeDataCamelCase(t *testing.T) {
	in := []byte(`{"type":"new_message","data":{"senderId":1,"receiverId":2,"text":"hi"}}`)

	var env Inbound
	if err := json.Unmarshal(in, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var msg NewMessageData
	if err := DecodeData(env.Data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.SenderID != 1 || msg.ReceiverID != 2 || msg.Text != "hi" {
		t.Fatalf("unexpected payload: %+v", msg)
	}

	var empty UserOfflineData
	if err := DecodeData(nil, &empty); err != nil || empty.UserID != 0 {
		t.Fatalf("empty payload should decode to zero value, got %+v (%v)", empty, err)
	}
}
