package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vovakirdan/kinchat-server/internal/core"
	"github.com/vovakirdan/kinchat-server/internal/proto"
)

func TestInboundToCommand(t *testing.T) {
	tests := []struct {
		name     string
		inbound  string
		wantKind core.CommandKind
		wantErr  string
	}{
		{name: "new message", inbound: `{"type":"new_message","data":{"receiverId":2,"text":"hi"}}`, wantKind: core.CommandSendMessage},
		{name: "typing", inbound: `{"type":"typing_start","data":{"receiverId":2,"isTyping":false}}`, wantKind: core.CommandTyping},
		{name: "read", inbound: `{"type":"message_read","data":{"messageId":"01H","senderId":2}}`, wantKind: core.CommandMarkRead},
		{name: "logout", inbound: `{"type":"user_offline"}`, wantKind: core.CommandLogout},
		{name: "missing receiver", inbound: `{"type":"new_message","data":{"text":"hi"}}`, wantErr: core.ErrCodeBadRequest},
		{name: "bad payload", inbound: `{"type":"typing_start","data":"oops"}`, wantErr: core.ErrCodeBadRequest},
		{name: "read without sender", inbound: `{"type":"message_read","data":{"messageId":"01H"}}`, wantErr: core.ErrCodeBadRequest},
		{name: "second handshake", inbound: `{"type":"user_connected","data":{"token":"x"}}`, wantErr: core.ErrCodeBadRequest},
		{name: "unknown", inbound: `{"type":"join"}`, wantErr: core.ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in proto.Inbound
			if err := json.Unmarshal([]byte(tt.inbound), &in); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			cmd, protoErr, err := inboundToCommand(in)
			if err != nil {
				t.Fatalf("unexpected fatal error: %v", err)
			}
			if tt.wantErr != "" {
				if protoErr == nil || protoErr.Code != tt.wantErr {
					t.Fatalf("expected %s, got %+v", tt.wantErr, protoErr)
				}
				return
			}
			if protoErr != nil || cmd == nil || cmd.Kind != tt.wantKind {
				t.Fatalf("expected kind %d, got %+v / %+v", tt.wantKind, cmd, protoErr)
			}
		})
	}
}

func TestOutboundFromEvent(t *testing.T) {
	out, err := outboundFromEvent(&core.Event{Kind: core.EventInitialOnlineUsers})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(out.Data) != "[]" {
		t.Fatalf("empty snapshot must encode as an empty array, got %s", out.Data)
	}

	at := time.UnixMilli(1_700_000_000_123)
	out, err = outboundFromEvent(&core.Event{Kind: core.EventReceiveMessage, Message: &core.Message{
		ID: "01H", SenderID: 1, ReceiverID: 2, Text: "x", CreatedAt: at, ServerTS: at.Add(time.Millisecond),
	}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var msg proto.Message
	if err := json.Unmarshal(out.Data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Event != proto.EventReceiveMessage || msg.CreatedAt != 1_700_000_000_123 || msg.ServerTimestamp != 1_700_000_000_124 {
		t.Fatalf("unexpected message event: %s %+v", out.Event, msg)
	}

	out, err = outboundFromEvent(&core.Event{Kind: core.EventError, Error: &core.CoreError{Code: "not_allowed", Message: "no"}})
	if err != nil || out.Type != proto.OutboundTypeError || out.Error.Code != "not_allowed" {
		t.Fatalf("unexpected error frame: %+v (%v)", out, err)
	}
}
