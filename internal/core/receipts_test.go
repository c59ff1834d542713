package core

import "testing"

func TestReceiptsForward(t *testing.T) {
	reg := NewRegistry()
	sender := identifiedSession(t, 1)
	reg.Register(1, sender)
	receipts := NewReceipts(reg)

	if !receipts.Forward("01HX", 1) {
		t.Fatalf("expected receipt to be forwarded")
	}
	ev := mustEvent(t, sender.Events, EventMessageReadStatus)
	if ev.MessageID != "01HX" {
		t.Fatalf("unexpected message id %q", ev.MessageID)
	}

	if receipts.Forward("01HY", 2) {
		t.Fatalf("offline sender must drop the receipt")
	}
	if receipts.Forward("", 1) {
		t.Fatalf("empty message id must be ignored")
	}
}
