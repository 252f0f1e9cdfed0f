package protocol

import "testing"

func TestParseRejectsMissingType(t *testing.T) {
	_, err := Parse([]byte(`{"id":"1","payload":{}}`))
	if err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestParseRejectsNonStringType(t *testing.T) {
	_, err := Parse([]byte(`{"type":5}`))
	if err == nil {
		t.Fatalf("expected error for non-string type")
	}
}

func TestParseRoundTrip(t *testing.T) {
	raw, err := Encode(TypeSessionCreated, "req-1", SessionCreatePayload{Name: "T", Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Type != TypeSessionCreated || f.ID != "req-1" {
		t.Fatalf("got %+v", f)
	}
	var p SessionCreatePayload
	if err := DecodePayload(f, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Name != "T" || p.Cols != 80 || p.Rows != 24 {
		t.Fatalf("got %+v", p)
	}
}

func TestEncodeOmitsEmptyID(t *testing.T) {
	raw, err := Encode(TypeNotification, "", ErrorPayload{Message: "x"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.ID != "" {
		t.Fatalf("expected empty id, got %q", f.ID)
	}
}

func TestReplyIDEqualsRequestID(t *testing.T) {
	reqRaw := []byte(`{"type":"session.create","id":"42","payload":{"name":"T"}}`)
	req, err := Parse(reqRaw)
	if err != nil {
		t.Fatalf("parse request: %v", err)
	}
	replyRaw, err := Encode(TypeSessionCreated, req.ID, SessionCreatePayload{Name: "T"})
	if err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	reply, err := Parse(replyRaw)
	if err != nil {
		t.Fatalf("parse reply: %v", err)
	}
	if reply.ID != req.ID {
		t.Fatalf("reply id %q != request id %q", reply.ID, req.ID)
	}
}
