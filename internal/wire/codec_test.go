package wire

import "testing"

func sampleEnvelope() MessageEnvelope {
	return MessageEnvelope{
		Version:     EnvelopeVersion,
		ID:          "b3b2c9a0-1111-4c1d-9e1a-000000000001",
		FromUID:     "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		ToUID:       "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		TimestampMs: 1700000000000,
		MessageType: MessageTypeText,
		Encrypted:   true,
		Payload:     []byte{0x01, 0x02, 0x03, 0x04},
	}
}

func TestMessageEnvelopeCBORRoundTrip(t *testing.T) {
	want := sampleEnvelope()

	b, err := Marshal(CBOR, &want)
	if err != nil {
		t.Fatalf("Marshal(CBOR) error = %v", err)
	}

	var got MessageEnvelope
	if err := Unmarshal(CBOR, b, &got); err != nil {
		t.Fatalf("Unmarshal(CBOR) error = %v", err)
	}

	if got != want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestMessageEnvelopeJSONRoundTrip(t *testing.T) {
	want := sampleEnvelope()

	b, err := Marshal(JSON, &want)
	if err != nil {
		t.Fatalf("Marshal(JSON) error = %v", err)
	}

	var got MessageEnvelope
	if err := Unmarshal(JSON, b, &got); err != nil {
		t.Fatalf("Unmarshal(JSON) error = %v", err)
	}

	if got != want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestMessageEnvelopeValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*MessageEnvelope)
		wantErr bool
	}{
		{"valid", func(e *MessageEnvelope) {}, false},
		{"wrong version", func(e *MessageEnvelope) { e.Version = 2 }, true},
		{"missing id", func(e *MessageEnvelope) { e.ID = "" }, true},
		{"missing from_uid", func(e *MessageEnvelope) { e.FromUID = "" }, true},
		{"missing to_uid", func(e *MessageEnvelope) { e.ToUID = "" }, true},
		{"missing message_type", func(e *MessageEnvelope) { e.MessageType = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := sampleEnvelope()
			tt.mutate(&env)

			err := env.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPingRoundTrip(t *testing.T) {
	req := PingRequest{ContactToken: "b64url-token-bytes"}

	b, err := Marshal(CBOR, &req)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got PingRequest
	if err := Unmarshal(CBOR, b, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got != req {
		t.Errorf("got %+v, want %+v", got, req)
	}

	resp := PingResponse{UID: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Status: StatusOK}
	b, err = Marshal(JSON, &resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var gotResp PingResponse
	if err := Unmarshal(JSON, b, &gotResp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if gotResp != resp {
		t.Errorf("got %+v, want %+v", gotResp, resp)
	}
}

func TestMessageRequestRoundTrip(t *testing.T) {
	req := MessageRequest{
		FromUID:     "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		MessageType: MessageTypeDeleteChat,
		Payload:     nil,
	}

	b, err := Marshal(CBOR, &req)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got MessageRequest
	if err := Unmarshal(CBOR, b, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.FromUID != req.FromUID || got.MessageType != req.MessageType {
		t.Errorf("got %+v, want %+v", got, req)
	}
}

func TestEncodingFromContentType(t *testing.T) {
	if EncodingFromContentType("application/json") != JSON {
		t.Error("expected JSON for application/json")
	}
	if EncodingFromContentType("application/cbor") != CBOR {
		t.Error("expected CBOR for application/cbor")
	}
	if EncodingFromContentType("") != CBOR {
		t.Error("expected CBOR default for empty content type")
	}
}
