package protocol

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := New(TypeHeartbeat, "")
	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded != msg {
		t.Errorf("decode(encode(msg)) = %+v, want %+v", decoded, msg)
	}
}

func TestEncodeAssignsIDAndTimestamp(t *testing.T) {
	msg := Envelope{Type: TypeAck}
	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.ID == "" {
		t.Error("Encode() did not assign an id")
	}
	if decoded.TimestampMs == 0 {
		t.Error("Encode() did not assign a timestamp")
	}
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Error("Decode() of invalid JSON should fail")
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	data := []byte(`{"type":"BOGUS","id":"x","timestamp_ms":1,"payload":""}`)
	if _, err := Decode(data); err == nil {
		t.Error("Decode() of unknown type should fail")
	}
}

func TestDecodeRejectsMissingID(t *testing.T) {
	data := []byte(`{"type":"ACK","timestamp_ms":1,"payload":""}`)
	if _, err := Decode(data); err == nil {
		t.Error("Decode() of envelope missing id should fail")
	}
}

func TestPairReqPayloadValidate(t *testing.T) {
	cases := []struct {
		name    string
		payload PairReqPayload
		wantErr bool
	}{
		{"valid", PairReqPayload{DeviceID: "d1", PublicKey: "cGs="}, false},
		{"missing device id", PairReqPayload{PublicKey: "cGs="}, true},
		{"missing public key", PairReqPayload{DeviceID: "d1"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestAckEchoesTimestamp(t *testing.T) {
	msg := Ack(12345)
	var payload AckPayload
	if err := DecodePayload(msg, &payload); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if payload.TimestampMs != 12345 {
		t.Errorf("Ack timestamp = %d, want 12345", payload.TimestampMs)
	}
}
