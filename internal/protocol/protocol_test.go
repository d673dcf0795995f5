package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeInboundMessages(t *testing.T) {
	cases := []struct {
		name  string
		data  string
		check func(t *testing.T, msg Inbound)
	}{
		{
			name: "register",
			data: `{"id":"register","name":"alice","partnerName":"bob","tutoringSessionId":"42"}`,
			check: func(t *testing.T, msg Inbound) {
				m, ok := msg.(Register)
				if !ok {
					t.Fatalf("wrong type %T", msg)
				}
				if m.Name != "alice" || m.PartnerName != "bob" || m.TutoringSessionID != "42" {
					t.Fatalf("bad fields: %+v", m)
				}
			},
		},
		{
			name: "call",
			data: `{"id":"call","to":"bob","from":"alice","sdpOffer":"v=0"}`,
			check: func(t *testing.T, msg Inbound) {
				m := msg.(Call)
				if m.To != "bob" || m.From != "alice" || m.SDPOffer != "v=0" {
					t.Fatalf("bad fields: %+v", m)
				}
			},
		},
		{
			name: "incomingCallResponse",
			data: `{"id":"incomingCallResponse","from":"alice","callResponse":"accept","sdpOffer":"v=0"}`,
			check: func(t *testing.T, msg Inbound) {
				m := msg.(IncomingCallResponse)
				if m.CallResponse != ResponseAccept {
					t.Fatalf("bad fields: %+v", m)
				}
			},
		},
		{
			name: "stop",
			data: `{"id":"stop"}`,
			check: func(t *testing.T, msg Inbound) {
				if _, ok := msg.(Stop); !ok {
					t.Fatalf("wrong type %T", msg)
				}
			},
		},
		{
			name: "onIceCandidate",
			data: `{"id":"onIceCandidate","candidate":{"candidate":"candidate:1","sdpMid":"0","sdpMLineIndex":0}}`,
			check: func(t *testing.T, msg Inbound) {
				m := msg.(OnIceCandidate)
				if m.Candidate.Candidate != "candidate:1" || m.Candidate.SDPMid == nil || *m.Candidate.SDPMid != "0" {
					t.Fatalf("bad candidate: %+v", m.Candidate)
				}
			},
		},
		{
			name: "partnerStatus",
			data: `{"id":"partnerStatus"}`,
			check: func(t *testing.T, msg Inbound) {
				if _, ok := msg.(PartnerStatusQuery); !ok {
					t.Fatalf("wrong type %T", msg)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.data))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			tc.check(t, msg)
		})
	}
}

func TestDecodeUnknownID(t *testing.T) {
	_, err := Decode([]byte(`{"id":"bogus"}`))
	if !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	if _, err := Decode([]byte(`{nope`)); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestOutboundWireShape(t *testing.T) {
	cases := []struct {
		msg  any
		want map[string]any
	}{
		{RegisterAccepted(), map[string]any{"id": "registerResponse", "response": "accepted"}},
		{RegisterRejected("empty user name"), map[string]any{"id": "registerResponse", "response": "rejected", "message": "empty user name"}},
		{CallAccepted("v=0"), map[string]any{"id": "callResponse", "response": "accepted", "sdpAnswer": "v=0"}},
		{CallRejected("user bob is not registered"), map[string]any{"id": "callResponse", "response": "rejected", "message": "user bob is not registered"}},
		{NewIncomingCall("alice"), map[string]any{"id": "incomingCall", "from": "alice"}},
		{NewStartCommunication("v=0"), map[string]any{"id": "startCommunication", "sdpAnswer": "v=0"}},
		{NewStopCommunication("remote user hanged out"), map[string]any{"id": "stopCommunication", "message": "remote user hanged out"}},
		{NewPartnerStatus(true), map[string]any{"id": "partnerStatus", "status": "online"}},
		{NewPartnerStatus(false), map[string]any{"id": "partnerStatus", "status": "offline"}},
		{NewError("Invalid message"), map[string]any{"id": "error", "message": "Invalid message"}},
	}

	for _, tc := range cases {
		b, err := Marshal(tc.msg)
		if err != nil {
			t.Fatalf("marshal %T: %v", tc.msg, err)
		}
		var got map[string]any
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		for k, v := range tc.want {
			if got[k] != v {
				t.Fatalf("%T: field %q = %v, want %v", tc.msg, k, got[k], v)
			}
		}
	}
}

func TestEmptyOptionalFieldsOmitted(t *testing.T) {
	b, err := Marshal(NewStopCommunication(""))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, exists := got["message"]; exists {
		t.Fatalf("empty message must be omitted: %s", b)
	}
}
