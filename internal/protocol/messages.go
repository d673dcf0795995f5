// Package protocol defines the closed set of JSON messages exchanged with
// browser clients over the signaling WebSocket. Every message carries a
// string "id" discriminator. Inbound payloads are decoded and validated here
// before any call logic sees them.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

const (
	Accepted = "accepted"
	Rejected = "rejected"

	StatusOnline  = "online"
	StatusOffline = "offline"

	ResponseAccept = "accept"
)

var ErrUnknownMessage = errors.New("unknown message id")

// Inbound is implemented by every client-to-server message.
type Inbound interface{ inbound() }

type Register struct {
	Name              string `json:"name"`
	PartnerName       string `json:"partnerName"`
	TutoringSessionID string `json:"tutoringSessionId"`
}

type Call struct {
	To       string `json:"to"`
	From     string `json:"from"`
	SDPOffer string `json:"sdpOffer"`
}

type IncomingCallResponse struct {
	From         string `json:"from"`
	CallResponse string `json:"callResponse"`
	SDPOffer     string `json:"sdpOffer"`
}

type Stop struct{}

type OnIceCandidate struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type PartnerStatusQuery struct{}

func (Register) inbound()             {}
func (Call) inbound()                 {}
func (IncomingCallResponse) inbound() {}
func (Stop) inbound()                 {}
func (OnIceCandidate) inbound()       {}
func (PartnerStatusQuery) inbound()   {}

// Decode parses one raw client frame into its typed message.
// Unknown ids return ErrUnknownMessage so the gateway can echo the payload
// back without dropping the connection.
func Decode(data []byte) (Inbound, error) {
	var env struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bad json: %w", err)
	}

	switch env.ID {
	case "register":
		var m Register
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad register payload: %w", err)
		}
		return m, nil
	case "call":
		var m Call
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad call payload: %w", err)
		}
		return m, nil
	case "incomingCallResponse":
		var m IncomingCallResponse
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad incomingCallResponse payload: %w", err)
		}
		return m, nil
	case "stop":
		return Stop{}, nil
	case "onIceCandidate":
		var m OnIceCandidate
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad onIceCandidate payload: %w", err)
		}
		return m, nil
	case "partnerStatus":
		return PartnerStatusQuery{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.ID)
	}
}
