package protocol

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Server-to-client messages. Constructors set the "id" discriminator so
// handlers never build these from raw maps.

type RegisterResponse struct {
	ID       string `json:"id"`
	Response string `json:"response"`
	Message  string `json:"message,omitempty"`
}

func RegisterAccepted() RegisterResponse {
	return RegisterResponse{ID: "registerResponse", Response: Accepted}
}

func RegisterRejected(reason string) RegisterResponse {
	return RegisterResponse{ID: "registerResponse", Response: Rejected, Message: reason}
}

type CallResponse struct {
	ID        string `json:"id"`
	Response  string `json:"response"`
	SDPAnswer string `json:"sdpAnswer,omitempty"`
	Message   string `json:"message,omitempty"`
}

func CallAccepted(sdpAnswer string) CallResponse {
	return CallResponse{ID: "callResponse", Response: Accepted, SDPAnswer: sdpAnswer}
}

func CallRejected(reason string) CallResponse {
	return CallResponse{ID: "callResponse", Response: Rejected, Message: reason}
}

type IncomingCall struct {
	ID   string `json:"id"`
	From string `json:"from"`
}

func NewIncomingCall(from string) IncomingCall {
	return IncomingCall{ID: "incomingCall", From: from}
}

type StartCommunication struct {
	ID        string `json:"id"`
	SDPAnswer string `json:"sdpAnswer"`
}

func NewStartCommunication(sdpAnswer string) StartCommunication {
	return StartCommunication{ID: "startCommunication", SDPAnswer: sdpAnswer}
}

type StopCommunication struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

func NewStopCommunication(reason string) StopCommunication {
	return StopCommunication{ID: "stopCommunication", Message: reason}
}

type IceCandidate struct {
	ID        string                  `json:"id"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

func NewIceCandidate(cand webrtc.ICECandidateInit) IceCandidate {
	return IceCandidate{ID: "iceCandidate", Candidate: cand}
}

type PartnerStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func NewPartnerStatus(online bool) PartnerStatus {
	status := StatusOffline
	if online {
		status = StatusOnline
	}
	return PartnerStatus{ID: "partnerStatus", Status: status}
}

type ErrorMessage struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func NewError(message string) ErrorMessage {
	return ErrorMessage{ID: "error", Message: message}
}

// Marshal encodes an outbound message for the wire. Messages above cannot
// fail to encode, so a failure is a programming error and reported as such.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
