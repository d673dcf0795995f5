// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxNameLen = 36

var (
	ErrNameEmpty   = errors.New("user name empty")
	ErrNameTooLong = errors.New("user name too long")
)

// SessionID identifies one WebSocket connection. A user holds exactly one.
type SessionID string

// User is one registered party of a call. Peer and SDPOffer are negotiation
// state: Peer is set while a call is being set up or active, SDPOffer only
// on the calling side until the callee answers.
type User struct {
	ID                SessionID `json:"id"`
	Name              string    `json:"name"`
	PartnerName       string    `json:"partnerName"`
	TutoringSessionID string    `json:"tutoringSessionId,omitempty"`

	Peer     string `json:"-"`
	SDPOffer string `json:"-"`
}

// NewUser avoids raw literals in adapters and keeps construction obvious.
func NewUser(id SessionID, name, partnerName, tutoringSessionID string) (*User, error) {
	if len(name) == 0 {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	return &User{
		ID:                id,
		Name:              name,
		PartnerName:       partnerName,
		TutoringSessionID: tutoringSessionID,
	}, nil
}

// ClearCall resets negotiation state after a call ends or is declined.
func (u *User) ClearCall() {
	u.Peer = ""
	u.SDPOffer = ""
}
