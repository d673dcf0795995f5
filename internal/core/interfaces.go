package core

import "github.com/siplo/one2one/internal/domain"

// Frame is a raw outbound payload, already encoded.
type Frame []byte

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// UserSession binds a domain.User and its transport endpoint.
// This is what the registry stores and call logic delivers to.
type UserSession interface {
	Meta() *domain.User
	Signal() SignalConnection
}

// userSession implements UserSession by pairing meta + transport.
type userSession struct {
	meta *domain.User
	conn SignalConnection
}

func NewUserSession(meta *domain.User, conn SignalConnection) UserSession {
	return &userSession{meta: meta, conn: conn}
}

func (s *userSession) Meta() *domain.User       { return s.meta }
func (s *userSession) Signal() SignalConnection { return s.conn }
