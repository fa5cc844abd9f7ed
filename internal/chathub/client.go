package chathub

// Client is one live socket. It abstracts the underlying connection so the
// hub can fan out without knowing the transport.
type Client interface {
	// ID identifies the physical connection. A reconnecting user gets a new ID.
	ID() string
	// UserID is the authenticated user bound to the connection.
	UserID() string
	// UserName is the display name taken from the handshake token.
	UserName() string

	// Send queues an already encoded frame. It never blocks and returns false
	// when the client's buffer is full or the client is closed.
	Send(payload []byte) bool

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts the connection down. It is safe to call more than once.
	Close()
}
