package session

import "time"

// Sender delivers one outbound message to a connected peer. Implementations
// must not block.
type Sender interface {
	Send(text string) error
}

// Client is one connected player.
//
// Match and Hosting are owned by the Manager; callers outside this package
// treat them as read-only.
type Client struct {
	UserID      string
	Transport   string
	ConnectedAt time.Time

	// Match is a non-owning back-reference to the match the client occupies.
	Match   *Match
	Hosting bool

	sender Sender
}

// NewClient creates an unmatched client.
//
// Precondition: userID must be non-empty and sender non-nil.
func NewClient(userID, transport string, sender Sender) *Client {
	return &Client{
		UserID:      userID,
		Transport:   transport,
		ConnectedAt: time.Now(),
		sender:      sender,
	}
}

// Send forwards text to the client's transport.
func (c *Client) Send(text string) error {
	return c.sender.Send(text)
}

func (c *Client) detach() {
	c.Match = nil
	c.Hosting = false
}
