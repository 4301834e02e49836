package model

type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// ChatMessage is one entry of chats/{channelID}. Channels are append-only
// and displayed in arrival order.
type ChatMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	SentAt    Timestamp `json:"sentAt,omitzero"`
}
