package inbox

import (
	"fmt"
	"time"
)

// Message is a single ingested messenger message. ExternalID is the
// source-assigned identifier; uniqueness on it is enforced by the store.
type Message struct {
	ID         int64     `json:"id"`
	ExternalID int64     `json:"externalId"`
	ChannelID  int64     `json:"channelId"`
	Sender     string    `json:"sender"`
	Timestamp  time.Time `json:"timestamp"`
	Text       string    `json:"text"`
	Read       bool      `json:"read,omitempty"`
}

// PromptLine renders the message as one numbered line for LLM prompts.
func (m Message) PromptLine(index int) string {
	ts := m.Timestamp.UTC().Format("2006-01-02 15:04 UTC")
	return fmt.Sprintf("%d. %s | %s | %s", index, m.Sender, ts, m.Text)
}
