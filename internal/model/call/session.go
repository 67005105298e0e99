package call

import (
	"time"

	"voicemail-bridge/internal/model/inbox"
)

// Turn roles within a session's conversation log.
const (
	RoleCaller    = "caller"
	RoleAssistant = "assistant"
)

// Turn is one utterance in a call's conversation log.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Session binds a call SID to the summary read to the caller, the snapshot
// of messages it was built from, and the follow-up conversation so far.
// Summary and Messages are immutable once the session is created; only the
// conversation grows.
type Session struct {
	CallSID      string          `json:"callSid"`
	Summary      string          `json:"summary"`
	Messages     []inbox.Message `json:"messages"`
	Conversation []Turn          `json:"conversation"`
	CreatedAt    time.Time       `json:"createdAt"`
}
