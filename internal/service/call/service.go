package call

import (
	"context"
	"log"
	"strings"

	"voicemail-bridge/internal/config"
	model "voicemail-bridge/internal/model/call"
	"voicemail-bridge/internal/model/inbox"
	"voicemail-bridge/internal/service/voice"
	"voicemail-bridge/internal/store"
)

// Summarizer produces the spoken digest and follow-up answers. Both methods
// are non-failing; transient model errors resolve to fallback text inside.
type Summarizer interface {
	Summarize(ctx context.Context, messages []inbox.Message) string
	Answer(ctx context.Context, question string, messages []inbox.Message, summary string, history []model.Turn) string
}

// Syncer runs one mailbox ingestion pass.
type Syncer interface {
	Sync(ctx context.Context) (int, error)
}

// Service orchestrates the two call-lifecycle events against the session
// store, the mailbox and the summarizer.
//
// Per call SID the flow is NONE -> ACTIVE -> ended or expired. Events for the
// same call are serialized by the telephony endpoint, which waits for each
// webhook response before sending the next one.
type Service struct {
	store          *store.Store
	inbox          Syncer
	summarizer     Summarizer
	presenter      *voice.Presenter
	cfg            config.CallConfig
	allowedChannel int64
}

func NewService(st *store.Store, inboxSvc Syncer, summarizer Summarizer, presenter *voice.Presenter, cfg config.CallConfig, allowedChannel int64) *Service {
	return &Service{
		store:          st,
		inbox:          inboxSvc,
		summarizer:     summarizer,
		presenter:      presenter,
		cfg:            cfg,
		allowedChannel: allowedChannel,
	}
}

// HandleIncoming serves the "incoming call" event and returns the TwiML
// script to speak. A redelivered webhook for a live session replays the
// stored summary without polling the mailbox or calling the model again.
// Errors are storage failures only; upstream trouble degrades to a scripted
// notice instead.
func (s *Service) HandleIncoming(ctx context.Context, callSID, followupURL string) (string, error) {
	removed, err := s.store.SweepExpired(ctx, s.cfg.SessionTTL)
	if err != nil {
		return "", err
	}
	if removed > 0 {
		log.Printf("[call] swept %d expired sessions", removed)
	}

	session, ok, err := s.store.GetSession(ctx, callSID)
	if err != nil {
		return "", err
	}
	if ok {
		log.Printf("[call] repeated incoming webhook for call=%s, replaying stored summary", callSID)
		return s.presenter.Incoming(session.Summary, len(session.Messages) > 0, followupURL), nil
	}

	if _, err := s.inbox.Sync(ctx); err != nil {
		log.Printf("[call] mailbox sync failed, responding degraded: %v", err)
		return s.presenter.Incoming(voice.ScriptSyncDegraded, false, followupURL), nil
	}

	unread, err := s.store.ListUnread(ctx, s.cfg.MaxMessagesPerCall, s.allowedChannel)
	if err != nil {
		return "", err
	}

	summary := s.summarizer.Summarize(ctx, unread)

	if err := s.store.CreateSession(ctx, callSID, summary, unread); err != nil {
		return "", err
	}

	return s.presenter.Incoming(summary, len(unread) > 0, followupURL), nil
}

// HandleFollowup serves a recognized caller utterance for an active call.
func (s *Service) HandleFollowup(ctx context.Context, callSID, speech, followupURL string) (string, error) {
	speech = strings.TrimSpace(speech)
	if speech == "" {
		return s.presenter.Followup(voice.ScriptReprompt, followupURL), nil
	}

	if s.presenter.ShouldEnd(speech) {
		return s.presenter.Goodbye(""), nil
	}

	session, ok, err := s.store.GetSession(ctx, callSID)
	if err != nil {
		return "", err
	}
	if !ok {
		return s.presenter.Followup(voice.ScriptNoContext, followupURL), nil
	}

	// Limit check runs against the existing length, before appending: once
	// the log holds 2*maxFollowupTurns turns no further turns are recorded.
	if len(session.Conversation) >= 2*s.cfg.MaxFollowupTurns {
		return s.presenter.Goodbye(voice.ScriptTurnLimit), nil
	}

	updated, err := s.store.AppendTurn(ctx, callSID, model.RoleCaller, speech)
	if err != nil {
		return "", err
	}

	answer := s.summarizer.Answer(ctx, speech, session.Messages, session.Summary, updated)

	if _, err := s.store.AppendTurn(ctx, callSID, model.RoleAssistant, answer); err != nil {
		return "", err
	}

	return s.presenter.Followup(answer, followupURL), nil
}
