package voice

import (
	"strings"

	"voicemail-bridge/internal/config"
)

// Spoken phrases. ScriptNoContext and ScriptTurnLimit also act as the
// terminal states of the follow-up flow.
const (
	scriptWelcome      = "Welcome. You have unread messages. I will now read you a summary."
	scriptPromptIntro  = "You can ask follow-up questions now, for example: tell me more about message 2."
	scriptPromptMore   = "If you want to know anything else, ask another question now. Say goodbye to hang up."
	scriptNoInput      = "I did not hear a question. Goodbye."
	scriptGoodbye      = "Alright. Goodbye."
	ScriptReprompt     = "I did not understand you. Please ask the question again."
	ScriptNoContext    = "There is no context for this call. Please start a new call."
	ScriptTurnLimit    = "We have reached the maximum number of follow-up questions. Goodbye."
	ScriptSyncDegraded = "Fetching your messenger messages is currently unavailable. Please try again later."
)

var endKeywords = []string{"goodbye", "good bye", "bye", "hang up", "stop", "end the call", "that's all", "that is all"}

// Presenter renders session state into TwiML scripts. It is a pure function
// of its inputs; all state lives with the caller.
type Presenter struct {
	voice    string
	language string
}

func NewPresenter(cfg config.TwilioConfig) *Presenter {
	return &Presenter{voice: cfg.Voice, language: cfg.Language}
}

// ShouldEnd reports whether the caller's utterance asks to hang up.
func (p *Presenter) ShouldEnd(text string) bool {
	value := strings.ToLower(strings.TrimSpace(text))
	for _, keyword := range endKeywords {
		if strings.Contains(value, keyword) {
			return true
		}
	}
	return false
}

// Incoming renders the greeting script: summary narration plus a follow-up
// gather when messages exist, a plain goodbye otherwise.
func (p *Presenter) Incoming(summary string, hasMessages bool, actionURL string) string {
	if !hasMessages {
		return render(response{Verbs: []any{
			p.say(summary),
			p.say(scriptGoodbye),
			hangup{},
		}})
	}

	g := p.gather(actionURL)
	g.Says = []say{p.say(scriptPromptIntro)}

	return render(response{Verbs: []any{
		p.say(scriptWelcome),
		pause{Length: 1},
		p.say(summary),
		g,
		p.say(scriptNoInput),
		hangup{},
	}})
}

// Followup renders an answer followed by a re-prompt for the next question.
func (p *Presenter) Followup(answer, actionURL string) string {
	g := p.gather(actionURL)
	g.Says = []say{p.say(scriptPromptMore)}

	return render(response{Verbs: []any{
		p.say(answer),
		g,
		p.say(scriptNoInput),
		hangup{},
	}})
}

// Goodbye renders a terminal farewell. An empty text uses the default phrase.
func (p *Presenter) Goodbye(text string) string {
	if text == "" {
		text = scriptGoodbye
	}
	return render(response{Verbs: []any{
		p.say(text),
		hangup{},
	}})
}

func (p *Presenter) say(text string) say {
	return say{Voice: p.voice, Language: p.language, Text: text}
}

func (p *Presenter) gather(actionURL string) gather {
	return gather{
		Input:         "speech",
		Action:        actionURL,
		Method:        "POST",
		Language:      p.language,
		SpeechTimeout: "auto",
		Timeout:       5,
	}
}
