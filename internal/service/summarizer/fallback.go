package summarizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"voicemail-bridge/internal/model/inbox"
)

const previewLimit = 120

var messageIndexPattern = regexp.MustCompile(`(?:message|number)\s*(\d+)`)

// fallbackSummary renders a rule-based digest when no model is available.
func fallbackSummary(messages []inbox.Message) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		ts := m.Timestamp.UTC().Format("Jan 2 15:04")
		preview := strings.ReplaceAll(m.Text, "\n", " ")
		if len(preview) > previewLimit {
			preview = preview[:previewLimit-3] + "..."
		}
		lines[i] = fmt.Sprintf("Message %d: %s -> %s -> %s.", i+1, m.Sender, ts, preview)
	}
	return strings.Join(lines, " ")
}

// fallbackAnswer handles follow-up questions without a model: it resolves
// "message N" references, repeats the summary on request, and otherwise
// nudges the caller toward message numbers.
func fallbackAnswer(question string, messages []inbox.Message, summary string) string {
	lowered := strings.ToLower(question)

	if match := messageIndexPattern.FindStringSubmatch(lowered); match != nil {
		idx, err := strconv.Atoi(match[1])
		if err == nil {
			if idx >= 1 && idx <= len(messages) {
				m := messages[idx-1]
				ts := m.Timestamp.UTC().Format("Jan 2 15:04")
				return fmt.Sprintf("Message %d from %s at %s: %s", idx, m.Sender, ts, m.Text)
			}
			return fmt.Sprintf("I cannot find message %d. There are only %d messages.", idx, len(messages))
		}
	}

	for _, keyword := range []string{"repeat", "summar", "again"} {
		if strings.Contains(lowered, keyword) {
			return "Here is the summary again: " + summary
		}
	}

	return "I can only answer based on the stored messages. Please refer to a message number."
}
