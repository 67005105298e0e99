package summarizer

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"voicemail-bridge/internal/model/call"
	"voicemail-bridge/internal/model/inbox"
)

// NoUnreadText is narrated when a call finds the mailbox empty.
const NoUnreadText = "You have no unread messages at the moment."

const historyLimit = 8

// Service turns unread messages into a spoken digest and answers follow-up
// questions about them. Every model call carries a timeout budget and falls
// back to deterministic text on any failure, so neither Summarize nor Answer
// can fail.
type Service struct {
	enabled       bool
	summaryChain  compose.Runnable[map[string]any, *schema.Message]
	answerChain   compose.Runnable[map[string]any, *schema.Message]
	invokeTimeout time.Duration
}

// NewService builds the summarizer. chatModel may be nil; the service then
// serves the deterministic fallback only.
func NewService(ctx context.Context, chatModel model.ChatModel, invokeTimeout time.Duration) (*Service, error) {
	svc := &Service{enabled: chatModel != nil, invokeTimeout: invokeTimeout}
	if !svc.enabled {
		return svc, nil
	}

	summaryChain, err := compileChain(ctx, chatModel, summarySystemPrompt, summaryUserPrompt)
	if err != nil {
		return nil, fmt.Errorf("summarizer: compile summary chain: %w", err)
	}
	answerChain, err := compileChain(ctx, chatModel, answerSystemPrompt, answerUserPrompt)
	if err != nil {
		return nil, fmt.Errorf("summarizer: compile answer chain: %w", err)
	}

	svc.summaryChain = summaryChain
	svc.answerChain = answerChain
	return svc, nil
}

func compileChain(ctx context.Context, chatModel model.ChatModel, system, user string) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)
	return chain.Compile(ctx)
}

// Summarize produces the digest read to the caller. With no messages it
// returns the no-unread notice without touching the model.
func (s *Service) Summarize(ctx context.Context, messages []inbox.Message) string {
	if len(messages) == 0 {
		return NoUnreadText
	}
	if !s.enabled {
		return fallbackSummary(messages)
	}

	text, err := s.invoke(ctx, s.summaryChain, map[string]any{
		"messages": promptBlock(messages),
	})
	if err != nil {
		log.Printf("[summarizer] summary model call failed, using fallback: %v", err)
		return fallbackSummary(messages)
	}
	return text
}

// Answer responds to a follow-up question against the session's snapshot,
// its summary and the conversation so far.
func (s *Service) Answer(ctx context.Context, question string, messages []inbox.Message, summary string, history []call.Turn) string {
	if len(messages) == 0 {
		return "There are no messages in the context of this call."
	}
	if !s.enabled {
		return fallbackAnswer(question, messages, summary)
	}

	text, err := s.invoke(ctx, s.answerChain, map[string]any{
		"question": question,
		"summary":  summary,
		"messages": promptBlock(messages),
		"history":  historyBlock(history),
	})
	if err != nil {
		log.Printf("[summarizer] answer model call failed, using fallback: %v", err)
		return fallbackAnswer(question, messages, summary)
	}
	return text
}

func (s *Service) invoke(ctx context.Context, chain compose.Runnable[map[string]any, *schema.Message], input map[string]any) (string, error) {
	invokeCtx, cancel := context.WithTimeout(ctx, s.invokeTimeout)
	defer cancel()

	msg, err := chain.Invoke(invokeCtx, input)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return "", fmt.Errorf("empty model response")
	}
	return text, nil
}

func promptBlock(messages []inbox.Message) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = m.PromptLine(i + 1)
	}
	return strings.Join(lines, "\n")
}

func historyBlock(history []call.Turn) string {
	if len(history) == 0 {
		return "none"
	}
	start := 0
	if len(history) > historyLimit {
		start = len(history) - historyLimit
	}

	var builder strings.Builder
	for i, turn := range history[start:] {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(turn.Role)
		builder.WriteString(": ")
		builder.WriteString(turn.Text)
	}
	return builder.String()
}

const summarySystemPrompt = "You are a voice assistant that summarizes messenger messages for a phone call. " +
	"Keep the summary compact and easy to read aloud. " +
	"Format per line: Message N: sender -> time -> summary. " +
	"Merge duplicates and put the important content first."

const summaryUserPrompt = "Summarize these unread messages for a voice call:\n{messages}"

const answerSystemPrompt = "You are a voice-based messenger assistant. " +
	"Answer briefly, precisely, and only about the concrete question. " +
	"When the caller refers to message numbers, use exactly those messages."

const answerUserPrompt = "Question: {question}\n\nSummary so far:\n{summary}\n\nMessages:\n{messages}\n\nConversation history:\n{history}"
