package chat

import (
	"context"
	"fmt"
	"strings"

	"pdfchat/internal/domain"
)

// Model is a chat-completion collaborator. Model name and sampling settings
// are fixed when the Model is constructed.
type Model interface {
	Complete(ctx context.Context, messages []domain.Message) (string, error)
}

const qaInstructions = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.`

const condenseInstructions = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.`

// QAMessages composes the answering prompt: a system message with the
// instructions and retrieved context, the prior dialogue, then the question.
func QAMessages(sources []domain.SearchResult, history []domain.Message, question string) []domain.Message {
	var sb strings.Builder
	sb.WriteString(qaInstructions)
	sb.WriteString("\n\n")
	for i, s := range sources {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(s.Chunk.Text)
	}
	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: sb.String()})
	msgs = append(msgs, history...)
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: question})
	return msgs
}

// CondenseMessages asks the model to rewrite a follow-up question so that it
// can be understood without the conversation.
func CondenseMessages(history []domain.Message, question string) []domain.Message {
	var sb strings.Builder
	sb.WriteString("Chat History:\n")
	for _, m := range history {
		fmt.Fprintf(&sb, "%s: %s\n", speaker(m.Role), m.Content)
	}
	fmt.Fprintf(&sb, "Follow Up Input: %s\nStandalone question:", question)
	return []domain.Message{
		{Role: domain.RoleSystem, Content: condenseInstructions},
		{Role: domain.RoleUser, Content: sb.String()},
	}
}

func speaker(r domain.Role) string {
	switch r {
	case domain.RoleAssistant:
		return "Assistant"
	case domain.RoleSystem:
		return "System"
	default:
		return "Human"
	}
}

// splitSystem separates system messages from the dialogue for providers that
// carry the system prompt out of band.
func splitSystem(messages []domain.Message) (string, []domain.Message) {
	var system []string
	rest := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
