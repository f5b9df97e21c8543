package usecases

import (
	"strings"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
)

const (
	// NoContextPlaceholder stands in for the context block when retrieval found nothing.
	NoContextPlaceholder = "No context is available for this question."
	// NoHistoryPlaceholder stands in for the history block of a fresh session.
	NoHistoryPlaceholder = "No previous conversation."

	contextSeparator = "\n\n"
	blockRule        = "----------------"
)

// HistoryLine is one rendered line of conversation history.
type HistoryLine struct {
	Role entities.Role
	Text string
}

// AssemblePrompt builds the system instruction from retrieved context and history.
// Pure: the same inputs always give the same prompt.
func AssemblePrompt(context []string, history []HistoryLine) string {
	contextBlock := joinContext(context)
	if contextBlock == "" {
		contextBlock = NoContextPlaceholder
	}
	historyBlock := renderHistory(history)
	if historyBlock == "" {
		historyBlock = NoHistoryPlaceholder
	}

	var sb strings.Builder
	sb.WriteString("You are an assistant that answers questions about the user's documents. Your task is to:\n\n")
	sb.WriteString("1. Read the document context below carefully\n")
	sb.WriteString("2. Use the conversation history to stay consistent\n")
	sb.WriteString("3. Answer precisely and concisely\n")
	sb.WriteString("4. If the answer is not in the context, say so honestly\n")
	sb.WriteString("5. Never invent or infer information that is not in the context\n\n")
	sb.WriteString("Document context:\n")
	sb.WriteString(blockRule + "\n")
	sb.WriteString(contextBlock)
	sb.WriteString("\n" + blockRule + "\n\n")
	sb.WriteString("Conversation history:\n")
	sb.WriteString(blockRule + "\n")
	sb.WriteString(historyBlock)
	sb.WriteString("\n" + blockRule + "\n\n")
	sb.WriteString("Answer the user's next question using ONLY the information above.")
	return sb.String()
}

func joinContext(chunks []string) string {
	kept := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c == "" {
			continue
		}
		kept = append(kept, c)
	}
	return strings.Join(kept, contextSeparator)
}

func renderHistory(history []HistoryLine) string {
	lines := make([]string, 0, len(history))
	for _, h := range history {
		label := "User"
		if h.Role == entities.RoleAssistant {
			label = "Assistant"
		}
		lines = append(lines, label+": "+h.Text)
	}
	return strings.Join(lines, "\n")
}

// historyLines converts stored messages for prompt rendering.
// Roles are normalized here only; storage keeps "ai".
func historyLines(msgs []entities.DatabaseMessage) []HistoryLine {
	out := make([]HistoryLine, len(msgs))
	for i, m := range msgs {
		out[i] = HistoryLine{Role: m.Role.PromptRole(), Text: m.Content}
	}
	return out
}
