package genai

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/BTreeMap/CampusCare/internal/models"
)

// MaxHistory is the number of most recent turns forwarded to the model.
const MaxHistory = 6

//go:embed system_prompt.tmpl
var systemPromptTemplate string

var systemPrompt = template.Must(template.New("system").Parse(systemPromptTemplate))

// Message is one role-tagged entry of the conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the text-generation contract. History holds prior turns,
// oldest first; only the last MaxHistory are used.
type Request struct {
	Message        string                     `json:"message"`
	History        []Message                  `json:"history,omitempty"`
	ContextSummary string                     `json:"context_summary,omitempty"`
	Language       string                     `json:"language,omitempty"`
	Resources      []models.EmergencyResource `json:"-"`
}

// LanguageName maps a language code to the name used in the prompt.
func LanguageName(code string) string {
	switch strings.ToLower(code) {
	case "hi":
		return "Hindi"
	default:
		return "English"
	}
}

// BuildSystemPrompt renders the system prompt for req.
func BuildSystemPrompt(req Request) (string, error) {
	var b strings.Builder
	err := systemPrompt.Execute(&b, struct {
		LanguageName   string
		ContextSummary string
		Resources      []models.EmergencyResource
	}{
		LanguageName:   LanguageName(req.Language),
		ContextSummary: req.ContextSummary,
		Resources:      req.Resources,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render system prompt: %w", err)
	}
	return b.String(), nil
}

// BuildMessages assembles system prompt, trimmed history and the new user message.
func BuildMessages(req Request) ([]Message, error) {
	sys, err := BuildSystemPrompt(req)
	if err != nil {
		return nil, err
	}
	history := TrimHistory(req.History)
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: "system", Content: sys})
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: string(models.RoleUser), Content: req.Message})
	return msgs, nil
}

// TrimHistory keeps the last MaxHistory entries.
func TrimHistory(history []Message) []Message {
	if len(history) <= MaxHistory {
		return history
	}
	return history[len(history)-MaxHistory:]
}

// HistoryFromTurns converts session turns into model history.
func HistoryFromTurns(turns []models.ChatTurn) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, Message{Role: string(t.Role), Content: t.Content})
	}
	return out
}
