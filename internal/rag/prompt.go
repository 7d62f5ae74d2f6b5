package rag

import (
	"strings"

	"github.com/dgallion1/manualbot/internal/llm"
)

// SystemPrompt instructs the model to answer only from the supplied context.
const SystemPrompt = `You are a helpful technical support assistant that answers questions based on product manuals and documentation.

Your responses must:
1. Be accurate and based only on the provided context
2. Cite specific sections or pages when referencing information
3. If the context doesn't contain enough information, say so clearly
4. Be concise but complete
5. Use the source documents to provide precise technical details

Always ground your answers in the provided context. Do not make up information that isn't in the context.`

// FallbackAnswer is sent instead of calling the generator when retrieval finds nothing.
const FallbackAnswer = "I couldn't find relevant information in the documentation for your question."

// BuildMessages assembles the generator conversation: system prompt, prior
// user/assistant turns, then the context-bearing question.
func BuildMessages(history []llm.Message, query, context string) []llm.Message {
	history = priorTurns(history, query)
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: questionPrompt(query, context)})
	return msgs
}

func questionPrompt(query, context string) string {
	var b strings.Builder
	b.WriteString("Context from documentation:\n")
	b.WriteString(context)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\n\nAnswer based on the context above:")
	return b.String()
}

// priorTurns keeps user and assistant turns. A trailing user turn repeating
// the query is dropped since the question prompt carries it.
func priorTurns(history []llm.Message, query string) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Role == llm.RoleUser || m.Role == llm.RoleAssistant {
			out = append(out, m)
		}
	}
	if n := len(out); n > 0 && out[n-1].Role == llm.RoleUser &&
		strings.TrimSpace(out[n-1].Content) == strings.TrimSpace(query) {
		out = out[:n-1]
	}
	return out
}
