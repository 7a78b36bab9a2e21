package orchestrator

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

const (
	maxContextChars   = 2000
	extractiveSources = 3
	extractiveChars   = 300

	fallbackGreeting = "Hello! Ask me anything about your department's documents."
	noEvidenceAnswer = "I could not find sufficient evidence in the available documents to answer this question."
)

func directPrompt(query string) string {
	return fmt.Sprintf(`You are a helpful workplace assistant. Reply briefly to the user's message.
The message does not require looking anything up.

Message: %s`, query)
}

func hydePrompt(query string) string {
	return fmt.Sprintf(`Write a short passage (3-5 sentences) that would plausibly answer the question below,
as it might appear in an internal company document. Do not mention that it is hypothetical.

Question: %s`, query)
}

func rewritePrompt(original, current string) string {
	return fmt.Sprintf(`The search query below did not retrieve relevant documents.
Rewrite it to improve retrieval: expand abbreviations, add likely synonyms, and remove filler words.
Return only the rewritten query on a single line.

Original question: %s
Current query: %s`, original, current)
}

func answerPrompt(query string, sources []domain.Document) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the numbered sources below. ")
	b.WriteString("Cite sources as [n]. If the sources do not contain the answer, say so.\n\n")
	for i, d := range sources {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, clip(d.Content, maxContextChars))
	}
	fmt.Fprintf(&b, "Question: %s", query)
	return b.String()
}

// extractiveAnswer quotes the leading sources when generation is unavailable.
func extractiveAnswer(sources []domain.Document) string {
	if len(sources) == 0 {
		return noEvidenceAnswer
	}
	var b strings.Builder
	b.WriteString("Relevant excerpts:\n")
	for i, d := range sources {
		if i == extractiveSources {
			break
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, clip(strings.TrimSpace(d.Content), extractiveChars))
	}
	return strings.TrimRight(b.String(), "\n")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// firstLine keeps a model rewrite to one line without wrapping quotes.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(strings.TrimSpace(s), `"'`)
}
