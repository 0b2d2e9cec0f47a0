package tui

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"pdfchat/internal/domain"
	"pdfchat/internal/session"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	transcriptBox  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBox       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	wordRe     = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]*`)
)

// roleLabel renders the speaker of a message from its role tag.
func roleLabel(r domain.Role) string {
	switch r {
	case domain.RoleUser:
		return userStyle.Render("You:")
	case domain.RoleAssistant:
		return botStyle.Render("Assistant:")
	default:
		return dimStyle.Render(string(r) + ":")
	}
}

func renderTranscript(history []domain.Message) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for i, msg := range history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(roleLabel(msg.Role))
		b.WriteString(" ")
		b.WriteString(msg.Content)
	}
	return b.String()
}

func renderProcessResult(res *session.ProcessResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", titleStyle.Render("Extracted text:"), res.Preview)
	fmt.Fprintf(&b, "%s\n", titleStyle.Render(fmt.Sprintf("Text chunks (%d chunks):", res.ChunkCount)))
	for i, c := range res.FirstChunks {
		fmt.Fprintf(&b, "%s %s\n", dimStyle.Render(fmt.Sprintf("[%d]", i)), c)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(&b, "%s\n", warnStyle.Render(fmt.Sprintf("Skipped %s: %s", s.Name, s.Reason)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSources(question string, sources []domain.SearchResult) string {
	if len(sources) == 0 {
		return ""
	}
	refs := make([]string, len(sources))
	for i, s := range sources {
		refs[i] = fmt.Sprintf("#%d (%.2f)", s.Chunk.Index, s.Score)
	}
	top := highlightBestSentence(sources[0].Chunk.Text, question)
	return dimStyle.Render("Sources: "+strings.Join(refs, ", ")) + "\n" + top
}

// highlightBestSentence emphasizes the sentence of text sharing the most
// words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	bestIdx, bestScore := -1, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	for i := range sentences {
		sent := strings.Join(strings.Fields(sentences[i]), " ")
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range wordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
