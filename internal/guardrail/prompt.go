package guardrail

import "strings"

// Headings of a composed follow-up block.
const (
	conversationPreamble = "You are continuing a conversation about the SAME message."
	contextHeading       = "Original message (context):"
	historyHeading       = "Conversation so far:"
	noHistory            = "(none)"

	// FollowupMarker identifies a composed follow-up block in raw text.
	FollowupMarker = "User follow-up question:"
)

// ConversationPrompt is a follow-up question about a previously explained
// message. History is the client-kept transcript, one turn per line, with user
// turns prefixed "User:".
type ConversationPrompt struct {
	Context  string
	History  string
	Question string
}

// Compose returns the text to explain for a spoken question. Without context
// the question stands alone; otherwise it is wrapped into a
// ConversationPrompt. ok reports whether a prompt was built.
func Compose(contextText, history, question string) (cp ConversationPrompt, ok bool) {
	if strings.TrimSpace(contextText) == "" {
		return ConversationPrompt{}, false
	}
	return ConversationPrompt{Context: contextText, History: history, Question: question}, true
}

// Render lays the prompt out as the block the explanation model receives.
func (c ConversationPrompt) Render() string {
	history := strings.TrimSpace(c.History)
	if history == "" {
		history = noHistory
	}
	return strings.Join([]string{
		conversationPreamble,
		"",
		contextHeading,
		strings.TrimSpace(c.Context),
		"",
		historyHeading,
		history,
		"",
		FollowupMarker,
		strings.TrimSpace(c.Question),
	}, "\n")
}

// UserTurns is the number of "User:" lines in History. It equals the marker
// count CountUserTurns finds in Render when Context quotes no markers; text
// inside Context is never counted.
func (c ConversationPrompt) UserTurns() int {
	turns := 0
	for _, line := range strings.Split(c.History, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "User:") {
			turns++
		}
	}
	return turns
}
