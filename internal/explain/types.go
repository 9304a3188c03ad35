package explain

import (
	"fmt"
	"strings"
)

// Language is the requested output language.
type Language string

// Supported output languages.
const (
	LanguageTamil    Language = "tamil"
	LanguageTanglish Language = "tanglish"
	LanguageEnglish  Language = "english"
	LanguageAll      Language = "all"
)

// DefaultLanguage is used when a caller supplies no preference.
const DefaultLanguage = LanguageTamil

// ParseLanguage validates s. An empty string yields DefaultLanguage.
func ParseLanguage(s string) (Language, error) {
	switch l := Language(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return DefaultLanguage, nil
	case LanguageTamil, LanguageTanglish, LanguageEnglish, LanguageAll:
		return l, nil
	default:
		return "", fmt.Errorf("explain: unsupported language preference %q", s)
	}
}

// Urgency grades how soon the user must act.
type Urgency string

// Urgency levels. High is reserved for scam or suspicious content.
const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ReplyOptions are safe reply drafts, one per language. All three are empty
// when Urgency is high.
type ReplyOptions struct {
	Tamil    string `json:"tamil"`
	Tanglish string `json:"tanglish"`
	English  string `json:"english"`
}

// Explanation is the structured answer returned to the user.
type Explanation struct {
	Explanation  string       `json:"explanation"`
	Urgency      Urgency      `json:"urgency"`
	NextSteps    string       `json:"next_steps"`
	ReplyOptions ReplyOptions `json:"reply_options"`

	// SourceText is the text that was explained, when there was one.
	SourceText string `json:"source_text,omitempty"`

	// AudioBase64 and AudioMIMEType are set only when speech synthesis succeeded.
	AudioBase64   string `json:"tts_audio_base64,omitempty"`
	AudioMIMEType string `json:"tts_mime_type,omitempty"`
}

// HasAudio reports whether speech was attached.
func (e Explanation) HasAudio() bool { return e.AudioBase64 != "" }

// Outcome tells which branch produced an Explanation.
type Outcome int

const (
	// OutcomeModel means the model answered with a well-formed object.
	OutcomeModel Outcome = iota
	// OutcomeTooShort means the input was too short to send to the model.
	OutcomeTooShort
	// OutcomeFailSafe means the model answered but the answer could not be
	// parsed, and the fixed fail-safe was returned instead.
	OutcomeFailSafe
)

// String returns a metric-friendly name for o.
func (o Outcome) String() string {
	switch o {
	case OutcomeModel:
		return "model"
	case OutcomeTooShort:
		return "too_short"
	case OutcomeFailSafe:
		return "fail_safe"
	default:
		return "unknown"
	}
}

// Result pairs an Explanation with the branch that produced it.
type Result struct {
	Explanation Explanation
	Outcome     Outcome
}
