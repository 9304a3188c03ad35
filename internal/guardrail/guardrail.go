// Package guardrail enforces the input ceilings applied before any text
// reaches the explanation model: a character limit and a cap on the number
// of follow-up turns in a conversation.
package guardrail

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	ErrInputTooLarge    = errors.New("guardrail: input too large")
	ErrTooManyFollowups = errors.New("guardrail: too many follow-ups")
)

// Defaults used when a Policy is built with zero values.
const (
	DefaultMaxInputChars = 2000
	DefaultFollowupLimit = 5
)

// userTurnMarker is the heuristic per-turn prefix counted in raw text.
const userTurnMarker = "\nUser:"

// Policy holds the configured ceilings. The zero value is not usable; build
// one with New.
type Policy struct {
	maxInputChars int
	followupLimit int
}

// New returns a Policy. maxInputChars must be positive and followupLimit must
// not be negative.
func New(maxInputChars, followupLimit int) (*Policy, error) {
	if maxInputChars <= 0 {
		return nil, fmt.Errorf("guardrail: maxInputChars must be positive, got %d", maxInputChars)
	}
	if followupLimit < 0 {
		return nil, fmt.Errorf("guardrail: followupLimit must not be negative, got %d", followupLimit)
	}
	return &Policy{maxInputChars: maxInputChars, followupLimit: followupLimit}, nil
}

// FollowupLimit returns the configured number of allowed follow-ups.
func (p *Policy) FollowupLimit() int { return p.followupLimit }

// MaxUserTurns is the largest number of user turns one prompt may carry: the
// original message plus followupLimit follow-ups.
func (p *Policy) MaxUserTurns() int { return p.followupLimit + 1 }

// CheckLength fails with ErrInputTooLarge when text has more characters
// (Unicode code points) than the ceiling.
func (p *Policy) CheckLength(text string) error {
	if n := utf8.RuneCountInString(text); n > p.maxInputChars {
		return fmt.Errorf("%w: %d characters, limit %d", ErrInputTooLarge, n, p.maxInputChars)
	}
	return nil
}

// CheckFollowups applies the follow-up ceiling to raw text. Text that does not
// contain the follow-up marker is not a conversation and always passes.
// Otherwise turns are counted by the "\nUser:" prefix; marker text quoted
// inside the original message is counted too, so prefer CheckPrompt when the
// structured prompt is available.
func (p *Policy) CheckFollowups(text string) error {
	if !strings.Contains(text, FollowupMarker) {
		return nil
	}
	return p.checkTurns(CountUserTurns(text))
}

// CheckPrompt applies both ceilings to a composed conversation, using the
// prompt's explicit turn count instead of re-parsing the rendered text.
func (p *Policy) CheckPrompt(cp ConversationPrompt) error {
	if err := p.CheckLength(cp.Render()); err != nil {
		return err
	}
	return p.checkTurns(cp.UserTurns())
}

// Check applies both ceilings to raw text.
func (p *Policy) Check(text string) error {
	if err := p.CheckLength(text); err != nil {
		return err
	}
	return p.CheckFollowups(text)
}

func (p *Policy) checkTurns(turns int) error {
	if turns > p.MaxUserTurns() {
		return fmt.Errorf("%w: %d user turns, limit %d", ErrTooManyFollowups, turns, p.MaxUserTurns())
	}
	return nil
}

// CountUserTurns counts "\nUser:" occurrences in text.
func CountUserTurns(text string) int {
	return strings.Count(text, userTurnMarker)
}
