package guardrail

import (
	"errors"
	"strings"
	"testing"
)

func mustPolicy(t *testing.T, maxChars, limit int) *Policy {
	t.Helper()
	p, err := New(maxChars, limit)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(0, 5); err == nil {
		t.Error("expected error for zero maxInputChars")
	}
	if _, err := New(2000, -1); err == nil {
		t.Error("expected error for negative followupLimit")
	}
}

func TestCheckLength(t *testing.T) {
	t.Parallel()

	p := mustPolicy(t, DefaultMaxInputChars, DefaultFollowupLimit)

	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "empty", text: "", wantErr: false},
		{name: "at limit", text: strings.Repeat("a", 2000), wantErr: false},
		{name: "over limit", text: strings.Repeat("a", 2500), wantErr: true},
		// 2000 Tamil letters are 6000 bytes but still 2000 characters.
		{name: "multibyte at limit", text: strings.Repeat("த", 2000), wantErr: false},
		{name: "multibyte over limit", text: strings.Repeat("த", 2001), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := p.CheckLength(tt.text)
			if tt.wantErr != errors.Is(err, ErrInputTooLarge) {
				t.Errorf("CheckLength err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func historyWith(userTurns int) string {
	var b strings.Builder
	for i := range userTurns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("User: question\nAssistant: answer")
	}
	return b.String()
}

func TestCheckFollowups_IgnoresPlainText(t *testing.T) {
	t.Parallel()

	p := mustPolicy(t, 100000, 1)
	text := strings.Repeat("\nUser: hi", 10)
	if err := p.CheckFollowups(text); err != nil {
		t.Errorf("plain text without marker rejected: %v", err)
	}
}

func TestCheckFollowups_Heuristic(t *testing.T) {
	t.Parallel()

	p := mustPolicy(t, 100000, 5)

	// History lines after the first follow "\n", and the block puts history on
	// a fresh line, so every history user line is counted.
	ok := ConversationPrompt{Context: "msg", History: historyWith(6), Question: "q"}.Render()
	if err := p.CheckFollowups(ok); err != nil {
		t.Errorf("6 user turns rejected: %v", err)
	}
	tooMany := ConversationPrompt{Context: "msg", History: historyWith(7), Question: "q"}.Render()
	if err := p.CheckFollowups(tooMany); !errors.Is(err, ErrTooManyFollowups) {
		t.Errorf("7 user turns: err = %v, want ErrTooManyFollowups", err)
	}
}

func TestCheckPrompt_ExplicitCount(t *testing.T) {
	t.Parallel()

	p := mustPolicy(t, 100000, 5)

	// followupLimit+1 user turns is the ceiling.
	if err := p.CheckPrompt(ConversationPrompt{Context: "m", History: historyWith(6), Question: "q"}); err != nil {
		t.Errorf("6 turns rejected: %v", err)
	}
	if err := p.CheckPrompt(ConversationPrompt{Context: "m", History: historyWith(7), Question: "q"}); !errors.Is(err, ErrTooManyFollowups) {
		t.Errorf("7 turns: err = %v, want ErrTooManyFollowups", err)
	}
}

func TestCheckPrompt_AgreesWithHeuristic(t *testing.T) {
	t.Parallel()

	p := mustPolicy(t, 100000, 5)
	for n := range 10 {
		cp := ConversationPrompt{Context: "Electricity Bill Due 15 March", History: historyWith(n), Question: "q"}
		explicitErr := p.CheckPrompt(cp)
		heuristicErr := p.CheckFollowups(cp.Render())
		if errors.Is(explicitErr, ErrTooManyFollowups) != errors.Is(heuristicErr, ErrTooManyFollowups) {
			t.Errorf("%d history turns: CheckPrompt = %v, CheckFollowups = %v", n, explicitErr, heuristicErr)
		}
		if got, want := cp.UserTurns(), CountUserTurns(cp.Render()); got != want {
			t.Errorf("%d history turns: UserTurns = %d, marker count = %d", n, got, want)
		}
	}
}

func TestCheckPrompt_QuotedMarkersInContextNotCounted(t *testing.T) {
	t.Parallel()

	p := mustPolicy(t, 100000, 1)
	quoted := strings.Repeat("\nUser: forwarded chat line", 10)
	cp := ConversationPrompt{Context: "Forwarded:" + quoted, Question: "what is this?"}

	if err := p.CheckPrompt(cp); err != nil {
		t.Errorf("explicit count rejected quoted markers: %v", err)
	}
	if err := p.CheckFollowups(cp.Render()); !errors.Is(err, ErrTooManyFollowups) {
		t.Errorf("heuristic should over-count quoted markers, got %v", err)
	}
}

func TestCheckPrompt_Length(t *testing.T) {
	t.Parallel()

	p := mustPolicy(t, 50, 5)
	cp := ConversationPrompt{Context: strings.Repeat("x", 60), Question: "q"}
	if err := p.CheckPrompt(cp); !errors.Is(err, ErrInputTooLarge) {
		t.Errorf("err = %v, want ErrInputTooLarge", err)
	}
}

func TestUserTurns_Monotonic(t *testing.T) {
	t.Parallel()

	prevExplicit, prevHeuristic := 0, 0
	for n := range 12 {
		cp := ConversationPrompt{Context: "m", History: historyWith(n), Question: "q"}
		explicit, heuristic := cp.UserTurns(), CountUserTurns(cp.Render())
		if explicit < prevExplicit || heuristic < prevHeuristic {
			t.Fatalf("count decreased at %d turns: explicit %d<%d or heuristic %d<%d",
				n, explicit, prevExplicit, heuristic, prevHeuristic)
		}
		if explicit != n {
			t.Errorf("UserTurns with %d history turns = %d, want %d", n, explicit, n)
		}
		prevExplicit, prevHeuristic = explicit, heuristic
	}
}

func TestRender_Layout(t *testing.T) {
	t.Parallel()

	got := ConversationPrompt{Context: "  Bill due 15 March ", Question: " When? "}.Render()
	want := "You are continuing a conversation about the SAME message.\n\n" +
		"Original message (context):\nBill due 15 March\n\n" +
		"Conversation so far:\n(none)\n\n" +
		"User follow-up question:\nWhen?"
	if got != want {
		t.Errorf("Render =\n%s\nwant\n%s", got, want)
	}
}

func TestCompose(t *testing.T) {
	t.Parallel()

	if _, ok := Compose("  ", "User: a", "q"); ok {
		t.Error("blank context should not compose a prompt")
	}
	cp, ok := Compose("ctx", "User: a", "q")
	if !ok || cp.Context != "ctx" || cp.History != "User: a" || cp.Question != "q" {
		t.Errorf("Compose = %+v, %v", cp, ok)
	}
}

func TestCheck_RunsBothGuards(t *testing.T) {
	t.Parallel()

	p := mustPolicy(t, 10, 0)
	if err := p.Check(strings.Repeat("a", 11)); !errors.Is(err, ErrInputTooLarge) {
		t.Errorf("err = %v, want ErrInputTooLarge", err)
	}
	p = mustPolicy(t, 1000, 0)
	text := FollowupMarker + "\nUser: a\nUser: b"
	if err := p.Check(text); !errors.Is(err, ErrTooManyFollowups) {
		t.Errorf("err = %v, want ErrTooManyFollowups", err)
	}
}
