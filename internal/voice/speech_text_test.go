package voice

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSpeakableText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drops emoji and emphasis markers",
			in:   "The **Rosetta Stone** is in room 4 \U0001F3DB️",
			want: "The Rosetta Stone is in room 4",
		},
		{
			name: "keeps link label and removes url",
			in:   "See [the floor plan](https://museum.example/plan) at the desk.",
			want: "See the floor plan at the desk.",
		},
		{
			name: "list items become sentences",
			in:   "## Highlights\n- Sundial\n- Bronze horse\n1. Map room",
			want: "Highlights. Sundial. Bronze horse. Map room.",
		},
		{
			name: "keeps non latin punctuation",
			in:   "这是日晷。",
			want: "这是日晷。",
		},
		{
			name: "blank",
			in:   "   ",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := speakableText(tc.in)
			if got != tc.want {
				t.Fatalf("speakableText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSpeakableTextCutsLongRepliesAtSentenceEnd(t *testing.T) {
	sentence := "The gallery holds forty bronze figures from the late period. "
	got := speakableText(strings.Repeat(sentence, 20))
	if n := utf8.RuneCountInString(got); n > maxSpokenRunes {
		t.Fatalf("len = %d, want <= %d", n, maxSpokenRunes)
	}
	if !strings.HasSuffix(got, "period.") {
		t.Fatalf("speakableText() = %q, want cut after a full sentence", got)
	}
}
