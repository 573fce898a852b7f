package prompt

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		nonInteractive bool
		want           bool
	}{
		{name: "yes", input: "y\n", want: true},
		{name: "yes long form", input: "yes\n", want: true},
		{name: "yes uppercase", input: "Y\n", want: true},
		{name: "no", input: "n\n", want: false},
		{name: "no long form", input: "no\n", want: false},
		{name: "garbage is no", input: "maybe\n", want: false},
		{name: "empty is no", input: "\n", want: false},
		{name: "non-interactive always yes", input: "", nonInteractive: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cfg := Config{
				NonInteractive: tt.nonInteractive,
				In:             strings.NewReader(tt.input),
				Out:            &out,
			}

			got := Confirm("Proceed?", cfg)
			if got != tt.want {
				t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !tt.nonInteractive && !strings.Contains(out.String(), "Proceed?") {
				t.Error("Confirm() did not print the prompt")
			}
		})
	}
}

func TestWaitForKeyNonInteractive(t *testing.T) {
	var out bytes.Buffer
	// Must return without reading anything.
	WaitForKey("Press Enter", Config{NonInteractive: true, Out: &out})
	if out.Len() != 0 {
		t.Errorf("WaitForKey() printed %q in non-interactive mode", out.String())
	}
}
