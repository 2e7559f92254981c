package process

import (
	"context"
	"runtime"
	"strings"
	"testing"
)

func TestQuote(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix quoting")
	}
	tests := []struct {
		in, want string
	}{
		{"symfony/maker-bundle", "symfony/maker-bundle"},
		{"zendframework/zend-diactoros:^1.3.0", "'zendframework/zend-diactoros:^1.3.0'"},
		{"it's", `'it'\''s'`},
		{"", "''"},
	}

	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestJoin_RoundTripsThroughShell(t *testing.T) {
	skipOnWindows(t)

	words := []string{"a b", "c'd", "$HOME", "^1.3"}
	res, err := NewRunner(nil).Run(context.Background(), Spec{
		Command: "printf '%s\\n' " + Join(words),
	})
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Split(strings.TrimSuffix(res.Stdout, "\n"), "\n")
	if len(got) != len(words) {
		t.Fatalf("got %q", got)
	}
	for i := range words {
		if got[i] != words[i] {
			t.Errorf("word %d = %q, want %q", i, got[i], words[i])
		}
	}
}
