package auth_test

import (
	"testing"

	"github.com/bdobrica/kaiwa/internal/kaiwa/auth"
)

func TestOpenMode(t *testing.T) {
	f := auth.NewFilter(nil, "@kaiwa:example.com")
	if !f.Allowed("@anyone:example.com") {
		t.Error("empty allow-list must authorize every sender")
	}
}

func TestAllowListExactMatch(t *testing.T) {
	f := auth.NewFilter([]string{"@a:x", "@b:x"}, "@kaiwa:x")

	cases := []struct {
		sender string
		want   bool
	}{
		{"@a:x", true},
		{"@b:x", true},
		{"@c:x", false},
		{"@a:x ", false}, // no normalization, exact match only
		{"@A:x", false},
	}
	for _, tc := range cases {
		if got := f.Allowed(tc.sender); got != tc.want {
			t.Errorf("Allowed(%q) = %v, want %v", tc.sender, got, tc.want)
		}
	}
}

func TestSelfAlwaysRejected(t *testing.T) {
	open := auth.NewFilter(nil, "@kaiwa:example.com")
	if open.Allowed("@kaiwa:example.com") {
		t.Error("the bot must not answer itself in open mode")
	}

	// Even when someone puts the bot on its own allow-list.
	listed := auth.NewFilter([]string{"@kaiwa:example.com"}, "@kaiwa:example.com")
	if listed.Allowed("@kaiwa:example.com") {
		t.Error("the bot must not answer itself even when allow-listed")
	}
}
