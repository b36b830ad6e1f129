package util

import "testing"

func TestNormalizeContact(t *testing.T) {
	cases := []struct{ in, want string }{
		{" Parent@Example.COM ", "parent@example.com"},
		{"+1 (415) 555-0100", "+14155550100"},
		{"0044 20 7946 0958", "+442079460958"},
		{"push-token-abc123", "push-token-abc123"},
	}
	for _, c := range cases {
		if got := NormalizeContact(c.in); got != c.want {
			t.Errorf("NormalizeContact(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestValidEmail(t *testing.T) {
	if !ValidEmail("parent@example.com") {
		t.Error("valid email rejected")
	}
	if ValidEmail("not-an-email") {
		t.Error("invalid email accepted")
	}
}
