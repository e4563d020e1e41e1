package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	cases := map[string]string{
		"john.doe@example.com": "jo***@example.com",
		"ab@example.com":       "***@example.com",
		"x@example.com":        "***@example.com",
		"not-an-email":         "***@***",
		"a@b@c":                "***@***",
	}
	for in, want := range cases {
		if got := RedactEmail(in); got != want {
			t.Errorf("RedactEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactValue(t *testing.T) {
	cases := []struct {
		key, val, want string
	}{
		{"email", "john.doe@example.com", "jo***@example.com"},
		{"recipient", "john.doe@example.com", "jo***@example.com"},
		// Address-bearing keys are masked even when the value is not a
		// well-formed address.
		{"recipient", "not-an-email", "***@***"},
		{"error", "550 mailbox john.doe@example.com unavailable", "550 mailbox jo***@example.com unavailable"},
		{"source", "203.0.113.5", "203.0.113.5"},
	}
	for _, tc := range cases {
		if got := redactValue(tc.key, tc.val); got != tc.want {
			t.Errorf("redactValue(%q, %q) = %q, want %q", tc.key, tc.val, got, tc.want)
		}
	}
}
