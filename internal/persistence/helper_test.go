package persistence

import "testing"

func TestSanitizeHandleName(t *testing.T) {
	cases := map[string]string{
		"abc-123":      "abc-123",
		"has space":    "has_space",
		"":             "termhub",
		"slash/dash\\": "slash_dash_",
	}
	for in, want := range cases {
		if got := SanitizeHandleName(in); got != want {
			t.Errorf("SanitizeHandleName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFallbackHelperUsesMultiplexerFalse(t *testing.T) {
	h := &FallbackHelper{}
	if h.UsesMultiplexer() {
		t.Fatalf("fallback helper must report UsesMultiplexer() == false")
	}
	handle, err := h.CreateHandle("s1")
	if err != nil || handle != "" {
		t.Fatalf("expected empty handle, nil error, got %q %v", handle, err)
	}
}
