package analyzer

import "testing"

func TestBaseDomain(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://www.news.example.co.uk", "co.uk"},
		{"https://mail.google.com/mail/u/0/", "google.com"},
		{"https://www.github.com/lotas", "github.com"},
		{"https://WWW.Example.COM", "example.com"},
		{"http://localhost:8080/app", "localhost"},
		{"https://example.com", "example.com"},
		{"https://user:pw@sub.example.org:443/x?y=1#z", "example.org"},
		{"chrome://newtab/", "newtab"},
		{"about:blank", UnknownDomain},
		{"data:text/plain,hi", UnknownDomain},
		{"not a url", UnknownDomain},
		{"", UnknownDomain},
		{"http://[::1", UnknownDomain},
	}

	for _, tt := range tests {
		got := BaseDomain(tt.input)
		if got != tt.expected {
			t.Errorf("BaseDomain(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestBaseDomainIsPure(t *testing.T) {
	const u = "https://docs.google.com/spreadsheets"
	first := BaseDomain(u)
	for i := 0; i < 3; i++ {
		if got := BaseDomain(u); got != first {
			t.Fatalf("call %d returned %q, want %q", i, got, first)
		}
	}
}
