package protocol

import (
	"errors"
	"testing"
)

func TestParseOrigin(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{name: "plain", raw: "http://localhost:3000", want: "http://localhost:3000"},
		{name: "trailing slash", raw: "http://localhost:3000/", want: "http://localhost:3000"},
		{name: "case folded", raw: "HTTPS://Launcher.Example", want: "https://launcher.example"},
		{name: "default https port dropped", raw: "https://launcher.example:443", want: "https://launcher.example"},
		{name: "default http port dropped", raw: "http://launcher.example:80", want: "http://launcher.example"},
		{name: "ipv6", raw: "http://[::1]:3000", want: "http://[::1]:3000"},
		{name: "wildcard", raw: "*", wantErr: ErrWildcardOrigin},
		{name: "null", raw: "null", wantErr: ErrInvalidOrigin},
		{name: "empty", raw: " ", wantErr: ErrInvalidOrigin},
		{name: "path", raw: "http://localhost:3000/handler.html", wantErr: ErrInvalidOrigin},
		{name: "query", raw: "http://localhost:3000?x=1", wantErr: ErrInvalidOrigin},
		{name: "credentials", raw: "http://user:pw@localhost:3000", wantErr: ErrInvalidOrigin},
		{name: "no scheme", raw: "localhost:3000", wantErr: ErrInvalidOrigin},
		{name: "file scheme", raw: "file:///tmp", wantErr: ErrInvalidOrigin},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseOrigin(tc.raw)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v (origin=%q)", tc.wantErr, err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestOriginOf(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "http://localhost:3000/launcher-iframe-handler.html?x=1", want: "http://localhost:3000"},
		{raw: "ws://localhost:3000/launcher/ws", want: "http://localhost:3000"},
		{raw: "wss://launcher.example/launcher/ws", want: "https://launcher.example"},
		{raw: "https://launcher.example:8443/h.js", want: "https://launcher.example:8443"},
	}
	for _, tc := range tests {
		got, err := OriginOf(tc.raw)
		if err != nil {
			t.Fatalf("origin of %q: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("origin of %q: got %q want %q", tc.raw, got, tc.want)
		}
	}
}

func TestSameOriginIsExact(t *testing.T) {
	if !SameOrigin("http://localhost:3000", "http://localhost:3000") {
		t.Fatalf("identical origins must match")
	}
	mismatches := []string{
		"",
		"http://localhost:3001",
		"https://localhost:3000",
		"http://LOCALHOST:3000",
		"http://localhost:3000/",
		"http://localhost.evil:3000",
	}
	for _, other := range mismatches {
		if SameOrigin("http://localhost:3000", other) {
			t.Fatalf("origin %q must not match", other)
		}
	}
	if SameOrigin("", "") {
		t.Fatalf("empty origins must never match")
	}
}
