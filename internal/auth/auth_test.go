package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/framelink/internal/testutil/testlog"
	"github.com/rs/zerolog/log"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty stored token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "missing input", stored: "abc", input: "", wantErr: ErrTokenMissing},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			log.Debug().Str("stored", tc.stored).Str("input", tc.input).Err(err).Msg("auth/static-token")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestTokenSet(t *testing.T) {
	testlog.Start(t)
	set := TokenSet{"", "alpha", "beta"}
	if err := set.Validate("beta"); err != nil {
		t.Fatalf("expected beta accepted, got %v", err)
	}
	if err := set.Validate("gamma"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := set.Validate(""); !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("expected missing, got %v", err)
	}
}

func TestExpiringToken(t *testing.T) {
	testlog.Start(t)
	now := time.Unix(1700000000, 0)
	v := ExpiringToken{
		Validator: StaticToken{Token: "abc"},
		ExpiresAt: now.Add(time.Minute),
		Now:       func() time.Time { return now },
	}
	if err := v.Validate("abc"); err != nil {
		t.Fatalf("expected valid before expiry, got %v", err)
	}
	if err := v.Validate("nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	now = now.Add(time.Minute)
	if err := v.Validate("abc"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expired at deadline, got %v", err)
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)
	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})

	if err := validator.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
	if err := validator.Validate("ok"); err != nil {
		t.Fatalf("expected success for ok token, got %v", err)
	}
}

func TestReason(t *testing.T) {
	testlog.Start(t)
	cases := map[error]string{
		nil:                         "",
		ErrTokenMissing:             "Auth token missing",
		ErrExpired:                  "Token expired",
		ErrUnauthorized:             "Invalid token",
		errors.New("auth: revoked"): "revoked",
	}
	for err, want := range cases {
		if got := Reason(err); got != want {
			t.Fatalf("Reason(%v)=%q want=%q", err, got, want)
		}
	}
}
