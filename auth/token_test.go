package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var secret = []byte("test-secret")

func TestIssueVerify(t *testing.T) {
	tok, err := Issue(secret, "user-1", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := Verify(secret, tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != "user-1" {
		t.Fatalf("userId = %q", got)
	}
}

func TestVerifyRejects(t *testing.T) {
	good, _ := Issue(secret, "user-1", time.Minute)
	expired, _ := Issue(secret, "user-1", -time.Minute)
	noUser, _ := Issue(secret, "", 0)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]struct {
		secret []byte
		token  string
	}{
		"empty":     {secret, ""},
		"garbage":   {secret, "not.a.token"},
		"wrong key": {[]byte("other"), good},
		"expired":   {secret, expired},
		"no user":   {secret, noUser},
		"alg none":  {secret, none},
	}
	for name, tc := range cases {
		if _, err := Verify(tc.secret, tc.token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}
