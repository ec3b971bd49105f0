package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func TestIssueAndVerify(t *testing.T) {
	tok, err := NewIssuer("s3cret").Issue("user-1", "a@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := NewVerifier("s3cret").Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@example.com" || claims.Issuer != "mshare" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerifyRejects(t *testing.T) {
	good, _ := NewIssuer("s3cret").Issue("user-1", "", time.Hour)

	expiredIssuer := NewIssuer("s3cret")
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := expiredIssuer.Issue("user-1", "", time.Hour)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "user-1"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	anon, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{}).SignedString([]byte("s3cret"))

	tests := []struct {
		name  string
		token string
		key   string
	}{
		{"wrong secret", good, "other"},
		{"expired", expired, "s3cret"},
		{"alg none", unsigned, "s3cret"},
		{"garbage", "not.a.token", "s3cret"},
		{"no user", anon, "s3cret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewVerifier(tt.key).Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestCallerContext(t *testing.T) {
	if _, ok := CallerFrom(context.Background()); ok {
		t.Error("empty context has no caller")
	}
	id, ok := CallerFrom(WithCaller(context.Background(), "user-1"))
	if !ok || id != "user-1" {
		t.Errorf("CallerFrom = %q, %v", id, ok)
	}
}
