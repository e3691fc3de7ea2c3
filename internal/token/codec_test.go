package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/bookmarket-auth/internal/model"
)

const testSecret = "test-jwt-secret-at-least-32-bytes-long"

func testClaims() Claims {
	return NewClaims(&model.User{
		ID:    "user-123",
		Email: "alice@example.com",
		Role:  model.RoleCustomer,
	}, "session-456")
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCodec_IssueAndVerify_RoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	c := NewCodec(testSecret, WithClock(fixedClock(now)))

	signed, err := c.Issue(testClaims(), time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := c.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if got.UserID() != "user-123" {
		t.Errorf("UserID() = %q, want %q", got.UserID(), "user-123")
	}
	if got.SessionID() != "session-456" {
		t.Errorf("SessionID() = %q, want %q", got.SessionID(), "session-456")
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", got.Email, "alice@example.com")
	}
	if got.Role != model.RoleCustomer {
		t.Errorf("Role = %q, want %q", got.Role, model.RoleCustomer)
	}
	if !got.IssuedAt.Time.Equal(now) {
		t.Errorf("iat = %v, want %v", got.IssuedAt.Time, now)
	}
	if !got.ExpiresAt.Time.Equal(now.Add(time.Hour)) {
		t.Errorf("exp = %v, want %v", got.ExpiresAt.Time, now.Add(time.Hour))
	}
}

func TestCodec_Issue_NonPositiveTTL_Rejected(t *testing.T) {
	c := NewCodec(testSecret)

	for _, ttl := range []time.Duration{0, -time.Second} {
		if _, err := c.Issue(testClaims(), ttl); !errors.Is(err, ErrInvalidTTL) {
			t.Errorf("Issue(ttl=%v) err = %v, want ErrInvalidTTL", ttl, err)
		}
	}
}

func TestCodec_Verify_ExpiredButCorrectlySigned_ReportsExpired(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	issuer := NewCodec(testSecret, WithClock(fixedClock(issuedAt)))
	signed, err := issuer.Issue(testClaims(), time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = NewCodec(testSecret).Verify(signed)
	if !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
	if errors.Is(err, ErrInvalidSignature) {
		t.Error("expired token must not be reported as an invalid signature")
	}
}

func TestCodec_Verify_WrongSecret_ReportsInvalidSignature(t *testing.T) {
	signed, _ := NewCodec(testSecret).Issue(testClaims(), time.Hour)

	_, err := NewCodec("another-secret-that-is-32-bytes-long!!").Verify(signed)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestCodec_Verify_TamperedPayload_ReportsInvalidSignature(t *testing.T) {
	c := NewCodec(testSecret)
	signed, _ := c.Issue(testClaims(), time.Hour)

	other := testClaims()
	other.Role = model.RoleAdmin
	forged, _ := c.Issue(other, time.Hour)

	// 元トークンの署名に別トークンのペイロードを組み合わせる
	parts := strings.Split(signed, ".")
	forgedParts := strings.Split(forged, ".")
	tampered := parts[0] + "." + forgedParts[1] + "." + parts[2]

	if _, err := c.Verify(tampered); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestCodec_Verify_Garbage_ReportsMalformed(t *testing.T) {
	c := NewCodec(testSecret)

	for _, in := range []string{"", "not-a-token", "a.b", "a.b.c"} {
		if _, err := c.Verify(in); !errors.Is(err, ErrMalformed) {
			t.Errorf("Verify(%q) err = %v, want ErrMalformed", in, err)
		}
	}
}

func TestCodec_Verify_NoneAlgorithm_Rejected(t *testing.T) {
	claims := testClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	if _, err := NewCodec(testSecret).Verify(unsigned); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestCodec_Verify_MissingSessionID_ReportsMalformed(t *testing.T) {
	c := NewCodec(testSecret)
	claims := testClaims()
	claims.ID = ""
	signed, _ := c.Issue(claims, time.Hour)

	if _, err := c.Verify(signed); !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}
