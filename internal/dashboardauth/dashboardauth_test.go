package dashboardauth

import (
	"testing"

	"github.com/google/uuid"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("mypassword")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !VerifyPassword("mypassword", hash) {
		t.Error("expected correct password to verify")
	}
	if VerifyPassword("wrong", hash) {
		t.Error("expected wrong password to fail verification")
	}
}

func TestValidateEmail(t *testing.T) {
	if err := ValidateEmail("user@example.com"); err != nil {
		t.Errorf("expected valid email to pass: %v", err)
	}
	if err := ValidateEmail("invalid"); err == nil {
		t.Error("expected invalid email to fail")
	}
	if err := ValidateEmail(""); err == nil {
		t.Error("expected empty email to fail")
	}
}

func TestJWTIssueAndValidate(t *testing.T) {
	issuer := NewJWTIssuer("test-secret-at-least-32-bytes-long!")
	userID := uuid.New()

	token, err := issuer.Issue(userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	got, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if got != userID {
		t.Errorf("expected subject %s, got %s", userID, got)
	}
}

func TestJWTValidateRejectsTamperedToken(t *testing.T) {
	issuer := NewJWTIssuer("test-secret-at-least-32-bytes-long!")
	token, err := issuer.Issue(uuid.New())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	tampered := token[:len(token)-1] + "x"
	if _, err := issuer.Validate(tampered); err == nil {
		t.Error("expected tampered token to fail validation")
	}
}

func TestJWTValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTIssuer("secret-a-at-least-32-bytes-long!!!!")
	other := NewJWTIssuer("secret-b-at-least-32-bytes-long!!!!")

	token, err := issuer.Issue(uuid.New())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := other.Validate(token); err == nil {
		t.Error("expected token signed with a different secret to fail validation")
	}
}
