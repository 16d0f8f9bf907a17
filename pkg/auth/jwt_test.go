package auth

import (
	"testing"
	"time"
)

func TestGenerateAndVerify(t *testing.T) {
	v := NewVerifier("test-secret", time.Hour)

	token, err := v.GenerateToken(42)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("UserID = %d, want 42", claims.UserID)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := NewVerifier("secret-a", time.Hour).GenerateToken(1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewVerifier("secret-b", time.Hour).VerifyToken(token); err == nil {
		t.Error("expected verification failure with wrong secret")
	}
}

func TestVerify_Expired(t *testing.T) {
	token, err := NewVerifier("secret", -time.Minute).GenerateToken(1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewVerifier("secret", time.Hour).VerifyToken(token); err == nil {
		t.Error("expected verification failure for expired token")
	}
}

func TestVerify_Garbage(t *testing.T) {
	if _, err := NewVerifier("secret", time.Hour).VerifyToken("not-a-token"); err == nil {
		t.Error("expected verification failure for malformed token")
	}
}
