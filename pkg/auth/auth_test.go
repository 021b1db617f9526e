package auth

import (
	"testing"

	"github.com/antibyte/retrobasic/pkg/configuration"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	token, err := GenerateSessionToken("session-123")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	sid, err := ValidateSessionToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if sid != "session-123" {
		t.Errorf("session id = %q", sid)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	if _, err := ValidateSessionToken("not.a.token"); err == nil {
		t.Error("garbage token accepted")
	}
}

func TestPasswordGate(t *testing.T) {
	// no hash configured: open server
	if !CheckPassword("anything") {
		t.Error("open server rejected a connection")
	}

	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	configuration.Set("Server", "password_hash", hash)
	defer configuration.Set("Server", "password_hash", "")

	if !CheckPassword("secret") {
		t.Error("correct password rejected")
	}
	if CheckPassword("wrong") {
		t.Error("wrong password accepted")
	}
}
