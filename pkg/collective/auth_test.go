package collective

import (
	"errors"
	"testing"
	"time"
)

func TestJoinToken(t *testing.T) {
	secret := []byte("s3cret")

	token, err := IssueJoinToken(secret, 2, 4, time.Minute)
	if err != nil {
		t.Fatalf("IssueJoinToken failed: %v", err)
	}
	if err := VerifyJoinToken(secret, token, 2, 4); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}

	tests := []struct {
		name   string
		secret []byte
		token  string
		rank   int
		size   int
	}{
		{"wrong secret", []byte("other"), token, 2, 4},
		{"wrong rank", secret, token, 3, 4},
		{"wrong size", secret, token, 2, 5},
		{"missing", secret, "", 2, 4},
		{"garbage", secret, "not.a.jwt", 2, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifyJoinToken(tt.secret, tt.token, tt.rank, tt.size); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("VerifyJoinToken error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJoinTokenExpired(t *testing.T) {
	secret := []byte("s3cret")
	token, err := IssueJoinToken(secret, 1, 2, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyJoinToken(secret, token, 1, 2); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token error = %v, want ErrInvalidToken", err)
	}
}

func TestIssueJoinTokenNeedsSecret(t *testing.T) {
	if _, err := IssueJoinToken(nil, 1, 2, time.Minute); err == nil {
		t.Error("expected error for empty secret")
	}
}
