package collective

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const joinAudience = "kmeans-worker"

// JoinClaims are the claims of a worker join token
type JoinClaims struct {
	Rank int `json:"rank"`
	Size int `json:"size"`
	jwt.RegisteredClaims
}

// IssueJoinToken signs a token allowing rank to join a run of size workers
func IssueJoinToken(secret []byte, rank, size int, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("join secret is empty")
	}
	now := time.Now()
	claims := JoinClaims{
		Rank: rank,
		Size: size,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(rank),
			Audience:  jwt.ClaimStrings{joinAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyJoinToken checks a join token's signature, expiry, audience and that
// it was issued for rank in a run of size workers
func VerifyJoinToken(secret []byte, token string, rank, size int) error {
	if token == "" {
		return fmt.Errorf("%w: missing", ErrInvalidToken)
	}

	var claims JoinClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(joinAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Rank != rank || claims.Size != size {
		return fmt.Errorf("%w: issued for rank %d of %d", ErrInvalidToken, claims.Rank, claims.Size)
	}
	return nil
}
