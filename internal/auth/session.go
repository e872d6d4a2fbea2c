// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// privateKey and publicKey sign and verify session tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
)

// DefaultTokenTTL bounds how long a session token stays valid. Long enough
// to cover a full evening of games; clients re-mint on rejoin anyway.
const DefaultTokenTTL = 24 * time.Hour

// Init generates a fresh ed25519 key pair at runtime. Tokens do not survive
// a server restart, which matches the in-memory room store.
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}
}

// InitFromPath reads ed25519 private/public keys from file, for deployments
// that need tokens valid across instances.
func InitFromPath(privatePath, publicPath string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	return nil
}

// SessionClaims bind an issued identity to one room. A token minted for one
// room cannot be replayed against another.
type SessionClaims struct {
	UserID uuid.UUID
	RoomID uuid.UUID
}

// CreateSessionToken mints a signed token with "sub" = userID and
// "room" = roomID. Clients present it on the websocket to reclaim their
// seat after a disconnect.
func CreateSessionToken(userID, roomID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"room": roomID.String(),
		"exp":  time.Now().Add(DefaultTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// VerifySessionToken verifies a token string and returns its claims.
func VerifySessionToken(tokenString string) (SessionClaims, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return SessionClaims{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return SessionClaims{}, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return SessionClaims{}, fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return SessionClaims{}, fmt.Errorf("missing sub in jwt")
	}
	roomStr, ok := claims["room"].(string)
	if !ok {
		return SessionClaims{}, fmt.Errorf("missing room in jwt")
	}

	userID, err := uuid.Parse(sub)
	if err != nil {
		return SessionClaims{}, fmt.Errorf("malformed sub: %w", err)
	}
	roomID, err := uuid.Parse(roomStr)
	if err != nil {
		return SessionClaims{}, fmt.Errorf("malformed room claim: %w", err)
	}
	return SessionClaims{UserID: userID, RoomID: roomID}, nil
}
