package video

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenIssuer produces the signed handshake token the conferencing provider
// expects. The media session itself is entirely the provider's concern; the
// core only issues tokens while the session is joinable.
type TokenIssuer interface {
	IssueJoinToken(sessionID uuid.UUID, role string, expiresAt time.Time) (string, error)
}

type JoinClaims struct {
	Room string `json:"room"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type ConferenceIssuer struct {
	secret     string
	roomPrefix string
}

func NewConferenceIssuer(secret, roomPrefix string) *ConferenceIssuer {
	return &ConferenceIssuer{secret: secret, roomPrefix: roomPrefix}
}

func (i *ConferenceIssuer) IssueJoinToken(sessionID uuid.UUID, role string, expiresAt time.Time) (string, error) {
	now := time.Now()
	claims := JoinClaims{
		Room: fmt.Sprintf("%s-%s", i.roomPrefix, sessionID),
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.secret))
}

// ParseJoinToken validates a join token; used by tests and by the local
// development conference page.
func ParseJoinToken(tokenString, secret string) (*JoinClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &JoinClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := tok.Claims.(*JoinClaims); ok && tok.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid join token")
}
