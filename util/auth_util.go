package util

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt"
)

// IssueSessionToken signs a resume token binding a player to a room, so
// a dropped client can reclaim its seat without re-joining.
func IssueSessionToken(secret, roomCode, playerID string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"room":   roomCode,
		"player": playerID,
		"exp":    time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// ParseSessionToken verifies a resume token and returns the room code
// and player id it was issued for.
func ParseSessionToken(secret, tokenString string) (string, string, bool) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		slog.Warn("session token rejected", "error", err)
		return "", "", false
	}
	if !token.Valid {
		slog.Warn("session token expired")
		return "", "", false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		slog.Warn("session token claims unreadable")
		return "", "", false
	}
	room, _ := claims["room"].(string)
	player, _ := claims["player"].(string)
	if room == "" || player == "" {
		return "", "", false
	}
	return room, player, true
}

// IsValidSpectatorToken verifies a token granting read-only access to a
// room's public feed.
func IsValidSpectatorToken(secret, tokenString string) bool {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		slog.Warn("spectator token rejected", "error", err)
		return false
	}
	if !token.Valid {
		return false
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		return claims["role"] == "SPECTATOR"
	}
	return false
}
