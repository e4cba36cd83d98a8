package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionTTL = 30 * 24 * time.Hour

type Claims struct {
	PlayerID string `json:"player_id"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

func claimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(ctxKey{}).(*Claims)
	return c
}

func (a *API) issueToken(playerID string) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(sessionTTL)
	claims := &Claims{
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	jwtToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := jwtToken.SignedString(a.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create token: %w", err)
	}
	return tokenString, expires, nil
}

func (a *API) parseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if _, err := uuid.Parse(claims.PlayerID); err != nil {
		return nil, fmt.Errorf("invalid player id: %w", err)
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if authHeader == "" || tokenString == authHeader {
		return "", false
	}
	return tokenString, true
}

// handleSession issues a token for a new anonymous player, or refreshes the
// token of a player that already has a valid one.
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	playerID := ""
	if tokenString, ok := bearerToken(r); ok {
		if claims, err := a.parseToken(tokenString); err == nil {
			playerID = claims.PlayerID
		}
	}
	if playerID == "" {
		playerID = uuid.NewString()
		a.log.Info().Str("player", playerID).Msg("new player session")
	}

	tokenString, expires, err := a.issueToken(playerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":     tokenString,
		"playerId":  playerID,
		"expiresAt": expires.UTC().Format(time.RFC3339),
	})
}

// Middleware
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		tokenString, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		claims, err := a.parseToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
