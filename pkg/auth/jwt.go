package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultJWTSecret = "fallback_secret_change_in_production"

	// GuestSubject is the subject of tokens issued without a login.
	GuestSubject = "guest"

	// TokenCookie is the cookie a browser client may carry the token in.
	TokenCookie = "basic_token"
)

// ErrInvalidToken is returned for tokens that fail parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// getJWTSecret reads the signing key from JWT_SECRET_KEY, then [JWT] secret_key.
func getJWTSecret() string {
	if envSecret := os.Getenv("JWT_SECRET_KEY"); envSecret != "" {
		return envSecret
	}
	secret := configuration.GetString("JWT", "secret_key", "")
	if secret == "" {
		logger.SecurityWarn("Using fallback JWT secret - set JWT_SECRET_KEY for production")
		return defaultJWTSecret
	}
	return secret
}

func getTokenExpiration() time.Duration {
	hours := configuration.GetInt("JWT", "token_expiration_hours", 24)
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// Claims carry the session a token belongs to. Guest tokens have the
// subject "guest" and no username.
type Claims struct {
	SessionID string `json:"sid"`
	Username  string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// IsGuest reports whether the token was issued without a login.
func (c *Claims) IsGuest() bool {
	return c.Username == ""
}

// Owner is the name programs are stored under: the username, or a
// per-session guest name.
func (c *Claims) Owner() string {
	if c.IsGuest() {
		return "guest-" + c.SessionID
	}
	return c.Username
}

// GenerateGuestToken issues a token for an anonymous session.
func GenerateGuestToken(sessionID string) (string, error) {
	return generateToken(sessionID, "")
}

// GenerateUserToken issues a token for a logged in user.
func GenerateUserToken(sessionID, username string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("username required")
	}
	return generateToken(sessionID, username)
}

func generateToken(sessionID, username string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id required")
	}
	subject := GuestSubject
	if username != "" {
		subject = username
	}
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(getTokenExpiration())),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "retrobasic",
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(getJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	logger.AuthDebug("Issued token for session %s (subject %s)", sessionID, subject)
	return signed, nil
}

// ValidateToken checks signature and expiry and returns the claims.
func ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(getJWTSecret()), nil
	})
	if err != nil {
		logger.AuthDebug("Token rejected: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	wantSubject := claims.Username
	if claims.IsGuest() {
		wantSubject = GuestSubject
	}
	if claims.Subject != wantSubject {
		logger.SecurityWarn("Token subject %q does not match username %q", claims.Subject, claims.Username)
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExtractTokenFromRequest looks for a token in the Authorization header,
// the token cookie and the "token" query parameter, in that order. Browsers
// cannot set headers on WebSocket upgrades, hence the query fallback.
func ExtractTokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

// RequireToken rejects requests without a valid token and stores the
// claims in the request context.
func RequireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := ValidateToken(ExtractTokenFromRequest(r))
		if err != nil {
			logger.AuthWarn("Unauthorized request from %s to %s", getClientIP(r), r.URL.Path)
			respondWithError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(AddClaimsToContext(r.Context(), claims)))
	}
}
