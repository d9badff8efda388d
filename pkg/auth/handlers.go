package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/antibyte/retrobasic/pkg/logger"
	"github.com/antibyte/retrobasic/pkg/store"
	"github.com/google/uuid"
)

// Users is the account storage the handlers need. *store.Store
// implements it.
type Users interface {
	CreateUser(ctx context.Context, username, password string) error
	Authenticate(ctx context.Context, username, password string) error
}

// Handlers serve the /api/auth endpoints.
type Handlers struct {
	users Users
}

// NewHandlers returns handlers backed by users. With a nil Users only
// guest sessions are available.
func NewHandlers(users Users) *Handlers {
	return &Handlers{users: users}
}

// CredentialsRequest is the body of register and login requests.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by every auth endpoint.
type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Username  string `json:"username,omitempty"`
	Message   string `json:"message"`
}

// setHeaders writes the CORS and content type headers and answers
// preflight requests. It returns false when the request is finished.
func setHeaders(w http.ResponseWriter, r *http.Request, method string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", method+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	if r.Method != method {
		logger.AuthWarn("Invalid method %s for %s", r.Method, r.URL.Path)
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// HandleCreateSession starts a guest session.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !setHeaders(w, r, http.MethodPost) {
		return
	}
	sessionID := generateSessionID()
	token, err := GenerateGuestToken(sessionID)
	if err != nil {
		logger.AuthError("Failed to generate guest token: %v", err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	logger.AuthInfo("Guest session %s created for %s", sessionID, getClientIP(r))
	respond(w, http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Message:   "Session created",
	})
}

// HandleRegister creates an account and logs it in.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if !setHeaders(w, r, http.MethodPost) {
		return
	}
	req, ok := h.credentials(w, r)
	if !ok {
		return
	}
	if err := h.users.CreateUser(r.Context(), req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, store.ErrUserExists):
			respondWithError(w, "Username already taken", http.StatusConflict)
		case errors.Is(err, store.ErrInvalidUsername), errors.Is(err, store.ErrPasswordTooShort):
			respondWithError(w, err.Error(), http.StatusBadRequest)
		default:
			logger.AuthError("Registering %s failed: %v", req.Username, err)
			respondWithError(w, "Registration failed", http.StatusInternalServerError)
		}
		return
	}
	logger.AuthInfo("User %s registered from %s", req.Username, getClientIP(r))
	h.issueUserToken(w, req.Username, "Registered")
}

// HandleLogin checks credentials and returns a user token.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !setHeaders(w, r, http.MethodPost) {
		return
	}
	req, ok := h.credentials(w, r)
	if !ok {
		return
	}
	if err := h.users.Authenticate(r.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			logger.AuthWarn("Failed login for %s from %s", req.Username, getClientIP(r))
			respondWithError(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		logger.AuthError("Login for %s failed: %v", req.Username, err)
		respondWithError(w, "Login failed", http.StatusInternalServerError)
		return
	}
	logger.AuthInfo("User %s logged in from %s", req.Username, getClientIP(r))
	h.issueUserToken(w, req.Username, "Logged in")
}

func (h *Handlers) credentials(w http.ResponseWriter, r *http.Request) (CredentialsRequest, bool) {
	var req CredentialsRequest
	if h.users == nil {
		respondWithError(w, "Accounts are not available", http.StatusServiceUnavailable)
		return req, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.AuthWarn("Invalid JSON in auth request: %v", err)
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return req, false
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		respondWithError(w, "Username and password required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (h *Handlers) issueUserToken(w http.ResponseWriter, username, message string) {
	sessionID := generateSessionID()
	token, err := GenerateUserToken(sessionID, username)
	if err != nil {
		logger.AuthError("Failed to generate user token for %s: %v", username, err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Username:  username,
		Message:   message,
	})
}

// HandleTokenValidation reports whether the request carries a valid token.
func (h *Handlers) HandleTokenValidation(w http.ResponseWriter, r *http.Request) {
	if !setHeaders(w, r, http.MethodGet) {
		return
	}
	claims, err := ValidateToken(ExtractTokenFromRequest(r))
	if err != nil {
		respondWithError(w, "Invalid token", http.StatusUnauthorized)
		return
	}
	respond(w, http.StatusOK, LoginResponse{
		Success:   true,
		SessionID: claims.SessionID,
		Username:  claims.Username,
		Message:   "Token valid",
	})
}

func respond(w http.ResponseWriter, status int, body LoginResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.AuthError("Failed to encode response: %v", err)
	}
}

func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	respond(w, statusCode, LoginResponse{Success: false, Message: message})
}

func generateSessionID() string {
	return uuid.New().String()
}

// getClientIP prefers the proxy headers over the socket address.
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
