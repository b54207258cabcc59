package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/VallejoLeonardo/alumnosb/internal/auth"
	"github.com/VallejoLeonardo/alumnosb/internal/services"
	"github.com/VallejoLeonardo/alumnosb/internal/store"
	"github.com/VallejoLeonardo/alumnosb/types"
)

const bcryptCost = 12

// Both unknown matricula and wrong password return this exact message so
// responses never reveal which accounts exist.
const badCredentialsMessage = "invalid matricula or password"

// CaptchaVerifier validates a human-verification challenge token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token string) error
}

// AssertionVerifier validates a third-party identity assertion and returns
// the verified identity claims.
type AssertionVerifier interface {
	Verify(ctx context.Context, rawToken string) (auth.IdentityClaims, error)
}

// AuthHandler provides login, registration and profile endpoints.
type AuthHandler struct {
	students   *services.StudentService
	issuer     *auth.TokenIssuer
	captcha    CaptchaVerifier
	assertions AssertionVerifier
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
// assertions may be nil when identity-provider login is not configured.
func NewAuthHandler(students *services.StudentService, issuer *auth.TokenIssuer, captcha CaptchaVerifier, assertions AssertionVerifier) *AuthHandler {
	return &AuthHandler{
		students:   students,
		issuer:     issuer,
		captcha:    captcha,
		assertions: assertions,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/google", handler.GoogleLogin)
	r.With(authMiddleware).Get("/me", handler.Me)
}

// RequireAuth enforces bearer-token authentication and injects the resolved
// claims into the request context. A missing token and an unverifiable token
// are the two externally distinguishable failures.
func RequireAuth(issuer *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "access token required")
				return
			}

			claims, err := issuer.Verify(tokenString)
			if err != nil {
				writeError(w, http.StatusForbidden, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), contextClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose resolved role is not in the allowed set.
// Must run after RequireAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := claimsFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "access token required")
				return
			}
			for _, role := range roles {
				if strings.EqualFold(claims.Role, role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}

type LoginRequest struct {
	Matricula      string `json:"matricula"`
	Password       string `json:"password"`
	RecaptchaToken string `json:"recaptcha_token"`
}

type GoogleLoginRequest struct {
	Token string `json:"token"`
}

type RegisterRequest struct {
	types.Student
	Password string `json:"password"`
}

type AuthResponse struct {
	Status  int           `json:"status"`
	Token   string        `json:"token"`
	Student types.Student `json:"student"`
}

type RegisterResponse struct {
	Status  int           `json:"status"`
	Message string        `json:"message"`
	Student types.Student `json:"student"`
}

type MeResponse struct {
	Status int          `json:"status"`
	User   *auth.Claims `json:"user"`
}

// Login authenticates with matricula + password. The human-verification
// challenge is checked before credentials are touched.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Matricula = strings.TrimSpace(req.Matricula)
	if req.Matricula == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "matricula and password are required")
		return
	}
	if strings.TrimSpace(req.RecaptchaToken) == "" {
		writeError(w, http.StatusBadRequest, "recaptcha token is required")
		return
	}

	if err := h.captcha.Verify(r.Context(), req.RecaptchaToken); err != nil {
		writeError(w, http.StatusUnauthorized, "recaptcha verification failed")
		return
	}

	student, err := h.students.GetByMatricula(r.Context(), req.Matricula)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, badCredentialsMessage)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, badCredentialsMessage)
		return
	}

	token, err := h.issuer.Issue(student)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Status: http.StatusOK, Token: token, Student: student})
}

// GoogleLogin authenticates with a Google ID token. There is no password
// check on this path; the verified email must match a registered student.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.assertions == nil {
		writeError(w, http.StatusServiceUnavailable, "google login is not configured")
		return
	}

	var req GoogleLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "google token is required")
		return
	}

	identity, err := h.assertions.Verify(r.Context(), req.Token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid google token")
		return
	}

	student, err := h.students.GetByEmail(r.Context(), identity.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no student registered with this email")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	token, err := h.issuer.Issue(student)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Status: http.StatusOK, Token: token, Student: student})
}

// Register creates a new student record with a hashed password.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Matricula = strings.TrimSpace(req.Matricula)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.Email = strings.TrimSpace(req.Email)
	if req.Matricula == "" || req.FirstName == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to register student")
		return
	}

	student := req.Student
	student.PasswordHash = string(hashed)

	created, err := h.students.Create(r.Context(), student)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "student already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to register student")
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Status:  http.StatusCreated,
		Message: "student registered",
		Student: created,
	})
}

// Me returns the claims resolved from the caller's token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "access token required")
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{Status: http.StatusOK, User: claims})
}
