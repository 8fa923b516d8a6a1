package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mentormatch/server/internal/auth"
	"mentormatch/server/internal/chat"
	"mentormatch/server/internal/config"
	"mentormatch/server/internal/crypto"
	"mentormatch/server/internal/model"
	"mentormatch/server/internal/store"
	"mentormatch/server/internal/ws"
)

const authCookieName = "jwt"

// UserSource resolves a token subject to a user record. Backed by the
// redis-fronted cache in production wiring.
type UserSource interface {
	GetUserByID(ctx context.Context, userID string) (model.User, error)
}

type Server struct {
	cfg      config.Config
	store    *store.Store
	users    UserSource
	cache    *store.UserCache
	pipeline *chat.Pipeline
	hub      *ws.Hub
}

func NewServer(cfg config.Config, st *store.Store, cache *store.UserCache, pipeline *chat.Pipeline, hub *ws.Hub) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		users:    cache,
		cache:    cache,
		pipeline: pipeline,
		hub:      hub,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/signup", s.handleSignup)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)
	r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)

	r.With(s.authMiddleware).Put("/profile", s.handleUpdateProfile)

	r.With(s.authMiddleware).Get("/connections", s.handleListConnections)
	r.With(s.authMiddleware, s.requireRole(model.RoleMentee)).Post("/connections/request", s.handleRequestConnection)
	r.With(s.authMiddleware, s.requireRole(model.RoleMentor)).Post("/connections/{connectionId}/accept", s.handleAcceptConnection)

	r.With(s.authMiddleware).Post("/messages/send", s.handleSendMessage)
	r.With(s.authMiddleware).Get("/messages/{userId}", s.handleListMessages)

	r.Get("/ws", s.handleWebSocket)

	return r
}

// Session guard

type identityKey struct{}

func identityFromContext(ctx context.Context) *model.User {
	value := ctx.Value(identityKey{})
	user, _ := value.(*model.User)
	return user
}

// extractToken prefers the jwt cookie over the Authorization header. The
// cookie is what browsers carry; the bearer header serves non-browser
// clients. When both are present the cookie wins.
func extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(authCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return bearerToken(r.Header.Get("Authorization"))
}

// resolveIdentity verifies the token and reconciles its subject against the
// user table. A valid token whose subject no longer exists is unauthorized.
func (s *Server) resolveIdentity(ctx context.Context, token string) (*model.User, error) {
	claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		user, err := s.resolveIdentity(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := identityFromContext(r.Context())
			if user == nil {
				writeError(w, http.StatusUnauthorized, "missing_token")
				return
			}
			if !roleAllowed(user.Role, roles) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func roleAllowed(role model.Role, allowed []model.Role) bool {
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}

// Auth handlers

type signupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userSummary struct {
	ID         string `json:"id"`
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	ProfilePic string `json:"profilePic"`
}

func summarize(user model.User) userSummary {
	return userSummary{
		ID:         user.ID,
		FullName:   user.FullName,
		Email:      user.Email,
		Role:       string(user.Role),
		ProfilePic: user.ProfilePic,
	}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Email == "" || req.Password == "" || req.FullName == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		role = model.RoleMentee
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeError(w, http.StatusBadRequest, "user_exists")
			return
		}
		log.Printf("signup insert failed: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.TokenTTL, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.setAuthCookie(w, token)
	writeJSON(w, http.StatusCreated, map[string]any{"user": summarize(user)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Same response as a wrong password: do not reveal which one it was.
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.TokenTTL, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.setAuthCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{"user": summarize(user)})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.clearAuthCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"user": summarize(*user)})
}

// Cookie transport. Cross-site production deployments need SameSite=None,
// which browsers reject without Secure; same-site development keeps Lax over
// plain http. Driven by the environment, never hardcoded.
func (s *Server) setAuthCookie(w http.ResponseWriter, token string) {
	sameSite := http.SameSiteLaxMode
	if s.cfg.Production() {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.TokenTTL / time.Second),
		HttpOnly: true,
		Secure:   s.cfg.Production(),
		SameSite: sameSite,
	})
}

func (s *Server) clearAuthCookie(w http.ResponseWriter) {
	sameSite := http.SameSiteLaxMode
	if s.cfg.Production() {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Production(),
		SameSite: sameSite,
	})
}

// Profile

type updateProfileRequest struct {
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	if req.FullName == "" && req.ProfilePic == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	updated, err := s.store.UpdateUserProfile(r.Context(), user.ID, req.FullName, req.ProfilePic, time.Now().UTC())
	if err != nil {
		log.Printf("profile update failed user=%s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if s.cache != nil {
		s.cache.Invalidate(r.Context(), user.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": summarize(updated)})
}

// Connections

type connectionSummary struct {
	ID        string `json:"id"`
	MentorID  string `json:"mentorId"`
	MenteeID  string `json:"menteeId"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
}

type requestConnectionRequest struct {
	MentorID string `json:"mentorId"`
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())
	conns, err := s.store.ListConnectionsForUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	out := make([]connectionSummary, 0, len(conns))
	for _, conn := range conns {
		out = append(out, connectionSummary{
			ID:        conn.ID,
			MentorID:  conn.MentorID,
			MenteeID:  conn.MenteeID,
			Status:    string(conn.Status),
			CreatedAt: conn.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": out})
}

func (s *Server) handleRequestConnection(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())

	var req requestConnectionRequest
	if err := decodeJSON(r, &req); err != nil || req.MentorID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	mentor, err := s.users.GetUserByID(r.Context(), req.MentorID)
	if err != nil || mentor.Role != model.RoleMentor {
		writeError(w, http.StatusBadRequest, "invalid_mentor")
		return
	}

	now := time.Now().UTC()
	conn := model.Connection{
		ID:        uuid.NewString(),
		MentorID:  req.MentorID,
		MenteeID:  user.ID,
		Status:    model.ConnectionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConnection(r.Context(), conn); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": conn.ID, "status": string(conn.Status)})
}

func (s *Server) handleAcceptConnection(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())
	connectionID := chi.URLParam(r, "connectionId")

	conn, err := s.store.GetConnectionByID(r.Context(), connectionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if conn.MentorID != user.ID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	// Only a pending request can be accepted; a rejected or already accepted
	// pairing keeps its status.
	if conn.Status != model.ConnectionPending {
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}
	if err := s.store.UpdateConnectionStatus(r.Context(), connectionID, model.ConnectionAccepted, time.Now().UTC()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": connectionID, "status": string(model.ConnectionAccepted)})
}

// Messaging

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())

	var req chat.SendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	msg, err := s.pipeline.Send(r.Context(), user.ID, req)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrValidation):
			writeError(w, http.StatusBadRequest, "invalid_request")
		case errors.Is(err, chat.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden")
		default:
			log.Printf("send message failed sender=%s: %v", user.ID, err)
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": chat.MessageEvent(msg)})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())
	peerID := chi.URLParam(r, "userId")
	if peerID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	msgs, err := s.store.ListMessagesBetween(r.Context(), user.ID, peerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	out := make([]map[string]any, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, chat.MessageEvent(msg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

// WebSocket handshake. The socket upgrade is not a plain JSON request, so the
// token may also arrive as a ?token= query parameter; the cookie still works
// for browsers on the same site. Authentication happens before the upgrade:
// a rejected connection never touches the presence registry.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = extractToken(r)
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	user, err := s.resolveIdentity(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	if err := s.hub.Serve(w, r, user.ID); err != nil {
		log.Printf("websocket upgrade failed user=%s: %v", user.ID, err)
	}
}

// Helpers

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
