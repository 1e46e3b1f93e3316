package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Spok95/vetclinic-bot/internal/auth"
	"github.com/Spok95/vetclinic-bot/internal/domain/announcements"
	"github.com/Spok95/vetclinic-bot/internal/domain/users"
)

const maxBodyBytes = 64 << 10

type Exchanger interface {
	Exchange(ctx context.Context, loginToken string) (string, *users.User, error)
}

type TokenParser interface {
	Parse(token, purpose string) (*auth.Claims, error)
}

type Resender interface {
	Resend(ctx context.Context, requestedBy *int64, ids ...int64) (int, error)
}

type Handlers struct {
	log       *slog.Logger
	exchanger Exchanger
	tokens    TokenParser
	resender  Resender
	validate  *validator.Validate
}

func NewHandlers(log *slog.Logger, exchanger Exchanger, tokens TokenParser, resender Resender) *Handlers {
	return &Handlers{
		log: log, exchanger: exchanger, tokens: tokens, resender: resender,
		validate: validator.New(),
	}
}

type Routes struct {
	// WebhookPath пустой, если бот работает в режиме polling.
	WebhookPath string
	Webhook     http.Handler
	StaticDir   string
}

func (h *Handlers) Mount(r chi.Router, rt Routes) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/telegram", h.telegramLogin)
		r.With(h.requireRole(users.RoleAdmin, users.RoleModerator)).
			Post("/announcements/resend", h.resendAnnouncements)
	})

	if rt.WebhookPath != "" && rt.Webhook != nil {
		r.Handle(rt.WebhookPath, rt.Webhook)
	}

	if rt.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(rt.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}
}

type loginRequest struct {
	Token string `json:"token" validate:"required"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
	Role        string `json:"role"`
	FullName    string `json:"full_name"`
}

// POST /api/auth/telegram: обмен одноразового токена из бота на токен доступа.
func (h *Handlers) telegramLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	access, u, err := h.exchanger.Exchange(r.Context(), req.Token)
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenUsed):
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case err != nil:
		h.log.Error("token exchange failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: access,
		UserID:      u.ID,
		Role:        string(u.Role),
		FullName:    u.FullName(),
	})
}

type resendRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,max=100,dive,gt=0"`
}

// POST /api/announcements/resend: повторная рассылка существующих объявлений.
func (h *Handlers) resendAnnouncements(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !h.decode(w, r, &req) {
		return
	}
	c := claimsFrom(r.Context())
	uid, _ := c.UserID()

	n, err := h.resender.Resend(r.Context(), &uid, req.IDs...)
	switch {
	case errors.Is(err, announcements.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.log.Error("resend failed", "ids", req.IDs, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.log.Info("resend queued", "ids", req.IDs, "user_id", uid, "jobs", n)
	writeJSON(w, http.StatusAccepted, map[string]int{"jobs": n})
}

type claimsKey struct{}

func claimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	if c == nil {
		return &auth.Claims{}
	}
	return c
}

// requireRole проверяет Bearer-токен доступа и роль из него.
func (h *Handlers) requireRole(roles ...users.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			c, err := h.tokens.Parse(raw, auth.PurposeAccess)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			allowed := false
			for _, role := range roles {
				if c.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, c)))
		})
	}
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed json")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
