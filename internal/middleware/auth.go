package middleware

import (
	"context"
	"net/http"

	"github.com/bkovacevic/gymlog/internal/auth"
	"github.com/bkovacevic/gymlog/internal/telemetry/tracing"
	"github.com/bkovacevic/gymlog/internal/users"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

type loginChecker interface {
	IsLogged(ctx context.Context, token string) (userID int, logged bool, err error)
}

type userGetter interface {
	Get(ctx context.Context, id int) (*users.User, error)
}

type AuthMiddlewareHandler struct {
	cookies      *auth.CookieStore
	loginChecker loginChecker
	userGetter   userGetter
	allowedPaths map[string]bool
}

func NewAuthMiddlewareHandler(
	cookies *auth.CookieStore,
	loginChecker loginChecker,
	userGetter userGetter,
) *AuthMiddlewareHandler {
	return &AuthMiddlewareHandler{
		cookies:      cookies,
		loginChecker: loginChecker,
		userGetter:   userGetter,
		allowedPaths: map[string]bool{
			"/login":    true,
			"/register": true,
		},
	}
}

// AuthCheck resolves the session cookie to a user and puts the identity in
// the request context. Everything except login and registration requires a
// logged-in user: browsers get redirected to the login page, form posts get
// a plain 401.
func (h *AuthMiddlewareHandler) AuthCheck() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.GlobalTracer.Start(r.Context(), "middleware.auth")
			defer span.End()

			if h.allowedPaths[r.URL.Path] {
				span.SetStatus(codes.Ok, "ok")
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token := h.cookies.Token(r)
			if token == "" {
				span.SetStatus(codes.Error, "no-token")
				h.reject(w, r)
				return
			}

			userID, logged, err := h.loginChecker.IsLogged(ctx, token)
			if err != nil {
				log.Tracef("[auth middleware] [path: %s] failed to check token: %s", r.URL.Path, err)
				h.reject(w, r)
				return
			}
			if !logged {
				span.SetStatus(codes.Error, "not-logged")
				h.reject(w, r)
				return
			}

			user, err := h.userGetter.Get(ctx, userID)
			if err != nil {
				// session points at a user that no longer exists
				log.Errorf("[auth middleware] get user %d: %s", userID, err)
				h.reject(w, r)
				return
			}

			ctx = auth.ContextWithIdentity(ctx, auth.Identity{
				UserID:  user.ID,
				Email:   user.Email,
				IsAdmin: user.IsAdmin,
			})

			span.SetStatus(codes.Ok, "ok")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (h *AuthMiddlewareHandler) reject(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
