package users

import (
	"errors"
	"net/http"
	"time"

	"github.com/bkovacevic/gymlog/internal/auth"
	"github.com/bkovacevic/gymlog/internal/telemetry/tracing"
	"github.com/bkovacevic/gymlog/internal/web"
	"github.com/bkovacevic/gymlog/pkg"

	log "github.com/sirupsen/logrus"
)

type Handler struct {
	service     *Service
	authService *auth.Service
	cookies     *auth.CookieStore
	templates   *web.Templates
}

func NewHandler(
	service *Service,
	authService *auth.Service,
	cookies *auth.CookieStore,
	templates *web.Templates,
) *Handler {
	return &Handler{
		service:     service,
		authService: authService,
		cookies:     cookies,
		templates:   templates,
	}
}

type authPageData struct {
	UserEmail string
	Error     string
}

func (h *Handler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderAuthPage(w, "login.html", "", http.StatusOK)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.login")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		h.renderAuthPage(w, "login.html", "invalid request", http.StatusBadRequest)
		return
	}

	user, err := h.service.Authenticate(ctx, r.PostFormValue("email"), r.PostFormValue("password"))
	if errors.Is(err, ErrInvalidCredentials) {
		h.renderAuthPage(w, "login.html", "wrong email or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Errorf("login: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.startSession(w, r, user)
}

func (h *Handler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	h.renderAuthPage(w, "register.html", "", http.StatusOK)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.register")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		h.renderAuthPage(w, "register.html", "invalid request", http.StatusBadRequest)
		return
	}

	user, err := h.service.Register(ctx, r.PostFormValue("email"), r.PostFormValue("password"))
	switch {
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrPasswordTooShort),
		errors.Is(err, ErrEmailTaken):
		h.renderAuthPage(w, "register.html", err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Errorf("register: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// fresh accounts are logged in right away
	h.startSession(w, r, user)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.logout")
	defer span.End()

	if token := h.cookies.Token(r); token != "" {
		if err := h.authService.Logout(ctx, token); err != nil {
			log.Errorf("logout: %s", err)
		}
	}

	if err := h.cookies.Clear(w, r); err != nil {
		log.Errorf("logout, clear cookie: %s", err)
	}

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *User) {
	token, err := h.authService.Login(r.Context(), user.ID, time.Now())
	if err != nil {
		log.Errorf("start session for user %d: %s", user.ID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.cookies.SetToken(w, r, token); err != nil {
		log.Errorf("start session for user %d, set cookie: %s", user.ID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) renderAuthPage(w http.ResponseWriter, page, errMessage string, statusCode int) {
	w.Header().Set("Content-Type", pkg.ContentType.HTML)
	w.WriteHeader(statusCode)
	if err := h.templates.ExecuteTemplate(w, page, authPageData{Error: errMessage}); err != nil {
		log.Errorf("render %s: %s", page, err)
	}
}
