package templates

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bkovacevic/gymlog/internal/auth"
	"github.com/bkovacevic/gymlog/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
)

// Handler serves the template editing form posts. Only the admin gets past
// it, everyone else sees a 403.
type Handler struct {
	repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{
		repo: repo,
	}
}

func (h *Handler) HandleAddExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.templates.addExercise")
	defer span.End()

	identity, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	templateID, err := strconv.Atoi(r.PostFormValue("template_id"))
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	redirectURL := fmt.Sprintf("/?t=%d&edit=1", templateID)

	exerciseName := strings.TrimSpace(r.PostFormValue("exercise_name"))
	if exerciseName == "" {
		http.Redirect(w, r, redirectURL, http.StatusSeeOther)
		return
	}

	if err := h.repo.AddExercise(ctx, templateID, exerciseName); err != nil {
		log.Errorf("add exercise [admin %d]: %s", identity.UserID, err)
		http.Error(w, "failed to add exercise, check server logs", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusSeeOther)
}

func (h *Handler) HandleRemoveExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.templates.removeExercise")
	defer span.End()

	identity, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	templateID, err := strconv.Atoi(r.PostFormValue("template_id"))
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	redirectURL := fmt.Sprintf("/?t=%d&edit=1", templateID)

	exerciseID, err := strconv.Atoi(r.PostFormValue("exercise_id"))
	if err != nil {
		http.Redirect(w, r, redirectURL, http.StatusSeeOther)
		return
	}

	if err := h.repo.RemoveExercise(ctx, templateID, exerciseID); err != nil {
		log.Errorf("remove exercise [admin %d]: %s", identity.UserID, err)
		http.Error(w, "failed to remove exercise, check server logs", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusSeeOther)
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Identity{}, false
	}
	if !identity.IsAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return auth.Identity{}, false
	}
	return identity, true
}
