package gymlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bkovacevic/gymlog/internal/auth"
	"github.com/bkovacevic/gymlog/internal/db"
	"github.com/bkovacevic/gymlog/internal/gymlog/sessions"
	"github.com/bkovacevic/gymlog/internal/gymlog/sets"
	"github.com/bkovacevic/gymlog/internal/gymlog/templates"
	"github.com/bkovacevic/gymlog/internal/instrumentation"
	"github.com/bkovacevic/gymlog/internal/telemetry/tracing"
	"github.com/bkovacevic/gymlog/internal/web"
	"github.com/bkovacevic/gymlog/pkg"

	log "github.com/sirupsen/logrus"
)

const sessionSetsLimit = 200

type Handler struct {
	templatesRepo *templates.Repo
	sessionsRepo  *sessions.Repo
	setsRepo      *sets.Repo
	analyzer      *sets.Analyzer
	pages         *web.Templates
	instr         *instrumentation.Instrumentation
	sqlDB         *sql.DB
	dbPath        string
}

func NewHandler(
	templatesRepo *templates.Repo,
	sessionsRepo *sessions.Repo,
	setsRepo *sets.Repo,
	analyzer *sets.Analyzer,
	pages *web.Templates,
	instr *instrumentation.Instrumentation,
	sqlDB *sql.DB,
	dbPath string,
) *Handler {
	return &Handler{
		templatesRepo: templatesRepo,
		sessionsRepo:  sessionsRepo,
		setsRepo:      setsRepo,
		analyzer:      analyzer,
		pages:         pages,
		instr:         instr,
		sqlDB:         sqlDB,
		dbPath:        dbPath,
	}
}

type homePageData struct {
	UserEmail        string
	IsAdmin          bool
	Templates        []templates.Template
	SelectedTemplate *templates.Template
	Exercises        []templates.Exercise
	Last             map[string]sets.Stat
	PR               map[string]sets.Stat
	Today            string
	Edit             bool
	SessionSets      []sets.Entry
}

// HandleHome renders the logging page: template tabs, one form per exercise
// with last set and PR next to it, and the sets of today's open session.
func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymlog.home")
	defer span.End()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	data := homePageData{
		UserEmail: identity.Email,
		IsAdmin:   identity.IsAdmin,
		Today:     sessions.DayOf(time.Now()),
		Last:      map[string]sets.Stat{},
		PR:        map[string]sets.Stat{},
	}

	list, err := h.templatesRepo.List(ctx)
	if err != nil {
		log.Errorf("home, list templates: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	data.Templates = list

	selectedID, _ := strconv.Atoi(r.URL.Query().Get("t"))
	if selectedID == 0 && len(list) > 0 {
		selectedID = list[0].ID
	}

	if selectedID != 0 {
		selected, err := h.templatesRepo.Get(ctx, selectedID)
		if err != nil && !errors.Is(err, templates.ErrTemplateNotFound) {
			log.Errorf("home, get template %d: %s", selectedID, err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		data.SelectedTemplate = selected
	}

	// template editing is an admin affair
	data.Edit = identity.IsAdmin && r.URL.Query().Get("edit") == "1"

	if data.SelectedTemplate != nil {
		if err := h.fillTemplateData(ctx, identity.UserID, &data); err != nil {
			log.Errorf("home, template data: %s", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", pkg.ContentType.HTML)
	if err := h.pages.ExecuteTemplate(w, "home.html", data); err != nil {
		log.Errorf("home, render: %s", err)
	}
}

func (h *Handler) fillTemplateData(ctx context.Context, userID int, data *homePageData) error {
	exercises, err := h.templatesRepo.ExercisesFor(ctx, data.SelectedTemplate.ID)
	if err != nil {
		return fmt.Errorf("exercises: %w", err)
	}
	data.Exercises = exercises

	exerciseNames := make([]string, 0, len(exercises))
	for _, e := range exercises {
		exerciseNames = append(exerciseNames, e.Name)
	}

	if data.Last, err = h.analyzer.LastSets(ctx, userID, exerciseNames); err != nil {
		return fmt.Errorf("last sets: %w", err)
	}
	if data.PR, err = h.analyzer.PersonalRecords(ctx, userID, exerciseNames); err != nil {
		return fmt.Errorf("personal records: %w", err)
	}

	session, err := h.sessionsRepo.GetActive(ctx, userID, data.SelectedTemplate.ID, data.Today)
	if errors.Is(err, sessions.ErrNoActiveSession) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("active session: %w", err)
	}

	if data.SessionSets, err = h.setsRepo.ForSession(ctx, session.ID, sessionSetsLimit); err != nil {
		return fmt.Errorf("session sets: %w", err)
	}

	return nil
}

// HandleLog stores one set and redirects back to the logging page. Values
// outside the guardrails are silently discarded, the redirect happens
// either way.
func (h *Handler) HandleLog(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymlog.log")
	defer span.End()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
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
	redirectURL := fmt.Sprintf("/?t=%d", templateID)

	workout := r.PostFormValue("workout")
	exercise := r.PostFormValue("exercise")
	weight, errWeight := strconv.ParseFloat(r.PostFormValue("weight"), 64)
	reps, errReps := strconv.Atoi(r.PostFormValue("reps"))

	// basic guardrails: nonsense input is dropped, not reported
	if errWeight != nil || errReps != nil || exercise == "" || !sets.InRange(weight, reps) {
		http.Redirect(w, r, redirectURL, http.StatusSeeOther)
		return
	}

	// a set logged against a vanished template is dropped as well
	if _, err := h.templatesRepo.Get(ctx, templateID); err != nil {
		if errors.Is(err, templates.ErrTemplateNotFound) {
			http.Redirect(w, r, redirectURL, http.StatusSeeOther)
			return
		}
		log.Errorf("log set, get template %d: %s", templateID, err)
		http.Error(w, "failed to save set, check server logs", http.StatusInternalServerError)
		return
	}

	day := sessions.DayOf(time.Now())

	_, errActive := h.sessionsRepo.GetActive(ctx, identity.UserID, templateID, day)
	sessionID, err := h.sessionsRepo.EnsureActive(ctx, identity.UserID, templateID, workout, day)
	if err != nil {
		log.Errorf("log set, ensure session: %s", err)
		http.Error(w, "failed to save set, check server logs", http.StatusInternalServerError)
		return
	}
	if errors.Is(errActive, sessions.ErrNoActiveSession) {
		h.instr.CounterSessionsOpened.Inc()
	}

	if _, err := h.setsRepo.Add(ctx, sets.Entry{
		UserID:    identity.UserID,
		SessionID: sessionID,
		Day:       day,
		Workout:   workout,
		Exercise:  exercise,
		Weight:    weight,
		Reps:      reps,
		CreatedAt: time.Now(),
	}); err != nil {
		log.Errorf("log set, save entry: %s", err)
		http.Error(w, "failed to save set, check server logs", http.StatusInternalServerError)
		return
	}

	h.instr.CounterSetsLogged.Inc()
	http.Redirect(w, r, redirectURL, http.StatusSeeOther)
}

// HandleSessionDone closes today's open session for a template. No open
// session is a no-op, the user lands back on the logging page either way.
func (h *Handler) HandleSessionDone(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymlog.sessionDone")
	defer span.End()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
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

	day := sessions.DayOf(time.Now())
	if _, err := h.sessionsRepo.CloseActive(ctx, identity.UserID, templateID, day); err != nil {
		if !errors.Is(err, sessions.ErrNoActiveSession) {
			log.Errorf("close session: %s", err)
			http.Error(w, "failed to close session, check server logs", http.StatusInternalServerError)
			return
		}
	} else {
		h.instr.CounterSessionsClosed.Inc()
	}

	http.Redirect(w, r, fmt.Sprintf("/?t=%d", templateID), http.StatusSeeOther)
}

type dbInfo struct {
	DBPath string         `json:"db_path"`
	Exists bool           `json:"exists"`
	Size   int64          `json:"size"`
	Counts map[string]int `json:"counts"`
}

// HandleDBInfo is a quick admin endpoint to verify which DB file is used
// and basic table counts.
func (h *Handler) HandleDBInfo(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymlog.dbInfo")
	defer span.End()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !identity.IsAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	info := dbInfo{
		DBPath: h.dbPath,
		Size:   db.Size(h.dbPath),
		Counts: map[string]int{},
	}
	info.Exists = info.Size >= 0

	for _, table := range []string{
		"users", "workout_templates", "exercises",
		"template_exercises", "workout_sessions", "set_entries",
	} {
		var count int
		if err := h.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+`;`).Scan(&count); err != nil {
			log.Errorf("db info, count %s: %s", table, err)
			count = -1
		}
		info.Counts[table] = count
	}

	infoJSON, err := json.Marshal(info)
	if err != nil {
		log.Errorf("db info, marshal: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, infoJSON, http.StatusOK)
}
