package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/bkovacevic/gymlog/internal/auth"
	"github.com/bkovacevic/gymlog/internal/config"
	"github.com/bkovacevic/gymlog/internal/db"
	"github.com/bkovacevic/gymlog/internal/gymlog"
	"github.com/bkovacevic/gymlog/internal/gymlog/sessions"
	"github.com/bkovacevic/gymlog/internal/gymlog/sets"
	"github.com/bkovacevic/gymlog/internal/gymlog/templates"
	"github.com/bkovacevic/gymlog/internal/instrumentation"
	"github.com/bkovacevic/gymlog/internal/middleware"
	"github.com/bkovacevic/gymlog/internal/users"
	"github.com/bkovacevic/gymlog/internal/web"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config *config.Config
	sqlDB  *sql.DB

	redisClient  *redis.Client
	authService  *auth.Service
	loginChecker *auth.LoginChecker
	cookies      *auth.CookieStore

	instr        *instrumentation.Instrumentation
	promRegistry *prometheus.Registry
}

type NewServerParams struct {
	Config               *config.Config
	SessionSigningSecret string
	RedisPassword        string
	VersionInfo          string
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	sqlDB, err := db.Open(ctx, params.Config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Migrate(sqlDB); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	// safer for serverless cold starts: seed on startup, not on first request
	if err := templates.NewRepo(sqlDB).SeedIfEmpty(ctx); err != nil {
		return nil, fmt.Errorf("seed templates: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	authService := auth.NewService(auth.DefaultTTL, rdb)
	go func() {
		for range time.Tick(time.Hour * 8) {
			authService.ScanAndClean(ctx)
		}
	}()

	promRegistry := instrumentation.SetupPrometheus()
	instr := instrumentation.NewInstrumentationWithRegisterer("gymlog", "backend", promRegistry)
	instr.GaugeLifeSignal.Set(0)

	return &Server{
		config:      params.Config,
		sqlDB:       sqlDB,
		versionInfo: params.VersionInfo,

		redisClient:  rdb,
		authService:  authService,
		loginChecker: auth.NewLoginChecker(auth.DefaultTTL, rdb),
		cookies: auth.NewCookieStore(
			[]byte(params.SessionSigningSecret),
			params.Config.CookieSecure,
		),

		instr:        instr,
		promRegistry: promRegistry,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("gymlog-router"))

	pages := web.Load()

	usersRepo := users.NewRepo(s.sqlDB)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(usersService, s.authService, s.cookies, pages)

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	loginRateLimit := middleware.RateLimit(
		reqRateLimiter,
		"login",
		s.config.LoginRateLimitAllowedPerMin,
		s.instr,
	)

	r.HandleFunc("/login", usersHandler.HandleLoginPage).Methods("GET").Name("login-page")
	r.Handle("/login", loginRateLimit(http.HandlerFunc(usersHandler.HandleLogin))).Methods("POST").Name("login")
	r.HandleFunc("/register", usersHandler.HandleRegisterPage).Methods("GET").Name("register-page")
	r.Handle("/register", loginRateLimit(http.HandlerFunc(usersHandler.HandleRegister))).Methods("POST").Name("register")
	r.HandleFunc("/logout", usersHandler.HandleLogout).Methods("POST").Name("logout")

	templatesRepo := templates.NewRepo(s.sqlDB)
	gymlogHandler := gymlog.NewHandler(
		templatesRepo,
		sessions.NewRepo(s.sqlDB),
		sets.NewRepo(s.sqlDB),
		sets.NewAnalyzer(s.sqlDB),
		pages,
		s.instr,
		s.sqlDB,
		s.config.DBPath,
	)
	r.HandleFunc("/", gymlogHandler.HandleHome).Methods("GET").Name("home")
	r.HandleFunc("/log", gymlogHandler.HandleLog).Methods("POST").Name("log-set")
	r.HandleFunc("/session/done", gymlogHandler.HandleSessionDone).Methods("POST").Name("session-done")
	r.HandleFunc("/admin/db_info", gymlogHandler.HandleDBInfo).Methods("GET").Name("db-info")

	templatesHandler := templates.NewHandler(templatesRepo)
	r.HandleFunc("/template/add_exercise", templatesHandler.HandleAddExercise).Methods("POST").Name("add-exercise")
	r.HandleFunc("/template/remove_exercise", templatesHandler.HandleRemoveExercise).Methods("POST").Name("remove-exercise")

	authMiddleware := middleware.NewAuthMiddlewareHandler(
		s.cookies,
		s.loginChecker,
		usersService,
	)

	r.Use(middleware.PanicRecovery(s.instr))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.instr))
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("gymlog service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.instr.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.instr.GaugeLifeSignal.Set(0)

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.sqlDB != nil {
		log.Debugln("closing db ...")
		if err := s.sqlDB.Close(); err != nil {
			log.Errorf("failed to close db: %s", err)
		}
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown http server")
		}
	}
	log.Warnln("server shut down")

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.instr.GaugeRequests.Add(1)
	case http.StateClosed:
		s.instr.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
