package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	auth "SmartMix/internal/auth"
	batch "SmartMix/internal/calc/batch"
	importer "SmartMix/internal/calc/importer"
	predict "SmartMix/internal/calc/predict"
	recommend "SmartMix/internal/calc/recommend"
	report "SmartMix/internal/calc/report"
	"SmartMix/internal/config"
	"SmartMix/internal/dataset"
	feedback "SmartMix/internal/feedback"
	"SmartMix/internal/logging"
	"SmartMix/internal/model"
	repo "SmartMix/internal/repo"
	"SmartMix/internal/sink"
)

var wg sync.WaitGroup

// Deps are the long-lived objects the routes share.
type Deps struct {
	Config   config.Config
	Auth     *auth.Authenv
	Pipeline *predict.Pipeline
	Dataset  *dataset.Dataset
	Sink     *sink.Client
	// Feedback is nil when no database is configured.
	Feedback repo.Repository
}

func CORS(mux *mux.Router, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

func HandleList(mux *mux.Router, d Deps) {
	cfg := d.Config

	mux.Handle("/metrics", promhttp.Handler()).Methods("GET")
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":        "ok",
			"dataset_rows":  d.Dataset.Len(),
			"sync_enabled":  d.Sink.Enabled(),
			"feedback_open": d.Feedback != nil,
		})
	}).Methods("GET")

	limiter := auth.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)

	api := mux.PathPrefix("/api").Subrouter()
	api.Use(limiter.LimitMiddleware)

	api.HandleFunc("/login", d.Auth.AuthHandler).Methods("POST")
	api.HandleFunc("/logout", d.Auth.LogoutHandler).Methods("POST")

	secureApi := api.PathPrefix("/user").Subrouter()
	secureApi.Use(d.Auth.AuthMiddleware)

	predictH := &predict.Handler{Pipeline: d.Pipeline, Sink: d.Sink}
	batchH := &batch.Handler{Pipeline: d.Pipeline}
	importH := &importer.Handler{Pipeline: d.Pipeline}
	reportH := &report.Handler{Pipeline: d.Pipeline}
	optimizerH := &recommend.Handler{
		Dataset:   d.Dataset,
		Tolerance: cfg.Recommender.Tolerance,
		K:         cfg.Recommender.K,
	}

	secureApi.HandleFunc("/tools/predict/calc", predictH.Calc).Methods("POST")
	secureApi.HandleFunc("/tools/predict/batch", batchH.Calc).Methods("POST")
	secureApi.HandleFunc("/tools/predict/import", importH.Import).Methods("POST")
	secureApi.HandleFunc("/tools/report/pdf", reportH.Generate).Methods("POST")
	secureApi.HandleFunc("/tools/optimizer/calc", optimizerH.Calc).Methods("POST")
	secureApi.HandleFunc("/tools/optimizer/best", optimizerH.Best).Methods("POST")

	if d.Feedback != nil {
		feedbackH := &feedback.FeedbackHandler{Repo: d.Feedback}
		secureApi.HandleFunc("/feedback", feedbackH.Create).Methods("POST")
		secureApi.HandleFunc("/feedback", feedbackH.List).Methods("GET")
	}

	authFileServer := http.FileServer(http.Dir("./static/auth"))
	mux.PathPrefix("/auth/").
		Handler(d.Auth.RedirectIfLoggedIn(http.StripPrefix("/auth", authFileServer)))
	mainFileServer := http.FileServer(http.Dir(cfg.Server.StaticDir))
	mux.PathPrefix("/").
		Handler(mainFileServer)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	authEnv, err := auth.NewAuthenv(cfg.Auth.TokenKey, cfg.Auth.AccessKeyHash, cfg.Auth.AccessKey, cfg.Auth.SessionTTL)
	if err != nil {
		logging.Fatal().Err(err).Msg("auth setup")
	}
	authEnv.Secure = cfg.Server.TLSCert != ""

	assets, err := model.Load(cfg.Assets.ModelOptions())
	if err != nil {
		logging.Fatal().Err(err).Msg("load model assets")
	}
	defer assets.Close()

	ds, err := dataset.Load(cfg.Assets.DatasetPath)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Assets.DatasetPath).Msg("load dataset")
	}
	lo, hi, _ := ds.StrengthRange()
	logging.Info().Int("rows", ds.Len()).Float64("cs28_min", lo).Float64("cs28_max", hi).Msg("dataset loaded")

	deps := Deps{
		Config:   cfg,
		Auth:     authEnv,
		Pipeline: predict.NewPipeline(assets, cfg.Fallbacks),
		Dataset:  ds,
		Sink: sink.NewClient(sink.Config{
			Endpoint:        cfg.Sync.Endpoint,
			Timeout:         cfg.Sync.Timeout,
			Fields:          cfg.Sync.Fields,
			BreakerFailures: cfg.Sync.BreakerFailures,
			BreakerCooldown: cfg.Sync.BreakerCooldown,
		}),
	}

	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = repo.InitDB(ctx, cfg.Database.URL)
		if err != nil {
			logging.Fatal().Err(err).Msg("database unavailable")
		}
		defer db.Close()
		feedbackRepo := repo.NewPostgresFeedbackDB(db)
		if err := feedbackRepo.EnsureSchema(ctx); err != nil {
			logging.Fatal().Err(err).Msg("feedback schema")
		}
		deps.Feedback = feedbackRepo
	} else {
		logging.Info().Msg("DATABASE_URL not set, feedback routes disabled")
	}

	mux := mux.NewRouter()
	HandleList(mux, deps)
	handler := CORS(mux, cfg.Server.AllowOrigin)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logging.Info().Str("addr", server.Addr).Bool("sync", deps.Sink.Enabled()).Msg("starting server")
		var err error
		if cfg.Server.TLSCert != "" && cfg.Server.TLSKey != "" {
			err = server.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutdown signal received, closing active connections")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown")
	}
	wg.Wait()
	logging.Info().Msg("server stopped")
}
