package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	staticassets "aitown/internal/adapter/assets/static"
	httpadapter "aitown/internal/adapter/http"
	"aitown/internal/adapter/llm/gemini"
	"aitown/internal/adapter/llm/scripted"
	metricsinmem "aitown/internal/adapter/metrics/inmemory"
	"aitown/internal/adapter/observer"
	"aitown/internal/adapter/observer/sqliteindex"
	"aitown/internal/adapter/observer/steplog"
	wsobserver "aitown/internal/adapter/observer/ws"
	gormrepo "aitown/internal/adapter/repo/gorm"
	memstore "aitown/internal/adapter/repo/memory"
	"aitown/internal/adapter/scheduler/inprocess"
	"aitown/internal/app/agentops"
	"aitown/internal/app/engine"
	"aitown/internal/app/input"
	"aitown/internal/app/observe"
	"aitown/internal/app/ports"
	"aitown/internal/app/replay"
	"aitown/internal/domain/game"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
)

type config struct {
	dbDSN            string
	httpAddr         string
	observerAddr     string
	dataDir          string
	assetsRoot       string
	worldID          string
	worldSeed        int
	tuningPath       string
	logLevel         string
	llmAPIKey        string
	llmModel         string
	embedModel       string
	maxConcurrentOps int
	migrationsDir    string
	corsOrigins      []string
}

func loadConfig() config {
	return config{
		dbDSN:            stringEnv("TOWN_DB_DSN", ""),
		httpAddr:         stringEnv("TOWN_HTTP_ADDR", ":8080"),
		observerAddr:     optionalEnv("TOWN_OBSERVER_ADDR", ":8081"),
		dataDir:          stringEnv("TOWN_DATA_DIR", "./data"),
		assetsRoot:       stringEnv("TOWN_ASSETS_ROOT", "./assets"),
		worldID:          stringEnv("TOWN_WORLD_ID", "default"),
		worldSeed:        intEnv("TOWN_WORLD_SEED", 1),
		tuningPath:       stringEnv("TOWN_TUNING", ""),
		logLevel:         stringEnv("TOWN_LOG_LEVEL", "info"),
		llmAPIKey:        stringEnv("TOWN_LLM_API_KEY", ""),
		llmModel:         stringEnv("TOWN_LLM_MODEL", ""),
		embedModel:       stringEnv("TOWN_EMBED_MODEL", ""),
		maxConcurrentOps: intEnv("TOWN_MAX_CONCURRENT_OPS", 8),
		migrationsDir:    stringEnv("TOWN_MIGRATIONS_DIR", "./db/migrations"),
		corsOrigins:      listEnv("TOWN_CORS_ORIGINS"),
	}
}

func main() {
	cfg := loadConfig()
	hlog.SetLevel(parseLogLevel(cfg.logLevel))
	ctx := context.Background()

	tuning, err := game.LoadTuning(cfg.tuningPath)
	if err != nil {
		log.Fatalf("load tuning: %v", err)
	}
	repos, err := buildRepos(ctx, cfg)
	if err != nil {
		log.Fatalf("build repositories: %v", err)
	}
	text, embedder, err := buildLLM(ctx, cfg)
	if err != nil {
		log.Fatalf("build llm client: %v", err)
	}
	obs, err := buildObservers(cfg)
	if err != nil {
		log.Fatalf("build observers: %v", err)
	}
	defer obs.close()

	sched := inprocess.New(inprocess.DefaultConfig())
	kpiRecorder := metricsinmem.NewRecorder()

	// The dispatcher submits finishing inputs back into the engine it is
	// part of, so it sees the engine through a pointer filled in below.
	var euc engine.UseCase
	dispatcher := agentops.NewDispatcher(agentops.Deps{
		Inputs:   lateEngine{uc: &euc},
		State:    repos.state,
		Messages: repos.state,
		Memories: repos.memories,
		Text:     text,
		Embedder: embedder,
		Tuning:   tuning,
	}, int64(cfg.maxConcurrentOps))
	euc = engine.UseCase{
		TxManager:  repos.tx,
		Engines:    repos.engines,
		Inputs:     repos.inputs,
		State:      repos.state,
		Assets:     staticassets.Provider{Root: cfg.assetsRoot},
		Scheduler:  sched,
		Dispatcher: dispatcher,
		Observer:   obs.fanout,
		Metrics:    kpiRecorder,
		Tuning:     tuning,
		Now:        time.Now,
	}

	inputUC, err := input.NewUseCase(euc)
	if err != nil {
		log.Fatalf("build input use case: %v", err)
	}
	if err := ensureWorld(ctx, euc, cfg.worldID, int64(cfg.worldSeed)); err != nil {
		log.Fatalf("ensure world %s: %v", cfg.worldID, err)
	}
	if _, err := euc.Resume(ctx); err != nil {
		log.Fatalf("resume engines: %v", err)
	}

	h := httpadapter.Handler{
		EngineUC: euc,
		InputUC:  inputUC,
		ObserveUC: observe.UseCase{
			Engines:  repos.engines,
			State:    repos.state,
			Messages: repos.state,
			Tuning:   tuning,
			Now:      func() int64 { return time.Now().UnixMilli() },
		},
		ReplayUC:    replay.UseCase{State: repos.state},
		KPI:         kpiRecorder,
		CORSOrigins: cfg.corsOrigins,
	}
	if obs.index != nil {
		h.Steps = obs.index
	}

	var observerSrv *http.Server
	if cfg.observerAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", obs.hub.Handler())
		observerSrv = &http.Server{Addr: cfg.observerAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := observerSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				hlog.Errorf("observer server: %v", err)
			}
		}()
		hlog.Infof("observer websocket listening on %s/ws", cfg.observerAddr)
	}

	s := server.Default(server.WithHostPorts(cfg.httpAddr))
	h.RegisterRoutes(s)

	log.Printf("aitown server listening on %s (world: %s)", cfg.httpAddr, cfg.worldID)
	s.Spin()

	sched.Close()
	dispatcher.Wait()
	if observerSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = observerSrv.Shutdown(shutdownCtx)
	}
}

// lateEngine forwards to the engine once it is fully assembled.
type lateEngine struct {
	uc *engine.UseCase
}

func (l lateEngine) InsertInput(ctx context.Context, req engine.InsertInputRequest) (engine.InsertInputResponse, error) {
	return l.uc.InsertInput(ctx, req)
}

type stateStore interface {
	ports.WorldStateRepository
	ports.MessageRepository
}

type repoSet struct {
	tx       ports.TxManager
	engines  ports.EngineRepository
	inputs   ports.InputRepository
	state    stateStore
	memories ports.MemoryRepository
}

func buildRepos(ctx context.Context, cfg config) (repoSet, error) {
	if cfg.dbDSN == "" {
		hlog.Warnf("TOWN_DB_DSN not set, world state is kept in memory only")
		store := memstore.NewStore()
		return repoSet{
			tx:       memstore.NewTxManager(store),
			engines:  memstore.NewEngineRepo(store),
			inputs:   memstore.NewInputRepo(store),
			state:    memstore.NewWorldStateRepo(store),
			memories: memstore.NewMemoryRepo(store),
		}, nil
	}
	db, err := gormrepo.OpenPostgres(cfg.dbDSN)
	if err != nil {
		return repoSet{}, fmt.Errorf("open postgres: %w", err)
	}
	if err := gormrepo.ApplyMigrations(ctx, db, cfg.migrationsDir); err != nil {
		return repoSet{}, fmt.Errorf("apply migrations: %w", err)
	}
	return repoSet{
		tx:       gormrepo.NewTxManager(db),
		engines:  gormrepo.NewEngineRepo(db),
		inputs:   gormrepo.NewInputRepo(db),
		state:    gormrepo.NewWorldStateRepo(db),
		memories: gormrepo.NewMemoryRepo(db),
	}, nil
}

func buildLLM(ctx context.Context, cfg config) (ports.TextGenerator, ports.Embedder, error) {
	if cfg.llmAPIKey == "" {
		hlog.Infof("TOWN_LLM_API_KEY not set, agents use scripted replies")
		g := scripted.Generator{}
		return g, g, nil
	}
	c, err := gemini.New(ctx, gemini.Config{
		APIKey:     cfg.llmAPIKey,
		Model:      cfg.llmModel,
		EmbedModel: cfg.embedModel,
	})
	if err != nil {
		return nil, nil, err
	}
	return c, c, nil
}

type observers struct {
	fanout observer.Fanout
	hub    *wsobserver.Hub
	log    *steplog.Logger
	index  *sqliteindex.Index
}

func buildObservers(cfg config) (observers, error) {
	hub := wsobserver.NewHub()
	out := observers{hub: hub, fanout: observer.Fanout{hub}}
	if cfg.dataDir == "" {
		return out, nil
	}
	if err := os.MkdirAll(cfg.dataDir, 0o755); err != nil {
		return observers{}, fmt.Errorf("create data dir: %w", err)
	}
	out.log = steplog.NewLogger(cfg.dataDir)
	idx, err := sqliteindex.Open(filepath.Join(cfg.dataDir, "index.sqlite"))
	if err != nil {
		return observers{}, fmt.Errorf("open step index: %w", err)
	}
	out.index = idx
	out.fanout = append(out.fanout, out.log, out.index)
	return out, nil
}

func (o observers) close() {
	if o.log != nil {
		if err := o.log.Close(); err != nil {
			hlog.Warnf("close step log: %v", err)
		}
	}
	if o.index != nil {
		if err := o.index.Close(); err != nil {
			hlog.Warnf("close step index: %v", err)
		}
	}
}

// ensureWorld creates the configured world on first start.
func ensureWorld(ctx context.Context, euc engine.UseCase, worldID string, seed int64) error {
	_, err := euc.EngineStatus(ctx, worldID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return err
	}
	_, err = euc.CreateWorld(ctx, engine.CreateWorldRequest{WorldID: worldID, Seed: seed})
	return err
}

func parseLogLevel(s string) hlog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return hlog.LevelDebug
	case "warn", "warning":
		return hlog.LevelWarn
	case "error":
		return hlog.LevelError
	default:
		return hlog.LevelInfo
	}
}

func stringEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// optionalEnv differs from stringEnv in that an empty value is kept.
func optionalEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return strings.TrimSpace(v)
}

// listEnv splits a comma-separated variable, dropping empty entries.
func listEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func intEnv(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
