package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/config"
	dbRedis "github.com/kailas-cloud/vecrag/internal/db/redis"
	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/grade"
	logpkg "github.com/kailas-cloud/vecrag/internal/logger"
	"github.com/kailas-cloud/vecrag/internal/metrics"
	documentrepo "github.com/kailas-cloud/vecrag/internal/repository/document"
	"github.com/kailas-cloud/vecrag/internal/repository/embcache"
	searchrepo "github.com/kailas-cloud/vecrag/internal/repository/search"
	chiTransport "github.com/kailas-cloud/vecrag/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/vecrag/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/vecrag/internal/usecase/embedding"
	gradeuc "github.com/kailas-cloud/vecrag/internal/usecase/grade"
	healthuc "github.com/kailas-cloud/vecrag/internal/usecase/health"
	"github.com/kailas-cloud/vecrag/internal/usecase/orchestrator"
	"github.com/kailas-cloud/vecrag/internal/usecase/partition"
	"github.com/kailas-cloud/vecrag/internal/usecase/rerank"
	routeuc "github.com/kailas-cloud/vecrag/internal/usecase/route"
	traceuc "github.com/kailas-cloud/vecrag/internal/usecase/trace"
	"github.com/kailas-cloud/vecrag/internal/version"
)

const defaultEmbeddingDimensions = 1536

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(logpkg.Options{Env: env, Level: cfg.Logging.Level, Version: version.String()})
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting vecrag API server",
		zap.String("commit", version.Commit),
		zap.String("built", version.Date),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("rerank_mode", cfg.Rerank.Mode),
	)

	metrics.Register()

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	dims := cfg.LLM.EmbeddingDimensions
	if dims <= 0 {
		dims = defaultEmbeddingDimensions
	}

	// Documents and queries share the cached, instrumented chain; only queries carry the instruction.
	docEmbedder := buildEmbedder(cfg, dims, store, logger)
	queryEmbedder := domain.WithQueryInstruction(docEmbedder, cfg.LLM.QueryInstruction)
	chat := embeddinguc.NewInstrumentedChat(
		openaiTransport.NewChatModel(&openaiTransport.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.ChatModel,
			Temperature: cfg.LLM.Temperature,
			Logger:      logger,
		}),
		cfg.LLM.ChatModel, logger,
	)
	logger.Info("Model clients created",
		zap.String("embedding_model", cfg.LLM.EmbeddingModel),
		zap.Int("dimensions", dims),
		zap.String("chat_model", cfg.LLM.ChatModel),
	)

	docPrefix := cfg.Database.KeyPrefix + "doc:"
	docRepo := documentrepo.New(store, cfg.Database.IndexName, docPrefix)
	if err := docRepo.EnsureIndex(ctx, dims); err != nil {
		logger.Fatal("Failed to ensure corpus index", zap.Error(err))
	}
	searchRepo := searchrepo.New(store, queryEmbedder, cfg.Database.IndexName, docPrefix)

	assigner, err := partition.New(cfg.Partition.Count, cfg.Partition.Algorithm, logger)
	if err != nil {
		logger.Fatal("Failed to create partition assigner", zap.Error(err))
	}

	scorer, err := rerank.New(rerank.Config{
		Mode:         cfg.Rerank.Mode,
		CacheSize:    cfg.Rerank.CacheSize,
		CacheTTL:     time.Duration(cfg.Rerank.CacheTTLSec) * time.Second,
		PoolSize:     cfg.Rerank.PoolSize,
		BatchTimeout: time.Duration(cfg.Rerank.BatchTimeoutMs) * time.Millisecond,
	}, docEmbedder, chat, logger)
	if err != nil {
		logger.Fatal("Failed to create document scorer", zap.Error(err))
	}
	defer scorer.Close()

	grader, err := gradeuc.New(scorer, grade.Thresholds{
		Correct:   cfg.Grading.CorrectThreshold,
		Incorrect: cfg.Grading.IncorrectThreshold,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create grader", zap.Error(err))
	}

	traces := traceuc.New(traceuc.Config{
		Enabled:   cfg.Trace.IsEnabled(),
		CacheSize: cfg.Trace.CacheSize,
		TTL:       time.Duration(cfg.Trace.TTLSec) * time.Second,
	}, logger)

	orch, err := orchestrator.New(orchestrator.Config{
		MaxIterations:             cfg.Orchestrator.MaxIterations,
		ConfidenceThreshold:       cfg.Orchestrator.ConfidenceThreshold,
		TopK:                      cfg.Orchestrator.TopK,
		FallbackConsumesIteration: cfg.Orchestrator.FallbackConsumesIteration(),
		PartitionFanout:           cfg.Orchestrator.PartitionFanout,
		PartitionCount:            assigner.Count(),
		MaxQueryLength:            cfg.Orchestrator.MaxQueryLength,
		GenerationTimeout:         time.Duration(cfg.Orchestrator.GenerationTimeoutMs) * time.Millisecond,
	}, orchestrator.Deps{
		Router:    routeuc.New(routeuc.Options{HyDEEnabled: cfg.Orchestrator.HyDEEnabled}),
		Retriever: searchRepo,
		Keyword:   searchRepo,
		Scorer:    scorer,
		Grader:    grader,
		Chat:      chat,
		Traces:    traces,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("Failed to create orchestrator", zap.Error(err))
	}
	logger.Info("Pipeline ready",
		zap.String("scorer_mode", string(scorer.Mode())),
		zap.Int("partitions", assigner.Count()),
		zap.Bool("tracing", traces.Enabled()),
	)

	healthSvc := healthuc.New(store, map[string]healthuc.Checker{
		"embedding": docEmbedder,
		"chat":      chat,
	}, healthuc.WithVersion(version.String()))

	server := chiTransport.NewServer(orch, traces, assigner, docRepo, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func buildEmbedder(cfg config.Config, dims int, store *dbRedis.Store, logger *zap.Logger) *embeddinguc.InstrumentedEmbedder {
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.EmbeddingModel,
		Dimensions: dims,
		Logger:     logger,
	})

	cached := embcache.New(base, store, embcache.Config{
		KeyPrefix: cfg.Database.KeyPrefix,
		Model:     cfg.LLM.EmbeddingModel,
		TTL:       time.Duration(cfg.LLM.EmbeddingCacheTTL) * time.Second,
		Lookups:   metrics.EmbeddingCacheTotal,
		Logger:    logger,
	})

	return embeddinguc.NewInstrumentedEmbedder(cached, cfg.LLM.EmbeddingModel, logger)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorCodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.IntoContext(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("trace_id", ww.Header().Get("X-Trace-ID")),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
