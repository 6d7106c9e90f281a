package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinassist/ng12-assistant/internal/config"
	"github.com/clinassist/ng12-assistant/internal/core/domain"
	"github.com/clinassist/ng12-assistant/internal/core/ports"
	"github.com/clinassist/ng12-assistant/internal/core/usecase"
	"github.com/clinassist/ng12-assistant/internal/infrastructure/llm/ollama"
	"github.com/clinassist/ng12-assistant/internal/infrastructure/memory"
	"github.com/clinassist/ng12-assistant/internal/infrastructure/queue/nats"
	"github.com/clinassist/ng12-assistant/internal/infrastructure/repository/postgres"
	"github.com/clinassist/ng12-assistant/internal/infrastructure/resilience"
	"github.com/clinassist/ng12-assistant/internal/infrastructure/vector/qdrant"
	"github.com/clinassist/ng12-assistant/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Metrics *metrics.HTTPServerMetrics

	ChatUC   *usecase.ChatUseCase
	AssessUC *usecase.AssessmentUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	patients := postgres.NewPatientRepository(db)
	if err := patients.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if cfg.SeedDemoPatients {
		if err := seedDemoPatients(ctx, patients); err != nil {
			return nil, fmt.Errorf("seed demo patients: %w", err)
		}
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	publisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init decision publisher: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)

	store := qdrant.NewStore(
		cfg.QdrantURL,
		cfg.QdrantSearchCollection,
		cfg.QdrantSymptomCollection,
		cfg.QdrantCanonicalCollection,
		embedder,
		executor,
	)

	sessions := memory.NewSessionStore()
	generateTimeout := time.Duration(cfg.GenerateTimeoutSeconds) * time.Second

	chatUC := usecase.NewChatUseCase(store, ollamaClient, sessions, publisher, usecase.ChatLimits{
		TopK:                cfg.ChatTopK,
		FetchMultiplier:     cfg.FetchMultiplier,
		RewriteHistoryTurns: cfg.RewriteHistoryTurns,
		GenerateTimeout:     generateTimeout,
	})
	assessUC := usecase.NewAssessmentUseCase(patients, store, ollamaClient, publisher, usecase.AssessmentLimits{
		TopK:            cfg.AssessTopK,
		FetchMultiplier: cfg.FetchMultiplier,
		GenerateTimeout: generateTimeout,
	})

	return &App{
		Config:  cfg,
		Metrics: metrics.NewHTTPServerMetrics("api"),

		ChatUC:   chatUC,
		AssessUC: assessUC,

		closeFn: func() {
			publisher.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// seedDemoPatients loads the demo cohort on first start so the assessment
// endpoint works out of the box. Existing rows are left alone.
func seedDemoPatients(ctx context.Context, patients *postgres.PatientRepository) error {
	existing, err := patients.ListPatients(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	records := demoPatients()
	for _, record := range records {
		if err := patients.UpsertPatient(ctx, record); err != nil {
			return err
		}
	}
	slog.Info("seeded demo patients", "count", len(records))
	return nil
}

func demoPatients() []domain.PatientRecord {
	return []domain.PatientRecord{
		{
			PatientID:           "PT-101",
			Name:                "John Smith",
			Age:                 55,
			Gender:              "Male",
			SmokingHistory:      "Current smoker, 30 pack years",
			Symptoms:            []string{"haemoptysis", "unexplained weight loss", "persistent cough"},
			SymptomDurationDays: 21,
		},
		{
			PatientID:           "PT-102",
			Name:                "Mary Johnson",
			Age:                 62,
			Gender:              "Female",
			SmokingHistory:      domain.SmokingNever,
			Symptoms:            []string{"rectal bleeding", "abdominal pain", "change in bowel habit"},
			SymptomDurationDays: 42,
		},
		{
			PatientID:           "PT-103",
			Name:                "David Lee",
			Age:                 48,
			Gender:              "Male",
			SmokingHistory:      "Ex-smoker, quit 10 years ago",
			Symptoms:            []string{"dysphagia"},
			SymptomDurationDays: 14,
		},
	}
}

var _ ports.PatientSource = (*postgres.PatientRepository)(nil)
