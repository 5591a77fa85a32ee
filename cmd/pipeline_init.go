package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/utility-bills/internal/ingest"
	"github.com/sells-group/utility-bills/internal/metrics"
	"github.com/sells-group/utility-bills/internal/resilience"
	"github.com/sells-group/utility-bills/internal/schema"
	"github.com/sells-group/utility-bills/internal/store"
	"github.com/sells-group/utility-bills/internal/upload"
	"github.com/sells-group/utility-bills/pkg/classifier"
)

// pipelineEnv holds the store, the detail registry and the ingestion
// pipeline needed by the serve and ingest commands.
type pipelineEnv struct {
	Store    store.Store
	Registry *schema.Registry
	Pipeline *ingest.Pipeline
	Gateway  *upload.Gateway
	Metrics  *metrics.Metrics
	Breaker  *resilience.CircuitBreaker
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens and migrates the store,
// builds the detail registry and wires the pipeline. Callers should defer
// env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg, err := schema.LoadRegistry(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	gw, err := upload.NewGateway(cfg.Upload.Dir, upload.WithMaxBytes(cfg.Upload.MaxBytes))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	m := metrics.New()
	breakerCfg := resilience.FromCircuitConfig("classifier", cfg.Classifier.FailureThreshold, cfg.Classifier.ResetTimeoutSecs)
	breakerCfg.OnStateChange = func(name string, _, to resilience.CircuitState) {
		m.SetBreakerState(name, int(to))
	}
	guarded := resilience.NewGuardedClassifier(
		classifier.NewClient(cfg.Classifier.BaseURL, classifier.WithTimeout(cfg.Classifier.Timeout())),
		breakerCfg,
	)

	coord := ingest.NewCoordinator(st, schema.NewResolver(reg),
		ingest.WithUnitID(cfg.Ingest.DefaultUnitID),
		ingest.WithMetrics(m),
	)

	zap.L().Info("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Int("typed_detail_tables", len(reg.Tables())),
		zap.String("classifier", cfg.Classifier.BaseURL),
	)

	return &pipelineEnv{
		Store:    st,
		Registry: reg,
		Pipeline: ingest.NewPipeline(gw, guarded, coord, m),
		Gateway:  gw,
		Metrics:  m,
		Breaker:  guarded.Breaker(),
	}, nil
}
