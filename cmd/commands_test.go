package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/utility-bills/internal/analytics"
	"github.com/sells-group/utility-bills/internal/config"
	"github.com/sells-group/utility-bills/internal/ingest"
	"github.com/sells-group/utility-bills/internal/model"
	"github.com/sells-group/utility-bills/internal/schema"
	"github.com/sells-group/utility-bills/internal/store"
	"github.com/sells-group/utility-bills/internal/upload"
	"github.com/sells-group/utility-bills/pkg/classifier"
)

func newTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "bills.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestInitStore_SQLite(t *testing.T) {
	cfg = &config.Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = filepath.Join(t.TempDir(), "x.db")

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close()
	assert.NoError(t, st.Ping(context.Background()))
}

func TestInitStore_UnknownDriver(t *testing.T) {
	cfg = &config.Config{}
	cfg.Store.Driver = "oracle"
	_, err := initStore(context.Background())
	assert.Error(t, err)
}

func TestFetchHistories_PreservesOrder(t *testing.T) {
	st := newTestStore(t)
	_, err := st.DB().Exec(`INSERT INTO energia (instalacao, valor, data_vencimento) VALUES ('I1', '100.00', '2024-01-10')`)
	require.NoError(t, err)

	modules := []model.Module{}
	for _, name := range []string{model.ModuleWater, model.ModuleEnergy} {
		m, ok := model.ModuleByName(name)
		require.True(t, ok)
		modules = append(modules, m)
	}

	histories, err := fetchHistories(context.Background(), st, modules)
	require.NoError(t, err)
	require.Len(t, histories, 2)
	assert.Empty(t, histories[0])
	require.Len(t, histories[1], 1)
	assert.Equal(t, "I1", histories[1][0].Installation)
}

func TestBuildSchemaListing(t *testing.T) {
	reg := schema.NewRegistry([]model.DetailTable{{Name: "energia_detalhes", Columns: []string{"consumo"}}})
	l := buildSchemaListing(reg, []model.Category{{ID: 1, Name: "energia"}, {ID: 2, Name: "agua"}})

	require.Len(t, l.Categories, 2)
	assert.Equal(t, "typed:energia_detalhes", l.Categories[0].Strategy)
	assert.Equal(t, []string{"consumo"}, l.Categories[0].Columns)
	assert.Equal(t, "generic", l.Categories[1].Strategy)

	var buf bytes.Buffer
	formatSchema(&buf, l)
	assert.Contains(t, buf.String(), "chave/valor")
	assert.Contains(t, buf.String(), "energia_detalhes: consumo")
}

func TestFormatReport(t *testing.T) {
	due := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	r := analytics.BuildReport(model.ModuleEnergy, []model.Bill{
		{ID: "7", Installation: "I9", Amount: decimal.RequireFromString("1234.5"), DueDate: &due},
	}, analytics.StatusAll)

	var buf bytes.Buffer
	formatReport(&buf, r)
	out := buf.String()
	assert.Contains(t, out, "05/03/2024")
	assert.Contains(t, out, "R$ 1.234,50")
	assert.Contains(t, out, "N/A")
	assert.Contains(t, out, "2024-03")
}

func TestFormatRecommendations_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatRecommendations(&buf, analytics.RecommendationReport{Module: "energia"})
	assert.Contains(t, buf.String(), "Tudo certo")
}

type fixedClassifier struct {
	result *classifier.Classification
}

func (f fixedClassifier) Classify(context.Context, classifier.Document) (*classifier.Classification, error) {
	return f.result, nil
}

func TestIngestFile(t *testing.T) {
	st := newTestStore(t)
	reg, err := schema.LoadRegistry(context.Background(), st)
	require.NoError(t, err)
	gw, err := upload.NewGateway(t.TempDir())
	require.NoError(t, err)
	p := ingest.NewPipeline(gw, fixedClassifier{result: &classifier.Classification{
		Category: "internet",
		Details:  map[string]any{"valor": "99,90", "data_vencimento": "05/03/2024"},
	}}, ingest.NewCoordinator(st, schema.NewResolver(reg)), nil)

	path := filepath.Join(t.TempDir(), "fatura.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n%%EOF\n"), 0o600))

	out, err := ingestFile(context.Background(), p, path)
	require.NoError(t, err)
	assert.True(t, out.Success)

	n, err := st.CountRows(context.Background(), "faturas")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIngestFile_Missing(t *testing.T) {
	_, err := ingestFile(context.Background(), nil, filepath.Join(t.TempDir(), "nope.pdf"))
	assert.Error(t, err)
}
