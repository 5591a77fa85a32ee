package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/utility-bills/internal/analytics"
	"github.com/sells-group/utility-bills/internal/ingest"
	"github.com/sells-group/utility-bills/internal/metrics"
	"github.com/sells-group/utility-bills/internal/model"
	"github.com/sells-group/utility-bills/internal/resilience"
	"github.com/sells-group/utility-bills/internal/schema"
	"github.com/sells-group/utility-bills/internal/store"
	"github.com/sells-group/utility-bills/internal/upload"
	"github.com/sells-group/utility-bills/pkg/classifier"
)

const samplePDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n"

type mockBills struct {
	mock.Mock
}

func (m *mockBills) ListBills(ctx context.Context, mod model.Module) ([]model.Bill, error) {
	args := m.Called(ctx, mod.Name)
	if b := args.Get(0); b != nil {
		return b.([]model.Bill), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBills) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type stubClassifier struct {
	result *classifier.Classification
	err    error
}

func (s stubClassifier) Classify(context.Context, classifier.Document) (*classifier.Classification, error) {
	return s.result, s.err
}

func newPipeline(t *testing.T, c classifier.Client) *ingest.Pipeline {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "bills.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	reg, err := schema.LoadRegistry(context.Background(), st)
	require.NoError(t, err)
	gw, err := upload.NewGateway(t.TempDir())
	require.NoError(t, err)
	return ingest.NewPipeline(gw, c, ingest.NewCoordinator(st, schema.NewResolver(reg)), nil)
}

func uploadRequest(t *testing.T, csrfForm, csrfCookie string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField(FieldCSRF, csrfForm))

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="conta.pdf"`, FieldFile))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(samplePDF))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if csrfCookie != "" {
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: csrfCookie})
	}
	return req
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) messageResponse {
	t.Helper()
	var msg messageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	return msg
}

func TestUpload_Success(t *testing.T) {
	p := newPipeline(t, stubClassifier{result: &classifier.Classification{
		Category: "agua",
		Details:  map[string]any{"valor": "45,00", "data_vencimento": "2024-02-01", "ph": "7.1"},
	}})
	srv := New(Config{}, p, new(mockBills), metrics.New())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "tok", "tok"))

	assert.Equal(t, http.StatusOK, rec.Code)
	msg := decodeMessage(t, rec)
	assert.True(t, msg.Success)
	assert.Equal(t, "Fatura de agua processada e salva com sucesso!", msg.Message)
}

func TestUpload_CSRFMismatch(t *testing.T) {
	srv := New(Config{}, newPipeline(t, stubClassifier{}), new(mockBills), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "tok", ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg := decodeMessage(t, rec)
	assert.False(t, msg.Success)
	assert.Equal(t, "Erro: Requisição inválida.", msg.Message)
}

func TestUpload_NotMultipart(t *testing.T) {
	srv := New(Config{}, newPipeline(t, stubClassifier{}), new(mockBills), nil)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		cls  stubClassifier
		code int
	}{
		{"incomplete", stubClassifier{result: &classifier.Classification{Category: "agua", Details: map[string]any{}}}, http.StatusUnprocessableEntity},
		{"unavailable", stubClassifier{err: &classifier.UnavailableError{Err: errors.New("timeout")}}, http.StatusInternalServerError},
		{"non-200", stubClassifier{err: &classifier.StatusError{StatusCode: 500}}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(Config{}, newPipeline(t, tt.cls), new(mockBills), nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, uploadRequest(t, "tok", "tok"))
			assert.Equal(t, tt.code, rec.Code)
			assert.False(t, decodeMessage(t, rec).Success)
		})
	}
}

func TestUpload_RateLimited(t *testing.T) {
	srv := New(Config{UploadRPS: 0.01, UploadBurst: 1}, newPipeline(t, stubClassifier{}), new(mockBills), nil)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "tok", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "tok", ""))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func energyHistory() []model.Bill {
	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	return []model.Bill{
		{ID: "1", Module: model.ModuleEnergy, Installation: "I1", Amount: decimal.NewFromInt(100), DueDate: &jan, Status: model.StatusPaid,
			Extra: map[string]string{model.ColConsumption: "100", model.ColContractedEnergy: "300"}},
		{ID: "2", Module: model.ModuleEnergy, Installation: "I1", Amount: decimal.NewFromInt(150), DueDate: &feb,
			Extra: map[string]string{model.ColConsumption: "350", model.ColContractedEnergy: "300"}},
	}
}

func TestReport_JSON(t *testing.T) {
	bills := new(mockBills)
	bills.On("ListBills", mock.Anything, model.ModuleEnergy).Return(energyHistory(), nil)
	srv := New(Config{}, nil, bills, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/energia?status=pendentes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Module string `json:"modulo"`
		Bills  []struct {
			ID       string `json:"id"`
			Variance string `json:"variacao_mes_anterior"`
		} `json:"contas"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, model.ModuleEnergy, got.Module)
	require.Len(t, got.Bills, 1)
	assert.Equal(t, "2", got.Bills[0].ID)
	assert.Equal(t, "+50.00%", got.Bills[0].Variance)
	bills.AssertExpectations(t)
}

func TestReport_CSV(t *testing.T) {
	bills := new(mockBills)
	bills.On("ListBills", mock.Anything, model.ModuleEnergy).Return(energyHistory(), nil)
	srv := New(Config{}, nil, bills, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/energia?status=pagas&format=csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "contas_energia_pagas.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "id,modulo,instalacao,valor"))
}

func TestReport_Errors(t *testing.T) {
	bills := new(mockBills)
	bills.On("ListBills", mock.Anything, model.ModuleWater).Return(nil, errors.New("boom"))
	srv := New(Config{}, nil, bills, nil)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/gas", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/energia?status=vencidas", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/agua", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestRecommendations_DefaultsToEnergy(t *testing.T) {
	bills := new(mockBills)
	bills.On("ListBills", mock.Anything, model.ModuleEnergy).Return(energyHistory(), nil)
	srv := New(Config{Thresholds: analytics.DefaultThresholds()}, nil, bills, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recommendations", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got analytics.RecommendationReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got.Installations, 1)
	assert.Equal(t, "I1", got.Installations[0].Installation)

	var types []model.RecommendationType
	for _, r := range got.Installations[0].Recommendations {
		types = append(types, r.Type)
	}
	assert.Equal(t, []model.RecommendationType{
		model.RecommendationContractOptimization,
		model.RecommendationVarianceAlert,
		model.RecommendationExcessAlert,
	}, types)
}

func TestRecommendations_UnknownModule(t *testing.T) {
	srv := New(Config{}, nil, new(mockBills), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recommendations?modulo=gas", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	bills := new(mockBills)
	bills.On("Ping", mock.Anything).Return(nil).Once()
	bills.On("Ping", mock.Anything).Return(errors.New("down")).Once()
	h := New(Config{}, nil, bills, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth_ReportsClassifierBreaker(t *testing.T) {
	bills := new(mockBills)
	bills.On("Ping", mock.Anything).Return(nil)
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "classifier", FailureThreshold: 1, ResetTimeout: time.Hour})
	_, _ = resilience.ExecuteVal(context.Background(), cb, func(context.Context) (int, error) { return 0, errors.New("down") })
	_, _ = resilience.ExecuteVal(context.Background(), cb, func(context.Context) (int, error) { return 0, nil })

	h := New(Config{Breaker: cb}, nil, bills, nil).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	require.NotNil(t, body.Classifier)
	assert.Equal(t, "open", body.Classifier.State)
	assert.Equal(t, 1, body.Classifier.ConsecutiveFailures)
	assert.Equal(t, int64(1), body.Classifier.Rejected)
}

func TestMetricsEndpoint(t *testing.T) {
	bills := new(mockBills)
	bills.On("Ping", mock.Anything).Return(nil)
	h := New(Config{}, nil, bills, metrics.New()).Handler()

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/health")
}
