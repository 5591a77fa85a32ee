// Package ingest turns an uploaded invoice document into a persisted
// invoice: upload validation, classification, then one atomic write.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/utility-bills/internal/metrics"
	"github.com/sells-group/utility-bills/internal/resilience"
	"github.com/sells-group/utility-bills/internal/upload"
	"github.com/sells-group/utility-bills/pkg/classifier"
)

// Outcome is the user-facing result of one upload.
type Outcome struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Result  *Result `json:"-"`
}

// Pipeline runs UploadGateway, Classifier and Coordinator in order.
type Pipeline struct {
	gateway     *upload.Gateway
	classifier  classifier.Client
	coordinator *Coordinator
	metrics     *metrics.Metrics
}

// NewPipeline creates a Pipeline. m may be nil.
func NewPipeline(g *upload.Gateway, c classifier.Client, coord *Coordinator, m *metrics.Metrics) *Pipeline {
	return &Pipeline{gateway: g, classifier: c, coordinator: coord, metrics: m}
}

// Run processes one upload. Every failure is logged with an action label
// and detail before it is returned.
func (p *Pipeline) Run(ctx context.Context, scope *Scope, f *upload.File, csrf upload.CSRF) (*Outcome, error) {
	if scope == nil {
		scope = NewScope("")
	}
	out, err := p.run(ctx, scope, f, csrf)
	if err != nil {
		logFailure(scope, err)
		p.metrics.ObserveIngest(KindOf(err).String(), scope.Elapsed())
		return &Outcome{Success: false, Message: UserMessage(err)}, err
	}
	p.metrics.ObserveIngest("success", scope.Elapsed())
	return out, nil
}

func (p *Pipeline) run(ctx context.Context, scope *Scope, f *upload.File, csrf upload.CSRF) (*Outcome, error) {
	stored, err := p.gateway.Accept(f, csrf)
	if err != nil {
		if upload.IsValidation(err) {
			return nil, &Error{Kind: KindValidation, Op: "upload_rejected", Message: err.Error(), Err: err}
		}
		return nil, &Error{Kind: KindDatabase, Op: "upload_store_failed", Message: "Erro ao salvar o arquivo enviado.", Err: err}
	}
	scope.Log.Info("ingest: sending for classification",
		zap.String("file", stored.UniqueName),
		zap.String("original", stored.OriginalName),
	)

	doc, err := classifier.ReadDocument(stored.Path)
	if err != nil {
		return nil, &Error{Kind: KindDatabase, Op: "upload_read_failed", Message: "Erro ao salvar o arquivo enviado.", Err: err}
	}

	start := time.Now()
	cls, err := p.classifier.Classify(ctx, doc)
	if err != nil {
		p.metrics.ObserveClassifier("error", time.Since(start))
		return nil, classifierError(err)
	}
	p.metrics.ObserveClassifier("ok", time.Since(start))

	res, err := p.coordinator.Persist(ctx, Submission{
		Category:     cls.Category,
		Fields:       cls.Details,
		StoredName:   stored.UniqueName,
		OriginalName: stored.OriginalName,
	}, scope.Log)
	if err != nil {
		return nil, err
	}

	scope.Log.Info("ingest: invoice stored",
		zap.String("action", "ingest_success"),
		zap.Int64("invoice_id", res.InvoiceID),
		zap.String("category", res.Category),
		zap.String("strategy", res.Strategy.String()),
		zap.Int("detail_rows", res.DetailRows),
		zap.Duration("elapsed", scope.Elapsed()),
	)
	return &Outcome{
		Success: true,
		Message: fmt.Sprintf("Fatura de %s processada e salva com sucesso!", html.EscapeString(res.Category)),
		Result:  res,
	}, nil
}

// classifierError maps a classifier failure onto the taxonomy.
func classifierError(err error) *Error {
	var ue *classifier.UnavailableError
	var se *classifier.StatusError
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return &Error{
			Kind:    KindServiceUnavailable,
			Op:      "classifier_unreachable",
			Message: "Erro de comunicação com o serviço de IA: serviço temporariamente indisponível.",
			Err:     err,
		}
	case errors.As(err, &ue):
		return &Error{
			Kind:    KindServiceUnavailable,
			Op:      "classifier_unreachable",
			Message: "Erro de comunicação com o serviço de IA: " + html.EscapeString(ue.Err.Error()),
			Err:     err,
		}
	case errors.As(err, &se):
		return &Error{
			Kind:       KindServiceError,
			Op:         "classifier_error",
			Message:    fmt.Sprintf("O serviço de IA retornou um erro (HTTP %d).", se.StatusCode),
			StatusCode: se.StatusCode,
			Err:        err,
		}
	default:
		return &Error{
			Kind:    KindServiceError,
			Op:      "classifier_error",
			Message: "O serviço de IA retornou uma resposta inválida.",
			Err:     err,
		}
	}
}

func logFailure(scope *Scope, err error) {
	var e *Error
	if !errors.As(err, &e) {
		scope.Log.Error("ingest failed", zap.String("action", "unexpected"), zap.String("detail", err.Error()))
		return
	}
	fields := []zap.Field{
		zap.String("action", e.Op),
		zap.String("detail", e.Detail()),
		zap.String("kind", e.Kind.String()),
	}
	if len(e.Missing) > 0 {
		fields = append(fields, zap.Strings("missing", e.Missing))
	}
	if e.StatusCode != 0 {
		fields = append(fields, zap.Int("status", e.StatusCode))
	}
	switch e.Kind {
	case KindValidation, KindExtractionIncomplete:
		scope.Log.Warn("ingest failed", fields...)
	default:
		scope.Log.Error("ingest failed", fields...)
	}
}
