package ingest

import (
	"context"
	"fmt"
	"html"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/utility-bills/internal/metrics"
	"github.com/sells-group/utility-bills/internal/model"
	"github.com/sells-group/utility-bills/internal/schema"
	"github.com/sells-group/utility-bills/internal/store"
)

// Submission is one classified document ready to persist.
type Submission struct {
	Category     string
	Fields       map[string]any
	StoredName   string
	OriginalName string
}

// Result describes a persisted invoice.
type Result struct {
	InvoiceID       int64
	CategoryID      int64
	Category        string
	CategoryCreated bool
	Strategy        model.DetailStrategy
	DetailRows      int
	Dropped         []string
}

// Coordinator writes an invoice and its details in one transaction.
type Coordinator struct {
	store    store.Store
	resolver *schema.Resolver
	unitID   int64
	metrics  *metrics.Metrics
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithUnitID sets the installation unit recorded on new invoices.
func WithUnitID(id int64) CoordinatorOption {
	return func(c *Coordinator) {
		if id > 0 {
			c.unitID = id
		}
	}
}

// WithMetrics records detail rows and created categories.
func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(s store.Store, resolver *schema.Resolver, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{store: s, resolver: resolver, unitID: 1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// canonical holds the validated invoice columns taken from the fields.
type canonical struct {
	amount decimal.Decimal
	due    time.Time
	issue  *time.Time
}

// Persist validates sub and writes it. Validation failures return before any
// transaction opens; failures inside the transaction roll it back.
func (c *Coordinator) Persist(ctx context.Context, sub Submission, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.L()
	}
	category := schema.NormalizeCategory(sub.Category)

	canon, err := validateFields(category, sub.Fields, log)
	if err != nil {
		return nil, err
	}

	strategy := c.resolver.Strategy(category)
	details := remainingFields(sub.Fields)
	res := &Result{Category: category, Strategy: strategy}

	err = c.store.InTx(ctx, func(tx store.Tx) error {
		catID, created, err := c.resolver.Resolve(ctx, tx, category)
		if err != nil {
			return err
		}
		res.CategoryID = catID
		res.CategoryCreated = created

		invoiceID, err := tx.InsertInvoice(ctx, &model.Invoice{
			UnitID:     c.unitID,
			CategoryID: catID,
			IssueDate:  canon.issue,
			DueDate:    canon.due,
			Total:      canon.amount,
			SourceFile: sub.StoredName,
			Notes:      "Cadastrado via PDF: " + filepath.Base(sub.OriginalName),
		})
		if err != nil {
			return err
		}
		res.InvoiceID = invoiceID

		if strategy.Typed() {
			n, dropped, err := writeTyped(ctx, tx, strategy, invoiceID, details)
			res.DetailRows, res.Dropped = n, dropped
			return err
		}
		n, err := writeGeneric(ctx, tx, invoiceID, details)
		res.DetailRows = n
		return err
	})
	if err != nil {
		return nil, &Error{
			Kind:    KindDatabase,
			Op:      "database_error",
			Message: "Ocorreu um erro inesperado ao salvar a fatura.",
			Err:     err,
		}
	}

	if len(res.Dropped) > 0 {
		log.Warn("ingest: fields without a column were not stored",
			zap.String("table", strategy.Table),
			zap.Strings("fields", res.Dropped),
		)
	}
	if res.CategoryCreated {
		c.metrics.CategoryCreated()
		log.Info("ingest: category created", zap.String("category", category), zap.Int64("category_id", res.CategoryID))
	}
	c.metrics.AddDetailRows(detailMetricLabel(strategy), res.DetailRows)
	return res, nil
}

// validateFields checks amount and due date, mirroring the rule that zero
// or blank values count as not extracted.
func validateFields(category string, fields map[string]any, log *zap.Logger) (*canonical, error) {
	var missing, missingLabels, invalid []string
	out := &canonical{}

	rawAmount := fields[model.FieldAmount]
	if model.IsEmptyValue(rawAmount) {
		missing = append(missing, model.FieldAmount)
		missingLabels = append(missingLabels, "valor")
	} else if amt, err := model.ParseAmount(rawAmount); err != nil {
		invalid = append(invalid, model.FieldAmount)
	} else if amt.IsZero() {
		missing = append(missing, model.FieldAmount)
		missingLabels = append(missingLabels, "valor")
	} else {
		out.amount = amt
	}

	rawDue := fields[model.FieldDueDate]
	if model.IsEmptyValue(rawDue) {
		missing = append(missing, model.FieldDueDate)
		missingLabels = append(missingLabels, "data de vencimento")
	} else if due, ok := model.ParseDate(model.FormatValue(rawDue)); !ok {
		invalid = append(invalid, model.FieldDueDate)
	} else {
		out.due = due
	}

	if len(missing) > 0 {
		return nil, &Error{
			Kind:    KindExtractionIncomplete,
			Op:      "extraction_incomplete",
			Missing: missing,
			Invalid: invalid,
			Message: fmt.Sprintf(
				"A API classificou o PDF como %q, mas não conseguiu extrair os seguintes dados obrigatórios: %s. Por favor, verifique o conteúdo do PDF ou cadastre manualmente.",
				html.EscapeString(category), strings.Join(missingLabels, ", ")),
		}
	}
	if len(invalid) > 0 {
		return nil, &Error{
			Kind:    KindExtractionIncomplete,
			Op:      "extraction_incomplete",
			Invalid: invalid,
			Message: fmt.Sprintf(
				"A API classificou o PDF como %q, mas os seguintes dados obrigatórios não puderam ser interpretados: %s. Por favor, verifique o conteúdo do PDF ou cadastre manualmente.",
				html.EscapeString(category), strings.Join(invalid, ", ")),
		}
	}

	if rawIssue := fields[model.FieldIssueDate]; !model.IsEmptyValue(rawIssue) {
		if issue, ok := model.ParseDate(model.FormatValue(rawIssue)); ok {
			out.issue = &issue
		} else {
			log.Warn("ingest: issue date not understood, stored empty", zap.Any("value", rawIssue))
		}
	}
	return out, nil
}

// remainingFields copies fields without the canonical invoice columns.
func remainingFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case model.FieldAmount, model.FieldDueDate, model.FieldIssueDate:
			continue
		}
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeTyped inserts the non-empty fields known to the typed table as a
// single row. Nothing is written when no field remains.
func writeTyped(ctx context.Context, tx store.Tx, s model.DetailStrategy, invoiceID int64, fields map[string]any) (int, []string, error) {
	var cols []string
	var vals []any
	var dropped []string
	for _, k := range sortedKeys(fields) {
		v := fields[k]
		if model.IsEmptyValue(v) {
			continue
		}
		if !s.HasColumn(k) {
			dropped = append(dropped, k)
			continue
		}
		cols = append(cols, k)
		vals = append(vals, model.FormatValue(v))
	}
	if len(cols) == 0 {
		return 0, dropped, nil
	}
	if err := tx.InsertTypedDetail(ctx, s.Table, invoiceID, cols, vals); err != nil {
		return 0, dropped, err
	}
	return 1, dropped, nil
}

// writeGeneric inserts one key/value row per non-null field.
func writeGeneric(ctx context.Context, tx store.Tx, invoiceID int64, fields map[string]any) (int, error) {
	n := 0
	for _, k := range sortedKeys(fields) {
		v := fields[k]
		if v == nil {
			continue
		}
		if err := tx.InsertGenericDetail(ctx, invoiceID, k, model.FormatValue(v)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func detailMetricLabel(s model.DetailStrategy) string {
	if s.Typed() {
		return "typed"
	}
	return "generic"
}
