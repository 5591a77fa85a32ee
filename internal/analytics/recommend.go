package analytics

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/utility-bills/internal/model"
)

// UnidentifiedInstallation labels recommendations for bills without an
// installation.
const UnidentifiedInstallation = "Não informada"

// Thresholds tune the energy rules.
type Thresholds struct {
	// VariancePct is the absolute month-over-month change that raises an alert.
	VariancePct float64
	// UnderuseRatio is the share of the contracted package below which the
	// contract is considered oversized.
	UnderuseRatio float64
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{VariancePct: 20, UnderuseRatio: 0.7}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.VariancePct <= 0 {
		t.VariancePct = d.VariancePct
	}
	if t.UnderuseRatio <= 0 {
		t.UnderuseRatio = d.UnderuseRatio
	}
	return t
}

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

// Evaluate produces recommendations per installation. Rules are evaluated
// independently per bill and accumulate without deduplication. Modules
// other than energy get one notice per installation.
func Evaluate(bills []AnnotatedBill, module string, th Thresholds) map[string][]model.Recommendation {
	th = th.withDefaults()
	out := make(map[string][]model.Recommendation)
	module = strings.ToLower(strings.TrimSpace(module))

	if module != model.ModuleEnergy {
		for _, b := range bills {
			inst := installationLabel(b.Installation)
			if _, ok := out[inst]; ok {
				continue
			}
			out[inst] = []model.Recommendation{{
				Type:     model.RecommendationAnalysisUnavailable,
				Severity: model.SeverityInfo,
				Message:  fmt.Sprintf("A análise de recomendações para o módulo '%s' ainda está em desenvolvimento.", module),
			}}
		}
		return out
	}

	for _, b := range bills {
		inst := installationLabel(b.Installation)
		for _, r := range energyRules(b, th) {
			r.BillID = b.ID
			out[inst] = append(out[inst], r)
		}
	}
	return out
}

func energyRules(b AnnotatedBill, th Thresholds) []model.Recommendation {
	var recs []model.Recommendation
	month := referenceMonth(b.Bill)

	// Compared at display precision.
	if pct, ok := b.VariancePct(); ok && pct.Round(2).Abs().GreaterThan(decimal.NewFromFloat(th.VariancePct)) {
		direction := "Aumento"
		if pct.IsNegative() {
			direction = "Redução"
		}
		recs = append(recs, model.Recommendation{
			Type:     model.RecommendationVarianceAlert,
			Severity: model.SeverityHigh,
			Message: fmt.Sprintf("%s acentuado no consumo (%s) no mês de %s. Valor: R$ %s. Investigar a causa.",
				direction, b.Variance, month, FormatBRL(b.Amount)),
		})
	}

	pkg, okPkg := b.Float(model.ColContractedEnergy)
	used, okUsed := b.Float(model.ColConsumption)
	if !okPkg || !okUsed || pkg <= 0 || used <= 0 {
		return recs
	}
	switch {
	case used < pkg*th.UnderuseRatio:
		recs = append(recs, model.Recommendation{
			Type:     model.RecommendationContractOptimization,
			Severity: model.SeverityMedium,
			Message: fmt.Sprintf("Pacote superdimensionado no mês %s. Apenas %s%% do pacote de %s kWh foi utilizado. Potencial de economia de %s kWh. Avaliar redução do contrato.",
				month, ptBR.Sprintf("%.1f", used/pkg*100), formatKWh(pkg), formatKWh(pkg-used)),
		})
	case used > pkg:
		recs = append(recs, model.Recommendation{
			Type:     model.RecommendationExcessAlert,
			Severity: model.SeverityHigh,
			Message: fmt.Sprintf("Consumo excedeu o pacote em %s kWh no mês %s. Isso pode gerar multas ou tarifas mais altas.",
				formatKWh(used-pkg), month),
		})
	}
	return recs
}

// FormatBRL renders an amount with Brazilian separators, e.g. 1.234,56.
func FormatBRL(d decimal.Decimal) string {
	return ptBR.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

func formatKWh(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func referenceMonth(b model.Bill) string {
	if b.DueDate == nil {
		return NotAvailable
	}
	return b.DueDate.Format("01/2006")
}

func installationLabel(inst string) string {
	if inst = strings.TrimSpace(inst); inst != "" {
		return inst
	}
	return UnidentifiedInstallation
}
