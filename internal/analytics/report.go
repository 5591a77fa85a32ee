package analytics

import (
	"sort"

	"github.com/sells-group/utility-bills/internal/model"
)

// Report is a module's variance-annotated bill history.
type Report struct {
	Module  string          `json:"modulo" yaml:"modulo"`
	Status  string          `json:"status" yaml:"status"`
	Bills   []AnnotatedBill `json:"contas" yaml:"contas"`
	Summary Summary         `json:"resumo" yaml:"resumo"`
	Options Options         `json:"filtros" yaml:"filtros"`
}

// BuildReport annotates the full history and then applies the status
// filter, so variance always compares against the real previous bill.
func BuildReport(module string, bills []model.Bill, status string) Report {
	return Report{
		Module:  module,
		Status:  status,
		Bills:   FilterStatus(Annotate(bills), status),
		Summary: Summarize(bills),
		Options: FilterOptions(bills),
	}
}

// InstallationRecommendations groups the recommendations of one installation.
type InstallationRecommendations struct {
	Installation    string                 `json:"instalacao" yaml:"instalacao"`
	Recommendations []model.Recommendation `json:"recomendacoes" yaml:"recomendacoes"`
}

// RecommendationReport is the result of a recommendations query.
type RecommendationReport struct {
	Module        string                        `json:"modulo" yaml:"modulo"`
	Filter        Filter                        `json:"filtro" yaml:"filtro"`
	Installations []InstallationRecommendations `json:"instalacoes" yaml:"instalacoes"`
	Options       Options                       `json:"filtros" yaml:"filtros"`
}

// Empty reports whether no recommendation was produced.
func (r RecommendationReport) Empty() bool {
	return len(r.Installations) == 0
}

// BuildRecommendations filters bills by installation and month before
// annotating them, then evaluates the recommendation rules.
func BuildRecommendations(module string, bills []model.Bill, f Filter, th Thresholds) RecommendationReport {
	annotated := Annotate(f.Apply(bills))
	recs := Evaluate(annotated, module, th)

	out := RecommendationReport{
		Module:  module,
		Filter:  Filter{Installation: f.installation(), Month: f.month()},
		Options: FilterOptions(bills),
	}
	for inst, list := range recs {
		out.Installations = append(out.Installations, InstallationRecommendations{Installation: inst, Recommendations: list})
	}
	sort.Slice(out.Installations, func(i, j int) bool {
		return out.Installations[i].Installation < out.Installations[j].Installation
	})
	return out
}
