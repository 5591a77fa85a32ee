package analytics

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/utility-bills/internal/model"
)

// Filter wildcards and status choices.
const (
	AllInstallations = "todas"
	AllMonths        = "todos"
	StatusAll        = "todas"
	StatusPending    = "pendentes"
	StatusPaid       = "pagas"
)

// Filter selects bills by installation and due month.
type Filter struct {
	Installation string `json:"instalacao"`
	Month        string `json:"mes_ano"`
}

func (f Filter) installation() string {
	if s := strings.TrimSpace(f.Installation); s != "" {
		return s
	}
	return AllInstallations
}

func (f Filter) month() string {
	if s := strings.TrimSpace(f.Month); s != "" {
		return s
	}
	return AllMonths
}

// Apply keeps the bills matching the installation and month. Bills without
// a due date never match a specific month.
func (f Filter) Apply(bills []model.Bill) []model.Bill {
	inst, month := f.installation(), f.month()
	out := make([]model.Bill, 0, len(bills))
	for _, b := range bills {
		if inst != AllInstallations && strings.TrimSpace(b.Installation) != inst {
			continue
		}
		if month != AllMonths && b.MonthKey() != month {
			continue
		}
		out = append(out, b)
	}
	return out
}

// ParseStatus validates a status filter. Empty means all.
func ParseStatus(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", StatusAll:
		return StatusAll, nil
	case StatusPending:
		return StatusPending, nil
	case StatusPaid:
		return StatusPaid, nil
	default:
		return "", eris.Errorf("analytics: unknown status filter %q", s)
	}
}

// FilterStatus keeps annotated bills matching status. A bill without a
// status counts as pending.
func FilterStatus(bills []AnnotatedBill, status string) []AnnotatedBill {
	if status == StatusAll || status == "" {
		return bills
	}
	out := make([]AnnotatedBill, 0, len(bills))
	for _, b := range bills {
		s := b.EffectiveStatus()
		if (status == StatusPending && s == model.StatusPending) || (status == StatusPaid && s == model.StatusPaid) {
			out = append(out, b)
		}
	}
	return out
}

// Options lists the values a module's bills can be filtered by.
type Options struct {
	Installations []string `json:"instalacoes" yaml:"instalacoes"`
	Months        []string `json:"meses" yaml:"meses"`
}

// FilterOptions returns distinct installations (sorted) and due months
// (newest first).
func FilterOptions(bills []model.Bill) Options {
	insts := make(map[string]struct{})
	months := make(map[string]struct{})
	for _, b := range bills {
		if s := strings.TrimSpace(b.Installation); s != "" {
			insts[s] = struct{}{}
		}
		if m := b.MonthKey(); m != "" {
			months[m] = struct{}{}
		}
	}
	opts := Options{Installations: keys(insts), Months: keys(months)}
	sort.Strings(opts.Installations)
	sort.Sort(sort.Reverse(sort.StringSlice(opts.Months)))
	return opts
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// MonthTotal aggregates the bills due in one month.
type MonthTotal struct {
	Month string          `json:"mes_ano" yaml:"mes_ano"`
	Total decimal.Decimal `json:"total" yaml:"total"`
	Count int             `json:"quantidade" yaml:"quantidade"`
}

// Summary aggregates a module's bill history.
type Summary struct {
	Count        int             `json:"quantidade" yaml:"quantidade"`
	TotalPending decimal.Decimal `json:"total_pendente" yaml:"total_pendente"`
	TotalPaid    decimal.Decimal `json:"total_pago" yaml:"total_pago"`
	Months       []MonthTotal    `json:"meses" yaml:"meses"`
}

// Summarize totals bills by status and by due month (oldest first).
func Summarize(bills []model.Bill) Summary {
	s := Summary{Count: len(bills), TotalPending: decimal.Zero, TotalPaid: decimal.Zero}
	byMonth := make(map[string]*MonthTotal)
	for _, b := range bills {
		switch b.EffectiveStatus() {
		case model.StatusPaid:
			s.TotalPaid = s.TotalPaid.Add(b.Amount)
		case model.StatusPending:
			s.TotalPending = s.TotalPending.Add(b.Amount)
		}
		m := b.MonthKey()
		if m == "" {
			continue
		}
		mt, ok := byMonth[m]
		if !ok {
			mt = &MonthTotal{Month: m, Total: decimal.Zero}
			byMonth[m] = mt
		}
		mt.Total = mt.Total.Add(b.Amount)
		mt.Count++
	}
	for _, mt := range byMonth {
		s.Months = append(s.Months, *mt)
	}
	sort.Slice(s.Months, func(i, j int) bool { return s.Months[i].Month < s.Months[j].Month })
	return s
}
