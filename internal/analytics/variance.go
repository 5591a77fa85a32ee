// Package analytics derives month-over-month variance, recommendations,
// filters and summaries from a module's bill history. Everything here is a
// pure function over already fetched bills.
package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/utility-bills/internal/model"
)

// NotAvailable is the variance shown when no previous positive amount exists.
const NotAvailable = "N/A"

var hundred = decimal.NewFromInt(100)

// AnnotatedBill is a bill with its variance against the previous bill of the
// same installation.
type AnnotatedBill struct {
	model.Bill `yaml:",inline"`
	Variance   string `json:"variacao_mes_anterior" yaml:"variacao_mes_anterior"`

	pct *decimal.Decimal
}

// VariancePct returns the numeric variance, or false when it is N/A.
func (a AnnotatedBill) VariancePct() (decimal.Decimal, bool) {
	if a.pct == nil {
		return decimal.Zero, false
	}
	return *a.pct, true
}

// Annotate groups bills by installation, orders each group by due date and
// computes the variance of every bill against its predecessor. Groups are
// emitted in the order their first bill was seen.
func Annotate(bills []model.Bill) []AnnotatedBill {
	if len(bills) == 0 {
		return nil
	}

	var order []string
	groups := make(map[string][]model.Bill)
	for i, b := range bills {
		key := groupKey(b, i)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], b)
	}

	out := make([]AnnotatedBill, 0, len(bills))
	for _, key := range order {
		group := groups[key]
		sortByDueDate(group)

		var prev *decimal.Decimal
		for _, b := range group {
			a := AnnotatedBill{Bill: b, Variance: NotAvailable}
			if prev != nil && prev.IsPositive() {
				pct := b.Amount.Sub(*prev).Div(*prev).Mul(hundred)
				a.pct = &pct
				a.Variance = FormatVariance(pct)
			}
			amt := b.Amount
			prev = &amt
			out = append(out, a)
		}
	}
	return out
}

// FormatVariance renders a percentage with an explicit sign and two decimals.
func FormatVariance(pct decimal.Decimal) string {
	s := pct.StringFixed(2)
	if !strings.HasPrefix(s, "-") {
		s = "+" + s
	}
	return s + "%"
}

// groupKey returns the installation, or a key derived from the bill content
// and position for bills without one. The NUL prefix keeps fallback keys
// apart from every real identifier.
func groupKey(b model.Bill, idx int) string {
	if inst := strings.TrimSpace(b.Installation); inst != "" {
		return inst
	}
	raw, _ := json.Marshal(b)
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("\x00unidentified:%s:%d", hex.EncodeToString(sum[:8]), idx)
}

// sortByDueDate orders bills by due date, keeping bills without a date last
// and preserving input order among equals.
func sortByDueDate(bills []model.Bill) {
	sort.SliceStable(bills, func(i, j int) bool {
		a, b := bills[i].DueDate, bills[j].DueDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
}
