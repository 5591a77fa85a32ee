package analytics

import (
	"encoding/csv"
	"io"
	"sort"

	"github.com/rotisserie/eris"
)

// EmptyExportMessage is the only line written when there are no bills.
const EmptyExportMessage = "Nenhum dado encontrado para os filtros selecionados."

var exportHeader = []string{"id", "modulo", "instalacao", "valor", "variacao_mes_anterior", "data_vencimento", "status"}

// WriteCSV writes annotated bills as CSV. Module-specific columns follow the
// fixed ones in name order. Cells that a spreadsheet would read as a
// formula are prefixed with a tab.
func WriteCSV(w io.Writer, bills []AnnotatedBill) error {
	cw := csv.NewWriter(w)
	if len(bills) == 0 {
		if err := cw.Write([]string{EmptyExportMessage}); err != nil {
			return eris.Wrap(err, "analytics: write csv")
		}
		cw.Flush()
		return eris.Wrap(cw.Error(), "analytics: flush csv")
	}

	extraSet := make(map[string]struct{})
	for _, b := range bills {
		for k := range b.Extra {
			extraSet[k] = struct{}{}
		}
	}
	extras := keys(extraSet)
	sort.Strings(extras)

	if err := cw.Write(append(append([]string{}, exportHeader...), extras...)); err != nil {
		return eris.Wrap(err, "analytics: write csv header")
	}
	for _, b := range bills {
		due := ""
		if b.DueDate != nil {
			due = b.DueDate.Format("2006-01-02")
		}
		row := []string{b.ID, b.Module, b.Installation, b.Amount.StringFixed(2), b.Variance, due, b.EffectiveStatus()}
		for _, k := range extras {
			row = append(row, b.Extra[k])
		}
		for i := range row {
			row[i] = neutralizeFormula(row[i])
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "analytics: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "analytics: flush csv")
}

func neutralizeFormula(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '-', '+', '@':
		return "\t" + s
	}
	return s
}
