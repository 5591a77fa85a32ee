package analytics

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/utility-bills/internal/model"
)

func decimalFrom(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleHistory() []model.Bill {
	paid := bill("1", "A", "100", date(2024, 1, 10))
	paid.Status = model.StatusPaid
	return []model.Bill{
		paid,
		bill("2", "A", "150", date(2024, 2, 10)),
		bill("3", "B", "80", date(2024, 2, 12)),
		bill("4", "", "20", nil),
	}
}

func TestFilter_Apply(t *testing.T) {
	bills := sampleHistory()

	assert.Len(t, Filter{}.Apply(bills), 4)
	assert.Len(t, Filter{Installation: "todas", Month: "todos"}.Apply(bills), 4)
	assert.Len(t, Filter{Installation: "A"}.Apply(bills), 2)
	assert.Len(t, Filter{Month: "2024-02"}.Apply(bills), 2)

	got := Filter{Installation: "A", Month: "2024-02"}.Apply(bills)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
}

func TestFilter_ApplyTrimsInstallation(t *testing.T) {
	bills := []model.Bill{
		bill("1", "123 ", "10", date(2024, 1, 5)),
		bill("2", "456", "20", date(2024, 1, 6)),
	}
	opts := FilterOptions(bills)
	require.Contains(t, opts.Installations, "123")

	got := Filter{Installation: "123"}.Apply(bills)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]string{"": StatusAll, "todas": StatusAll, "Pendentes": StatusPending, "pagas": StatusPaid} {
		got, err := ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseStatus("vencidas")
	assert.Error(t, err)
}

func TestFilterStatus(t *testing.T) {
	annotated := Annotate(sampleHistory())
	assert.Len(t, FilterStatus(annotated, StatusAll), 4)
	assert.Len(t, FilterStatus(annotated, StatusPending), 3)
	paid := FilterStatus(annotated, StatusPaid)
	require.Len(t, paid, 1)
	assert.Equal(t, "1", paid[0].ID)
}

func TestFilterOptions(t *testing.T) {
	opts := FilterOptions(sampleHistory())
	assert.Equal(t, []string{"A", "B"}, opts.Installations)
	assert.Equal(t, []string{"2024-02", "2024-01"}, opts.Months)
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleHistory())
	assert.Equal(t, 4, s.Count)
	assert.True(t, decimalFrom("100").Equal(s.TotalPaid))
	assert.True(t, decimalFrom("250").Equal(s.TotalPending))
	require.Len(t, s.Months, 2)
	assert.Equal(t, "2024-01", s.Months[0].Month)
	assert.Equal(t, 2, s.Months[1].Count)
	assert.True(t, decimalFrom("230").Equal(s.Months[1].Total))
}

func TestBuildReport_StatusFilterAfterVariance(t *testing.T) {
	r := BuildReport(model.ModuleEnergy, sampleHistory(), StatusPending)
	byID := variances(r.Bills)
	assert.Len(t, r.Bills, 3)
	assert.Equal(t, "+50.00%", byID["2"], "variance still compares against the paid January bill")
}

func TestBuildRecommendations_FilterBeforeVariance(t *testing.T) {
	bills := []model.Bill{
		bill("1", "A", "100", date(2024, 1, 1)),
		bill("2", "A", "200", date(2024, 2, 1)),
	}
	all := BuildRecommendations(model.ModuleEnergy, bills, Filter{}, DefaultThresholds())
	require.False(t, all.Empty())
	assert.Equal(t, "A", all.Installations[0].Installation)

	feb := BuildRecommendations(model.ModuleEnergy, bills, Filter{Month: "2024-02"}, DefaultThresholds())
	assert.True(t, feb.Empty())
	assert.Equal(t, AllInstallations, feb.Filter.Installation)
	assert.Equal(t, []string{"2024-02", "2024-01"}, feb.Options.Months)
}

func TestWriteCSV(t *testing.T) {
	b := bill("1", "=cmd", "10", date(2024, 1, 5))
	b.Extra = map[string]string{"secretaria": "Saude"}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Annotate([]model.Bill{b})))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, append(append([]string{}, exportHeader...), "secretaria"), rows[0])
	assert.Equal(t, "\t=cmd", rows[1][2])
	assert.Equal(t, "10.00", rows[1][3])
	assert.Equal(t, "N/A", rows[1][4])
	assert.Equal(t, "2024-01-05", rows[1][5])
	assert.Equal(t, "Saude", rows[1][7])
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, EmptyExportMessage+"\n", buf.String())
}
