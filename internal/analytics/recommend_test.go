package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/utility-bills/internal/model"
)

func energyBill(id, inst, amount, consumo, pacote string, month int) model.Bill {
	b := bill(id, inst, amount, date(2024, time.Month(1+(month-1)%12), 15))
	b.Extra = map[string]string{model.ColConsumption: consumo, model.ColContractedEnergy: pacote}
	return b
}

func typesOf(recs []model.Recommendation) []model.RecommendationType {
	out := make([]model.RecommendationType, len(recs))
	for i, r := range recs {
		out[i] = r.Type
	}
	return out
}

func TestEvaluate_ContractOptimization(t *testing.T) {
	recs := Evaluate(Annotate([]model.Bill{energyBill("1", "I1", "100", "150", "300", 1)}), model.ModuleEnergy, DefaultThresholds())
	require.Len(t, recs["I1"], 1)
	r := recs["I1"][0]
	assert.Equal(t, model.RecommendationContractOptimization, r.Type)
	assert.Equal(t, model.SeverityMedium, r.Severity)
	assert.Contains(t, r.Message, "Apenas 50,0% do pacote de 300 kWh")
	assert.Contains(t, r.Message, "economia de 150 kWh")
	assert.Equal(t, "1", r.BillID)
}

func TestEvaluate_ExcessAlert(t *testing.T) {
	recs := Evaluate(Annotate([]model.Bill{energyBill("1", "I1", "100", "350", "300", 5)}), model.ModuleEnergy, DefaultThresholds())
	require.Len(t, recs["I1"], 1)
	assert.Equal(t, model.RecommendationExcessAlert, recs["I1"][0].Type)
	assert.Equal(t, model.SeverityHigh, recs["I1"][0].Severity)
	assert.Contains(t, recs["I1"][0].Message, "excedeu o pacote em 50 kWh no mês 05/2024")
}

func TestEvaluate_VarianceAlertAccumulates(t *testing.T) {
	bills := []model.Bill{
		energyBill("1", "I1", "1000", "280", "300", 1),
		energyBill("2", "I1", "1250", "350", "300", 2),
	}
	recs := Evaluate(Annotate(bills), model.ModuleEnergy, DefaultThresholds())
	require.Len(t, recs["I1"], 2)
	assert.Equal(t, []model.RecommendationType{
		model.RecommendationVarianceAlert,
		model.RecommendationExcessAlert,
	}, typesOf(recs["I1"]))

	alert := recs["I1"][0]
	assert.Equal(t, model.SeverityHigh, alert.Severity)
	assert.Contains(t, alert.Message, "Aumento acentuado no consumo (+25.00%) no mês de 02/2024")
	assert.Contains(t, alert.Message, "R$ 1.250,00")
}

func TestEvaluate_DecreaseAndThresholdBoundary(t *testing.T) {
	bills := []model.Bill{
		bill("1", "I1", "100", date(2024, 1, 1)),
		bill("2", "I1", "120", date(2024, 2, 1)),
		bill("3", "I1", "60", date(2024, 3, 1)),
	}
	recs := Evaluate(Annotate(bills), model.ModuleEnergy, DefaultThresholds())
	require.Len(t, recs["I1"], 1, "a change of exactly 20 percent must not fire")
	assert.Contains(t, recs["I1"][0].Message, "Redução acentuado")
	assert.Equal(t, "3", recs["I1"][0].BillID)
}

func TestEvaluate_ThresholdUsesDisplayedVariance(t *testing.T) {
	bills := []model.Bill{
		bill("1", "I1", "1000.00", date(2024, 1, 1)),
		bill("2", "I1", "1200.04", date(2024, 2, 1)),
	}
	annotated := Annotate(bills)
	require.Equal(t, "+20.00%", annotated[1].Variance)
	assert.Empty(t, Evaluate(annotated, model.ModuleEnergy, DefaultThresholds()))

	bills[1].Amount = decimalFrom("1200.10")
	annotated = Annotate(bills)
	require.Equal(t, "+20.01%", annotated[1].Variance)
	recs := Evaluate(annotated, model.ModuleEnergy, DefaultThresholds())
	require.Len(t, recs["I1"], 1)
	assert.Contains(t, recs["I1"][0].Message, "(+20.01%)")
}

func TestEvaluate_MissingCapacitySkipsContractRules(t *testing.T) {
	b := bill("1", "I1", "100", date(2024, 1, 1))
	b.Extra = map[string]string{model.ColConsumption: "10"}
	recs := Evaluate(Annotate([]model.Bill{b}), model.ModuleEnergy, DefaultThresholds())
	assert.Empty(t, recs)
}

func TestEvaluate_UnidentifiedInstallationLabel(t *testing.T) {
	recs := Evaluate(Annotate([]model.Bill{energyBill("1", "", "100", "400", "300", 1)}), model.ModuleEnergy, DefaultThresholds())
	assert.Len(t, recs[UnidentifiedInstallation], 1)
}

func TestEvaluate_OtherModulesGetNotice(t *testing.T) {
	bills := []model.Bill{
		bill("1", "A", "10", date(2024, 1, 1)),
		bill("2", "A", "90", date(2024, 2, 1)),
		bill("3", "B", "10", date(2024, 1, 1)),
	}
	recs := Evaluate(Annotate(bills), model.ModuleWater, Thresholds{})
	require.Len(t, recs, 2)
	for _, inst := range []string{"A", "B"} {
		require.Len(t, recs[inst], 1)
		assert.Equal(t, model.RecommendationAnalysisUnavailable, recs[inst][0].Type)
		assert.Equal(t, model.SeverityInfo, recs[inst][0].Severity)
		assert.Contains(t, recs[inst][0].Message, "'agua'")
	}
}

func TestFormatBRL(t *testing.T) {
	assert.Equal(t, "1.234,56", FormatBRL(decimalFrom("1234.56")))
	assert.Equal(t, "0,50", FormatBRL(decimalFrom("0.5")))
}
