package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetailStrategy(t *testing.T) {
	t.Parallel()

	g := GenericStrategy()
	assert.False(t, g.Typed())
	assert.Equal(t, GenericDetailTable, g.Table)
	assert.Equal(t, "generic", g.String())

	s := TypedStrategy("energia_detalhes", []string{"consumo_kwh", "bandeira"})
	assert.True(t, s.Typed())
	assert.True(t, s.HasColumn("bandeira"))
	assert.False(t, s.HasColumn("fatura_id"))
	assert.Equal(t, []string{"bandeira", "consumo_kwh"}, s.Columns())
	assert.Equal(t, "typed:energia_detalhes", s.String())
}

func TestModuleByName(t *testing.T) {
	t.Parallel()

	m, ok := ModuleByName(" Telefone ")
	require.True(t, ok)
	assert.Equal(t, "numero_linha", m.InstallationColumn)
	assert.Equal(t, "total", m.AmountColumn)

	_, ok = ModuleByName("gas")
	assert.False(t, ok)

	assert.Equal(t, []string{"agua", "energia", "internet", "semparar", "telefone"}, ModuleNames())
}

func TestBill(t *testing.T) {
	t.Parallel()

	b := Bill{Extra: map[string]string{"consumo": "350", "pacote_contratado_kwh": "1.000,5", "vazio": ""}}
	assert.Equal(t, StatusPending, b.EffectiveStatus())
	b.Status = " Pago "
	assert.Equal(t, StatusPaid, b.EffectiveStatus())

	f, ok := b.Float("consumo")
	require.True(t, ok)
	assert.InDelta(t, 350.0, f, 1e-9)

	f, ok = b.Float("pacote_contratado_kwh")
	require.True(t, ok)
	assert.InDelta(t, 1000.5, f, 1e-9)

	_, ok = b.Float("vazio")
	assert.False(t, ok)
	_, ok = b.Float("ausente")
	assert.False(t, ok)

	assert.Equal(t, "", b.MonthKey())
	d := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	b.DueDate = &d
	assert.Equal(t, "2024-02", b.MonthKey())
}
