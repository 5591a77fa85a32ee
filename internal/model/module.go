package model

import "strings"

// Module names of the per-utility bill histories.
const (
	ModuleWater    = "agua"
	ModuleEnergy   = "energia"
	ModuleInternet = "internet"
	ModuleToll     = "semparar"
	ModulePhone    = "telefone"
)

// Energy module columns used by the recommendation rules.
const (
	ColConsumption      = "consumo"
	ColContractedEnergy = "pacote_contratado_kwh"
)

// Module describes one utility's historical bill table. Column names are
// fixed here and never taken from request input.
type Module struct {
	Name               string
	Table              string
	IDColumn           string
	InstallationColumn string
	AmountColumn       string
	DueDateColumn      string
	StatusColumn       string
	Extra              []string
}

var modules = []Module{
	{
		Name:               ModuleWater,
		Table:              "agua",
		IDColumn:           "id_agua",
		InstallationColumn: "instalacao",
		AmountColumn:       "valor",
		DueDateColumn:      "data_vencimento",
		StatusColumn:       "Conta_status",
		Extra:              []string{"consumo", "classe_consumo", "secretaria"},
	},
	{
		Name:               ModuleEnergy,
		Table:              "energia",
		IDColumn:           "id_energia",
		InstallationColumn: "instalacao",
		AmountColumn:       "valor",
		DueDateColumn:      "data_vencimento",
		StatusColumn:       "Conta_status",
		Extra:              []string{ColConsumption, ColContractedEnergy, "secretaria"},
	},
	{
		Name:               ModuleInternet,
		Table:              "internet",
		IDColumn:           "id_internet",
		InstallationColumn: "instalacao",
		AmountColumn:       "valor",
		DueDateColumn:      "data_vencimento",
		StatusColumn:       "Conta_status",
		Extra:              []string{"provedor", "velocidade", "secretaria"},
	},
	{
		Name:               ModuleToll,
		Table:              "semparar",
		IDColumn:           "id_semparar",
		InstallationColumn: "tag",
		AmountColumn:       "valor",
		DueDateColumn:      "data_vencimento",
		StatusColumn:       "Conta_status",
		Extra:              []string{"passagens", "estacionamento", "mensalidade", "departamento"},
	},
	{
		Name:               ModulePhone,
		Table:              "telefone",
		IDColumn:           "id_telefone",
		InstallationColumn: "numero_linha",
		AmountColumn:       "total",
		DueDateColumn:      "data_vencimento",
		StatusColumn:       "status",
		Extra:              []string{"plano", "minutos_utilizados", "dados_utilizados", "secretaria"},
	},
}

// Modules returns every known module in display order.
func Modules() []Module {
	out := make([]Module, len(modules))
	copy(out, modules)
	return out
}

// ModuleNames returns the names of every known module.
func ModuleNames() []string {
	names := make([]string, len(modules))
	for i, m := range modules {
		names[i] = m.Name
	}
	return names
}

// ModuleByName looks a module up by its name, case-insensitively.
func ModuleByName(name string) (Module, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, m := range modules {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}
