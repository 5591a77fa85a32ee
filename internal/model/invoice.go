package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field keys the classifier uses for the canonical invoice columns.
const (
	FieldAmount    = "valor"
	FieldDueDate   = "data_vencimento"
	FieldIssueDate = "data_emissao"
)

// UnknownCategory is the label the classifier reports when it cannot decide.
const UnknownCategory = "desconhecido"

// Invoice is the canonical row written once per ingested document. Its
// fields are never mutated by the ingestion pipeline after the insert.
type Invoice struct {
	ID         int64           `json:"id" yaml:"id"`
	UnitID     int64           `json:"unidade_id" yaml:"unidade_id"`
	CategoryID int64           `json:"categoria_id" yaml:"categoria_id"`
	IssueDate  *time.Time      `json:"data_emissao,omitempty" yaml:"data_emissao,omitempty"`
	DueDate    time.Time       `json:"data_vencimento" yaml:"data_vencimento"`
	Total      decimal.Decimal `json:"valor_total" yaml:"valor_total"`
	SourceFile string          `json:"arquivo_pdf" yaml:"arquivo_pdf"`
	Notes      string          `json:"observacoes" yaml:"observacoes"`
}

// Category is a bill category. Names are unique.
type Category struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"nome" yaml:"nome"`
}
