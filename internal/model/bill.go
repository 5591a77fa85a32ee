package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Bill payment statuses. A bill without a status is pending.
const (
	StatusPending = "pendente"
	StatusPaid    = "pago"
)

// Bill is one row of a module's bill history. Installation is empty when
// the row carries no identifier and DueDate is nil when the stored date is
// missing or unparseable.
type Bill struct {
	ID           string            `json:"id" yaml:"id"`
	Module       string            `json:"modulo" yaml:"modulo"`
	Installation string            `json:"instalacao,omitempty" yaml:"instalacao,omitempty"`
	Amount       decimal.Decimal   `json:"valor" yaml:"valor"`
	DueDate      *time.Time        `json:"data_vencimento,omitempty" yaml:"data_vencimento,omitempty"`
	Status       string            `json:"status,omitempty" yaml:"status,omitempty"`
	Extra        map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// EffectiveStatus returns the bill status, defaulting to pending.
func (b Bill) EffectiveStatus() string {
	s := strings.ToLower(strings.TrimSpace(b.Status))
	if s == "" {
		return StatusPending
	}
	return s
}

// Float parses a module-specific column as a number. It reports false when
// the column is absent, empty or not numeric.
func (b Bill) Float(key string) (float64, bool) {
	raw, ok := b.Extra[key]
	if !ok {
		return 0, false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		d, derr := ParseAmount(raw)
		if derr != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	}
	return f, true
}

// MonthKey returns the bill's due month as YYYY-MM, or "" without a date.
func (b Bill) MonthKey() string {
	if b.DueDate == nil {
		return ""
	}
	return b.DueDate.Format("2006-01")
}
