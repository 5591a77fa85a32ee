package model

// RecommendationType identifies the rule that produced a recommendation.
type RecommendationType string

const (
	RecommendationVarianceAlert        RecommendationType = "VarianceAlert"
	RecommendationContractOptimization RecommendationType = "ContractOptimization"
	RecommendationExcessAlert          RecommendationType = "ExcessAlert"
	RecommendationAnalysisUnavailable  RecommendationType = "AnalysisUnavailable"
)

// Severity levels shown to the operator.
const (
	SeverityHigh   = "alta"
	SeverityMedium = "media"
	SeverityInfo   = "info"
)

// Recommendation is a single alert for an installation.
type Recommendation struct {
	Type     RecommendationType `json:"type" yaml:"type"`
	Severity string             `json:"severity" yaml:"severity"`
	Message  string             `json:"message" yaml:"message"`
	BillID   string             `json:"bill_id,omitempty" yaml:"bill_id,omitempty"`
}
