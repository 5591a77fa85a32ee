package resilience

import (
	"context"
	"errors"

	"github.com/sells-group/utility-bills/pkg/classifier"
)

// GuardedClassifier wraps a classifier.Client with a circuit breaker. Each
// Classify makes at most one call to the wrapped client.
type GuardedClassifier struct {
	next    classifier.Client
	breaker *CircuitBreaker
}

// NewGuardedClassifier wraps next. Only transport failures and transient
// HTTP statuses count toward opening the circuit.
func NewGuardedClassifier(next classifier.Client, cfg CircuitBreakerConfig) *GuardedClassifier {
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = ClassifierShouldTrip
	}
	return &GuardedClassifier{next: next, breaker: NewCircuitBreaker(cfg)}
}

// Classify implements classifier.Client. A rejected call returns
// ErrCircuitOpen.
func (g *GuardedClassifier) Classify(ctx context.Context, doc classifier.Document) (*classifier.Classification, error) {
	return ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*classifier.Classification, error) {
		return g.next.Classify(ctx, doc)
	})
}

// Breaker exposes the underlying breaker for health reporting.
func (g *GuardedClassifier) Breaker() *CircuitBreaker {
	return g.breaker
}

// ClassifierShouldTrip reports whether a classifier error indicates the
// service is unhealthy.
func ClassifierShouldTrip(err error) bool {
	var ue *classifier.UnavailableError
	if errors.As(err, &ue) {
		return true
	}
	var se *classifier.StatusError
	if errors.As(err, &se) {
		return IsTransientHTTPStatus(se.StatusCode)
	}
	return IsTransientNetwork(err)
}
