package resilience

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/utility-bills/pkg/classifier"
)

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, doc classifier.Document) (*classifier.Classification, error) {
	args := m.Called(ctx, doc)
	c, _ := args.Get(0).(*classifier.Classification)
	return c, args.Error(1)
}

func TestGuardedClassifier_OpensOnTransportFailures(t *testing.T) {
	next := new(mockClassifier)
	next.On("Classify", mock.Anything, mock.Anything).
		Return(nil, &classifier.UnavailableError{Err: syscall.ECONNREFUSED}).Times(2)

	g := NewGuardedClassifier(next, CircuitBreakerConfig{Name: "classifier", FailureThreshold: 2})
	for i := 0; i < 2; i++ {
		_, err := g.Classify(context.Background(), classifier.Document{Name: "a.pdf"})
		var ue *classifier.UnavailableError
		require.ErrorAs(t, err, &ue)
	}

	_, err := g.Classify(context.Background(), classifier.Document{Name: "a.pdf"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, CircuitOpen, g.Breaker().State())
	next.AssertNumberOfCalls(t, "Classify", 2)
}

func TestGuardedClassifier_ClientErrorsDoNotTrip(t *testing.T) {
	next := new(mockClassifier)
	next.On("Classify", mock.Anything, mock.Anything).
		Return(nil, &classifier.StatusError{StatusCode: http.StatusBadRequest})

	g := NewGuardedClassifier(next, CircuitBreakerConfig{FailureThreshold: 1})
	for i := 0; i < 3; i++ {
		_, err := g.Classify(context.Background(), classifier.Document{})
		var se *classifier.StatusError
		require.ErrorAs(t, err, &se)
	}
	assert.Equal(t, CircuitClosed, g.Breaker().State())
}

func TestGuardedClassifier_PassesResult(t *testing.T) {
	want := &classifier.Classification{Category: "agua", Details: map[string]any{}}
	next := new(mockClassifier)
	next.On("Classify", mock.Anything, classifier.Document{Name: "x.pdf"}).Return(want, nil).Once()

	g := NewGuardedClassifier(next, DefaultCircuitBreakerConfig())
	got, err := g.Classify(context.Background(), classifier.Document{Name: "x.pdf"})
	require.NoError(t, err)
	assert.Same(t, want, got)
	next.AssertExpectations(t)
}

func TestClassifierShouldTrip(t *testing.T) {
	assert.True(t, ClassifierShouldTrip(&classifier.UnavailableError{Err: errors.New("dial")}))
	assert.True(t, ClassifierShouldTrip(&classifier.StatusError{StatusCode: 503}))
	assert.False(t, ClassifierShouldTrip(&classifier.StatusError{StatusCode: 404}))
	assert.True(t, ClassifierShouldTrip(syscall.ECONNRESET))
	assert.False(t, ClassifierShouldTrip(errors.New("decode response")))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}
