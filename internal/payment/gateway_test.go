package payment

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalcStatus(t *testing.T) {
	tests := []struct {
		name        string
		randomInt   int
		wantSuccess bool
		wantMessage string
	}{
		{"low roll succeeds", 0, true, ""},
		{"boundary succeeds", 94, true, ""},
		{"95 is unknown failure", 95, false, "unknown reason"},
		{"insufficient funds", 96, false, "insufficient funds"},
		{"card expired", 97, false, "card expired"},
		{"issuer unavailable", 99, false, "issuer unavailable"},
		{"suspected duplicate", 100, false, "suspected duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			success, message := calcStatus(tt.randomInt)
			assert.Equal(t, tt.wantSuccess, success)
			assert.Equal(t, tt.wantMessage, message)
		})
	}
}

type fixedStatus struct {
	success bool
	message string
}

func (f fixedStatus) GetStatus() (bool, string) {
	return f.success, f.message
}

func TestSimulatedGatewayCharge(t *testing.T) {
	gw := NewSimulatedGateway(fixedStatus{success: true})

	result, err := gw.Charge(context.Background(), "ORD-1", "CREDIT_CARD", decimal.NewFromInt(18))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.TransactionID, "TXN_")
}

type slowGateway struct{}

func (slowGateway) Charge(ctx context.Context, _ string, _ string, _ decimal.Decimal) (GatewayResult, error) {
	select {
	case <-ctx.Done():
		return GatewayResult{}, ctx.Err()
	case <-time.After(time.Second):
		return GatewayResult{Success: true}, nil
	}
}

func (slowGateway) Refund(ctx context.Context, _ string, _ decimal.Decimal) (GatewayResult, error) {
	return GatewayResult{Success: true}, nil
}

func TestBreakerGatewayTimeout(t *testing.T) {
	gw := NewBreakerGateway(slowGateway{}, 10*time.Millisecond)

	_, err := gw.Charge(context.Background(), "ORD-1", "CREDIT_CARD", decimal.NewFromInt(18))
	assert.ErrorIs(t, err, ErrGatewayTimeout)
}

func TestBreakerGatewayOpensAfterFailures(t *testing.T) {
	gw := NewBreakerGateway(slowGateway{}, time.Millisecond)

	for i := 0; i < 5; i++ {
		_, err := gw.Charge(context.Background(), "ORD-1", "CREDIT_CARD", decimal.NewFromInt(18))
		require.ErrorIs(t, err, ErrGatewayTimeout)
	}

	// The breaker is open now; the call fails without waiting on the inner
	// gateway.
	start := time.Now()
	_, err := gw.Charge(context.Background(), "ORD-1", "CREDIT_CARD", decimal.NewFromInt(18))
	assert.ErrorIs(t, err, ErrGatewayTimeout)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestBreakerGatewayPassesThrough(t *testing.T) {
	gw := NewBreakerGateway(NewSimulatedGateway(fixedStatus{success: false, message: "card expired"}), time.Second)

	result, err := gw.Charge(context.Background(), "ORD-1", "CREDIT_CARD", decimal.NewFromInt(18))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "card expired", result.Message)
}
