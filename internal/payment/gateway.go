package payment

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

type GatewayResult struct {
	TransactionID string
	Success       bool
	Message       string
}

// Gateway abstracts the external payment processor.
type Gateway interface {
	Charge(ctx context.Context, orderRef string, method string, amount decimal.Decimal) (GatewayResult, error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (GatewayResult, error)
}

// StatusSource decides the outcome of a simulated charge. Injectable so
// tests control outcomes deterministically.
type StatusSource interface {
	GetStatus() (success bool, message string)
}

// RandomStatus approves 95% of charges.
type RandomStatus struct{}

func (RandomStatus) GetStatus() (bool, string) {
	randomInt := rand.Intn(101) // 101 because Intn is exclusive of the upper bound
	return calcStatus(randomInt)
}

func calcStatus(randomInt int) (bool, string) {
	if randomInt < 95 {
		return true, ""
	}
	switch randomInt - 95 {
	case 1:
		return false, "insufficient funds"
	case 2:
		return false, "card expired"
	case 3:
		return false, "card reported stolen"
	case 4:
		return false, "issuer unavailable"
	case 5:
		return false, "suspected duplicate"
	default:
		return false, "unknown reason"
	}
}

type SimulatedGateway struct {
	status StatusSource
}

func NewSimulatedGateway(status StatusSource) *SimulatedGateway {
	return &SimulatedGateway{status: status}
}

func (g *SimulatedGateway) Charge(_ context.Context, _ string, _ string, _ decimal.Decimal) (GatewayResult, error) {
	success, message := g.status.GetStatus()
	return GatewayResult{
		TransactionID: NewTransactionID(),
		Success:       success,
		Message:       message,
	}, nil
}

// Refund is always accepted by the simulated processor.
func (g *SimulatedGateway) Refund(_ context.Context, _ string, _ decimal.Decimal) (GatewayResult, error) {
	return GatewayResult{
		TransactionID: NewTransactionID(),
		Success:       true,
	}, nil
}

// BreakerGateway wraps a Gateway in a circuit breaker and a per-call
// deadline. A tripped breaker or an expired deadline surfaces as
// ErrGatewayTimeout since the charge outcome is unknown.
type BreakerGateway struct {
	inner   Gateway
	breaker *gobreaker.CircuitBreaker[GatewayResult]
	timeout time.Duration
}

func NewBreakerGateway(inner Gateway, timeout time.Duration) *BreakerGateway {
	settings := gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerGateway{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[GatewayResult](settings),
		timeout: timeout,
	}
}

func (g *BreakerGateway) Charge(ctx context.Context, orderRef string, method string, amount decimal.Decimal) (GatewayResult, error) {
	return g.execute(ctx, func(ctx context.Context) (GatewayResult, error) {
		return g.inner.Charge(ctx, orderRef, method, amount)
	})
}

func (g *BreakerGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (GatewayResult, error) {
	return g.execute(ctx, func(ctx context.Context) (GatewayResult, error) {
		return g.inner.Refund(ctx, transactionID, amount)
	})
}

func (g *BreakerGateway) execute(ctx context.Context, call func(context.Context) (GatewayResult, error)) (GatewayResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.breaker.Execute(func() (GatewayResult, error) {
		return call(callCtx)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, gobreaker.ErrOpenState) ||
			errors.Is(err, gobreaker.ErrTooManyRequests) {
			return GatewayResult{}, ErrGatewayTimeout
		}
		return GatewayResult{}, err
	}
	return result, nil
}
