package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"pending to confirmed", StatusPending, StatusConfirmed, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"confirmed to processing", StatusConfirmed, StatusProcessing, true},
		{"confirmed to cancelled", StatusConfirmed, StatusCancelled, true},
		{"processing to shipped", StatusProcessing, StatusShipped, true},
		{"shipped to out for delivery", StatusShipped, StatusOutForDelivery, true},
		{"out for delivery to delivered", StatusOutForDelivery, StatusDelivered, true},
		{"delivered to returned", StatusDelivered, StatusReturned, true},
		{"returned to refunded", StatusReturned, StatusRefunded, true},
		{"pending to shipped skips steps", StatusPending, StatusShipped, false},
		{"processing to cancelled too late", StatusProcessing, StatusCancelled, false},
		{"shipped to cancelled too late", StatusShipped, StatusCancelled, false},
		{"delivered to refunded skips return", StatusDelivered, StatusRefunded, false},
		{"cancelled is terminal", StatusCancelled, StatusPending, false},
		{"refunded is terminal", StatusRefunded, StatusReturned, false},
		{"backwards move", StatusShipped, StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransitionTo(tt.from, tt.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusDelivered.IsTerminal())
}
