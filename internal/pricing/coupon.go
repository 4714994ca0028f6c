package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

// Coupon is a global discount entity. UsageLimit 0 means unlimited;
// UserUsageLimit 0 means unlimited per user.
type Coupon struct {
	Code                  string
	Name                  string
	Description           string
	DiscountType          DiscountType
	DiscountValue         decimal.Decimal
	MinimumOrderAmount    decimal.Decimal
	MaximumDiscountAmount decimal.Decimal
	ValidFrom             time.Time
	ValidUntil            time.Time
	UsageLimit            int
	UsedCount             int
	UserUsageLimit        int
	Active                bool
	FirstTimeUserOnly     bool
}

// Stable reason codes carried by CouponInvalidError.
const (
	ReasonNotFound          = "not_found"
	ReasonInactive          = "inactive"
	ReasonNotStarted        = "not_started"
	ReasonExpired           = "expired"
	ReasonBelowMinimum      = "below_minimum_order"
	ReasonUsageLimitReached = "usage_limit_reached"
	ReasonUserLimitReached  = "user_limit_reached"
	ReasonFirstTimeOnly     = "first_time_users_only"
)

// CouponInvalidError reports why a coupon was rejected. The reason code is
// stable; the message is for humans.
type CouponInvalidError struct {
	Code    string
	Reason  string
	Message string
}

func (e *CouponInvalidError) Error() string {
	return fmt.Sprintf("coupon %q invalid: %s", e.Code, e.Message)
}

func couponInvalid(code, reason, message string) *CouponInvalidError {
	return &CouponInvalidError{Code: code, Reason: reason, Message: message}
}
