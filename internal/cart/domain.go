package cart

import "time"

// Cart is the per-user mutable item collection. At most one line exists per
// (product, variant) pair.
type Cart struct {
	ID         string    `bson:"_id,omitempty" json:"id,omitempty"`
	UserID     int64     `bson:"user_id" json:"user_id"`
	Lines      []Line    `bson:"lines" json:"lines"`
	CouponCode string    `bson:"coupon_code,omitempty" json:"coupon_code,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

type Line struct {
	ProductID     int64     `bson:"product_id" json:"product_id"`
	VariantID     int64     `bson:"variant_id" json:"variant_id"`
	Quantity      int32     `bson:"quantity" json:"quantity"`
	SavedForLater bool      `bson:"saved_for_later" json:"saved_for_later"`
	AddedAt       time.Time `bson:"added_at" json:"added_at"`
}

// findLine returns the index of the (product, variant) line, or -1.
func (c *Cart) findLine(productID, variantID int64) int {
	for i, line := range c.Lines {
		if line.ProductID == productID && line.VariantID == variantID {
			return i
		}
	}
	return -1
}

// ActiveLines returns the lines that take part in checkout, excluding
// saved-for-later ones.
func (c *Cart) ActiveLines() []Line {
	active := make([]Line, 0, len(c.Lines))
	for _, line := range c.Lines {
		if !line.SavedForLater {
			active = append(active, line)
		}
	}
	return active
}
