// Package pricing computes order money and timing figures. Every function is pure:
// no I/O, no clock reads except where the caller passes "now".
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// ReadyBuffer is added to every estimate for packing and hand-off.
	ReadyBuffer = 5 * time.Minute
	// QueueDelayPerOrder is added for each active order ahead in the kitchen queue.
	QueueDelayPerOrder = 3 * time.Minute
)

// ErrNegativeAmount is returned when a money or rate input is negative.
var ErrNegativeAmount = errors.New("amount must not be negative")

// Totals is the result of ComputeTotals.
type Totals struct {
	Tax   int64 `json:"tax"`
	Total int64 `json:"total"`
}

// ComputeTotals returns tax = round(subtotal × taxRate) (half-up, minor units) and
// total = subtotal + tax + deliveryFee.
func ComputeTotals(subtotal int64, taxRate decimal.Decimal, deliveryFee int64) (Totals, error) {
	if subtotal < 0 || deliveryFee < 0 || taxRate.IsNegative() {
		return Totals{}, fmt.Errorf("%w: subtotal=%d taxRate=%s deliveryFee=%d",
			ErrNegativeAmount, subtotal, taxRate.String(), deliveryFee)
	}
	// Round rounds half away from zero, which is half-up for non-negative values.
	tax := decimal.NewFromInt(subtotal).Mul(taxRate).Round(0).IntPart()
	return Totals{Tax: tax, Total: subtotal + tax + deliveryFee}, nil
}

// LineSubtotal returns unitPrice × quantity.
func LineSubtotal(unitPrice int64, quantity int) int64 {
	return unitPrice * int64(quantity)
}

// Subtotal sums line subtotals.
func Subtotal(lines []int64) int64 {
	var sum int64
	for _, l := range lines {
		sum += l
	}
	return sum
}

// EstimateReadyTime returns now + longest preparation time + ReadyBuffer +
// queueLength × QueueDelayPerOrder. An empty prepTimes list counts as zero.
func EstimateReadyTime(now time.Time, prepTimes []int, queueLength int) time.Time {
	longest := 0
	for _, p := range prepTimes {
		if p > longest {
			longest = p
		}
	}
	if queueLength < 0 {
		queueLength = 0
	}
	return now.
		Add(time.Duration(longest) * time.Minute).
		Add(ReadyBuffer).
		Add(time.Duration(queueLength) * QueueDelayPerOrder)
}

// ValidateMinimumOrder reports whether subtotal meets the configured minimum.
func ValidateMinimumOrder(subtotal, minimum int64) bool {
	return subtotal >= minimum
}

// DeliveryFee returns the configured fee for delivery orders and zero otherwise.
func DeliveryFee(isDelivery bool, configuredFee int64) int64 {
	if !isDelivery {
		return 0
	}
	return configuredFee
}

// ParseTaxRate parses a decimal tax rate such as "0.075".
func ParseTaxRate(s string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid tax rate %q: %w", s, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("tax rate %q must be between 0 and 1", s)
	}
	return rate, nil
}
