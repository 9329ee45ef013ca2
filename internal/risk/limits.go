// Package risk implements the static order-admission limits of
// spec.md §6's risk_management config block. It deliberately excludes
// anything beyond flat caps — portfolio-wide exposure, drawdown, and
// per-strategy risk scoring are out of scope (spec.md's Non-goals:
// "risk calculations beyond static limits").
package risk

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kestreltrading/engine-core/pkg/types"
)

// ErrOrderSizeExceeded is returned when an order's quantity exceeds
// Limits.MaxOrderSize.
var ErrOrderSizeExceeded = errors.New("order quantity exceeds max_order_size")

// ErrPositionValueExceeded is returned when a limit order would push a
// symbol's projected position value over Limits.MaxPositionValueUSD.
var ErrPositionValueExceeded = errors.New("projected position value exceeds max_position_value_usd")

// Limits holds the two static caps spec.md §6 configures.
type Limits struct {
	MaxOrderSize        float64
	MaxPositionValueUSD float64
}

// Checker validates an order request against Limits before the Order
// Manager admits it. A zero-valued limit (<= 0) disables that check.
type Checker struct {
	logger zerolog.Logger
	limits Limits
}

// NewChecker creates a Checker for the given static limits.
func NewChecker(limits Limits, logger zerolog.Logger) *Checker {
	return &Checker{
		logger: logger.With().Str("component", "risk_checker").Logger(),
		limits: limits,
	}
}

// Validate checks order against the configured static limits. currentPosition
// is the symbol's net position before this order is applied. For MARKET
// orders the position-value check is skipped — no price is known until the
// fill arrives, matching spec.md's "beyond static limits" exclusion.
func (c *Checker) Validate(order types.Order, currentPosition float64) error {
	if c.limits.MaxOrderSize > 0 && order.Quantity > c.limits.MaxOrderSize {
		c.logger.Warn().
			Str("symbol", order.Symbol).
			Float64("quantity", order.Quantity).
			Float64("max_order_size", c.limits.MaxOrderSize).
			Msg("order rejected: exceeds max_order_size")
		return fmt.Errorf("%w: %.2f > %.2f", ErrOrderSizeExceeded, order.Quantity, c.limits.MaxOrderSize)
	}

	if order.OrderType != types.OrderTypeLimit || c.limits.MaxPositionValueUSD <= 0 {
		return nil
	}

	projected := currentPosition
	if order.Side == types.SideBuy {
		projected += order.Quantity
	} else {
		projected -= order.Quantity
	}
	projectedValue := absFloat(projected) * order.LimitPrice

	if projectedValue > c.limits.MaxPositionValueUSD {
		c.logger.Warn().
			Str("symbol", order.Symbol).
			Float64("projected_value", projectedValue).
			Float64("max_position_value_usd", c.limits.MaxPositionValueUSD).
			Msg("order rejected: exceeds max_position_value_usd")
		return fmt.Errorf("%w: %.2f > %.2f", ErrPositionValueExceeded, projectedValue, c.limits.MaxPositionValueUSD)
	}

	return nil
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
