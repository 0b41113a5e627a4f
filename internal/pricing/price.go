// Package pricing turns raw on-chain order numbers into decimal prices and
// human readable token amounts.
package pricing

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/lugondev/dex-order-alert/pkg/models"
)

// NormalizePrice returns how many units of the buy token one unit of the sell
// token is worth. Numerator and denominator are in each token's smallest unit,
// so the difference in decimals is neutralized before dividing.
func NormalizePrice(numerator, denominator *big.Int, buyDecimals, sellDecimals uint8) (decimal.Decimal, error) {
	if numerator == nil || numerator.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("%w: price numerator must be a non-negative integer", models.ErrInvalidOrderData)
	}
	if denominator == nil || denominator.Sign() == 0 {
		return decimal.Zero, fmt.Errorf("%w: division by zero price denominator", models.ErrInvalidOrderData)
	}
	if denominator.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("%w: negative price denominator", models.ErrInvalidOrderData)
	}

	num := decimal.NewFromBigInt(numerator, 0)
	den := decimal.NewFromBigInt(denominator, 0)

	if buyDecimals >= sellDecimals {
		factor := decimal.New(1, int32(buyDecimals-sellDecimals))
		return num.Div(den.Mul(factor)), nil
	}

	factor := decimal.New(1, int32(sellDecimals-buyDecimals))
	return num.Mul(factor).Div(den), nil
}

// OrderPrice normalizes the price of an order
func OrderPrice(order *models.Order) (decimal.Decimal, error) {
	return NormalizePrice(order.PriceNumerator, order.PriceDenominator, order.BuyToken.Decimals, order.SellToken.Decimals)
}

// FormatPrice renders a normalized price without trailing zeros
func FormatPrice(price decimal.Decimal) string {
	return price.String()
}
