package pricing

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/lugondev/dex-order-alert/pkg/models"
)

const (
	// FeeDenominator is the exchange fee denominator, the fee is 1/FeeDenominator
	FeeDenominator = 1000

	// DisplayDecimals is the number of fractional digits kept in headlines
	DisplayDecimals = 4
)

var (
	feeDenominator = big.NewInt(FeeDenominator)
	fillFactor     = big.NewInt(FeeDenominator + 2)
)

// FormattedAmount holds the two renderings of a raw token amount
type FormattedAmount struct {
	// Display is truncated to DisplayDecimals and grouped by thousands
	Display string
	// Full keeps every fractional digit and no grouping, suitable for links
	Full string
}

// FormatAmount renders a raw integer amount with the given token decimals
func FormatAmount(raw *big.Int, decimals uint8) (FormattedAmount, error) {
	if err := checkAmount(raw); err != nil {
		return FormattedAmount{}, err
	}

	value := decimal.NewFromBigInt(raw, -int32(decimals))

	return FormattedAmount{
		Display: formatDisplay(value),
		Full:    value.StringFixed(int32(decimals)),
	}, nil
}

// FormatAmountFull renders a raw integer amount with all of its fractional digits
func FormatAmountFull(raw *big.Int, decimals uint8) (string, error) {
	amount, err := FormatAmount(raw, decimals)
	if err != nil {
		return "", err
	}
	return amount.Full, nil
}

// FillAmount inflates a raw amount by 1 + 2/FeeDenominator, rounding up.
// Matching only pairs orders whose spread exceeds two fees, so a link that
// fills an order exactly would never be executed.
func FillAmount(raw *big.Int) (*big.Int, error) {
	if err := checkAmount(raw); err != nil {
		return nil, err
	}

	scaled := new(big.Int).Mul(raw, fillFactor)
	quo, rem := new(big.Int).QuoRem(scaled, feeDenominator, new(big.Int))
	if rem.Sign() > 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo, nil
}

func checkAmount(raw *big.Int) error {
	if raw == nil {
		return fmt.Errorf("%w: missing amount", models.ErrInvalidOrderData)
	}
	if raw.Sign() < 0 {
		return fmt.Errorf("%w: negative amount %s", models.ErrInvalidOrderData, raw.String())
	}
	return nil
}

// formatDisplay truncates to DisplayDecimals, drops trailing zeros and groups
// the integer part by thousands
func formatDisplay(value decimal.Decimal) string {
	truncated := value.Truncate(DisplayDecimals)
	whole := humanize.BigComma(truncated.BigInt())

	fixed := truncated.StringFixed(DisplayDecimals)
	idx := strings.IndexByte(fixed, '.')
	if idx < 0 {
		return whole
	}

	frac := strings.TrimRight(fixed[idx+1:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
