package models

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

// ErrInvalidOrderData is returned when an order carries numeric fields that
// cannot be formatted (zero denominator, negative or missing amounts).
var ErrInvalidOrderData = errors.New("invalid order data")

// Token represents an ERC20 token listed on the exchange
type Token struct {
	ID       uint16 `json:"id"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
	Decimals uint8  `json:"decimals"`
}

// Label returns the symbol, falling back to the name and then the address
func (t Token) Label() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	if t.Name != "" {
		return t.Name
	}
	return t.Address
}

// Order is a newly placed order as delivered by the exchange watcher.
// The order sells PriceDenominator units of SellToken for PriceNumerator
// units of BuyToken, both expressed in each token's smallest unit.
type Order struct {
	Owner            string    `json:"owner"`
	Index            uint16    `json:"index"`
	BuyToken         Token     `json:"buy_token"`
	SellToken        Token     `json:"sell_token"`
	ValidFrom        time.Time `json:"valid_from"`
	ValidUntil       time.Time `json:"valid_until"`
	PriceNumerator   *big.Int  `json:"price_numerator"`
	PriceDenominator *big.Int  `json:"price_denominator"`

	// Chain position of the placement, informational only
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
}

// Validate checks the numeric fields used for formatting.
// validFrom <= validUntil is not checked.
func (o *Order) Validate() error {
	if o == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidOrderData)
	}
	if o.PriceNumerator == nil || o.PriceNumerator.Sign() < 0 {
		return fmt.Errorf("%w: price numerator must be a non-negative integer", ErrInvalidOrderData)
	}
	if o.PriceDenominator == nil || o.PriceDenominator.Sign() <= 0 {
		return fmt.Errorf("%w: price denominator must be positive", ErrInvalidOrderData)
	}
	return nil
}

// About describes the node and contract the watcher is attached to
type About struct {
	BlockNumber     uint64 `json:"block_number"`
	NetworkID       string `json:"network_id"`
	NodeInfo        string `json:"node_info"`
	Version         string `json:"version"`
	ContractAddress string `json:"contract_address"`
}
