package models

import (
	"errors"
	"math/big"
	"testing"
)

func TestTokenLabel(t *testing.T) {
	tests := []struct {
		name     string
		token    Token
		expected string
	}{
		{"symbol wins", Token{Address: "0xabc", Symbol: "WETH", Name: "Wrapped Ether"}, "WETH"},
		{"name fallback", Token{Address: "0xabc", Name: "Wrapped Ether"}, "Wrapped Ether"},
		{"address fallback", Token{Address: "0xabc"}, "0xabc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.Label(); got != tt.expected {
				t.Errorf("Label() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name    string
		num     *big.Int
		den     *big.Int
		wantErr bool
	}{
		{"valid", big.NewInt(2), big.NewInt(1), false},
		{"zero numerator", big.NewInt(0), big.NewInt(1), false},
		{"zero denominator", big.NewInt(2), big.NewInt(0), true},
		{"negative denominator", big.NewInt(2), big.NewInt(-1), true},
		{"negative numerator", big.NewInt(-2), big.NewInt(1), true},
		{"missing numerator", nil, big.NewInt(1), true},
		{"missing denominator", big.NewInt(1), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := &Order{PriceNumerator: tt.num, PriceDenominator: tt.den}
			err := order.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidOrderData) {
					t.Errorf("expected ErrInvalidOrderData, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestNilOrderValidate(t *testing.T) {
	var order *Order
	if err := order.Validate(); !errors.Is(err, ErrInvalidOrderData) {
		t.Errorf("expected ErrInvalidOrderData for nil order, got %v", err)
	}
}
