package exchange

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/lugondev/dex-order-alert/pkg/models"
)

// Minimal ABI of the batch exchange: the order placement event and the token registry
const exchangeABIJSON = `[
	{"anonymous":false,"name":"OrderPlacement","type":"event","inputs":[
		{"indexed":true,"name":"owner","type":"address"},
		{"indexed":false,"name":"index","type":"uint16"},
		{"indexed":true,"name":"buyToken","type":"uint16"},
		{"indexed":true,"name":"sellToken","type":"uint16"},
		{"indexed":false,"name":"validFrom","type":"uint32"},
		{"indexed":false,"name":"validUntil","type":"uint32"},
		{"indexed":false,"name":"priceNumerator","type":"uint128"},
		{"indexed":false,"name":"priceDenominator","type":"uint128"}
	]},
	{"constant":true,"name":"tokenIdToAddressMap","type":"function","stateMutability":"view",
		"inputs":[{"name":"id","type":"uint16"}],
		"outputs":[{"name":"","type":"address"}]}
]`

const erc20ABIJSON = `[
	{"constant":true,"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"constant":true,"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"constant":true,"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

var (
	exchangeABI = mustParseABI(exchangeABIJSON)
	erc20ABI    = mustParseABI(erc20ABIJSON)

	orderPlacementTopic = exchangeABI.Events["OrderPlacement"].ID
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid contract ABI: %v", err))
	}
	return parsed
}

// orderPlacementData holds the non indexed fields of an OrderPlacement log
type orderPlacementData struct {
	Index            uint16
	ValidFrom        uint32
	ValidUntil       uint32
	PriceNumerator   *big.Int
	PriceDenominator *big.Int
}

// orderPlacement is a decoded OrderPlacement log
type orderPlacement struct {
	orderPlacementData
	Owner     common.Address
	BuyToken  uint16
	SellToken uint16
}

// decodeOrderPlacement decodes a raw log; malformed logs yield ErrInvalidOrderData
func decodeOrderPlacement(lg types.Log) (*orderPlacement, error) {
	if len(lg.Topics) != 4 || lg.Topics[0] != orderPlacementTopic {
		return nil, fmt.Errorf("%w: not an OrderPlacement log", models.ErrInvalidOrderData)
	}

	var ev orderPlacement
	if err := exchangeABI.UnpackIntoInterface(&ev.orderPlacementData, "OrderPlacement", lg.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidOrderData, err)
	}

	buyToken, err := topicToTokenID(lg.Topics[2])
	if err != nil {
		return nil, err
	}
	sellToken, err := topicToTokenID(lg.Topics[3])
	if err != nil {
		return nil, err
	}

	ev.Owner = common.BytesToAddress(lg.Topics[1].Bytes())
	ev.BuyToken = buyToken
	ev.SellToken = sellToken

	return &ev, nil
}

func topicToTokenID(topic common.Hash) (uint16, error) {
	n := new(big.Int).SetBytes(topic.Bytes())
	if !n.IsUint64() || n.Uint64() > 0xffff {
		return 0, fmt.Errorf("%w: token id %s out of range", models.ErrInvalidOrderData, n)
	}
	return uint16(n.Uint64()), nil
}
