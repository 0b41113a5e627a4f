package telegram

import (
	"fmt"
	"strings"

	"github.com/lugondev/dex-order-alert/pkg/models"
)

// OrderAnnouncement holds the already formatted parts of a new order message
type OrderAnnouncement struct {
	SellLabel string
	BuyLabel  string

	// Price of one sell token in buy tokens
	Price string

	// Headline amounts
	SellAmount string
	BuyAmount  string

	// Full precision amounts for the fill link. The filler sells
	// FillSellAmount of the buy token and buys FillBuyAmount of the sell token.
	FillSellAmount string
	FillBuyAmount  string

	// Window is the trade window description
	Window string
}

// Formatter helps format messages for Telegram
type Formatter struct {
	baseURL string
}

// NewFormatter creates a new message formatter linking to the given trading UI
func NewFormatter(baseTradeURL string) *Formatter {
	return &Formatter{baseURL: strings.TrimRight(baseTradeURL, "/")}
}

// FormatOrderPlacement formats a new order announcement.
// Token labels are not escaped.
func (f *Formatter) FormatOrderPlacement(a OrderAnnouncement) string {
	return fmt.Sprintf("Sell %s `%s` for %s `%s`\n\n"+
		"Price: 1 `%s` = %s `%s`\n"+
		"%s\n\n"+
		"Fill the order here: %s",
		a.SellAmount, a.SellLabel, a.BuyAmount, a.BuyLabel,
		a.SellLabel, a.Price, a.BuyLabel,
		a.Window,
		f.TradeURL(a.BuyLabel, a.SellLabel, a.FillSellAmount, a.FillBuyAmount),
	)
}

// TradeURL builds the deep link that fills an order
func (f *Formatter) TradeURL(buyLabel, sellLabel, sellAmount, buyAmount string) string {
	return fmt.Sprintf("%s/trade/%s-%s?sell=%s&buy=%s", f.baseURL, buyLabel, sellLabel, sellAmount, buyAmount)
}

// FormatAbout formats node and contract information
func (f *Formatter) FormatAbout(about *models.About) string {
	return fmt.Sprintf(`*About*

*Version:* `+"`%s`"+`
*Contract:* `+"`%s`"+`
*Network:* `+"`%s`"+`
*Block:* `+"`%d`"+`
*Node:* `+"`%s`",
		about.Version,
		about.ContractAddress,
		about.NetworkID,
		about.BlockNumber,
		about.NodeInfo,
	)
}
