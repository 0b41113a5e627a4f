package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lugondev/dex-order-alert/internal/logger"
	"github.com/lugondev/dex-order-alert/internal/pricing"
	"github.com/lugondev/dex-order-alert/internal/telegram"
	"github.com/lugondev/dex-order-alert/internal/tradewindow"
	"github.com/lugondev/dex-order-alert/pkg/models"
)

// Notifier delivers a Markdown message to the announcement channel
type Notifier interface {
	SendMarkdown(ctx context.Context, text string) error
}

// Config holds event handler configuration
type Config struct {
	// SendTimeout bounds a single delivery
	SendTimeout time.Duration
	// Now returns the processing time, time.Now when nil
	Now func() time.Time
}

// EventHandler turns new orders into channel announcements.
//
// Orders are composed synchronously in the caller's goroutine; delivery runs
// in the background and is at most once. A failed delivery is logged and the
// announcement is lost, which is acceptable for this feed.
type EventHandler struct {
	notifier  Notifier
	formatter *telegram.Formatter
	log       logger.Logger
	config    Config

	inflight sync.WaitGroup
}

// NewEventHandler creates a new event handler
func NewEventHandler(notifier Notifier, formatter *telegram.Formatter, log logger.Logger, cfg Config) *EventHandler {
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &EventHandler{
		notifier:  notifier,
		formatter: formatter,
		log:       log.With(logger.F("component", "handler")),
		config:    cfg,
	}
}

// OnNewOrder composes the announcement for an order and hands it to the
// notifier without waiting for the result. Malformed orders are rejected with
// models.ErrInvalidOrderData and nothing is sent.
func (h *EventHandler) OnNewOrder(ctx context.Context, order *models.Order) error {
	eventID := uuid.NewString()
	ctx = logger.ContextWithEventID(ctx, eventID)
	if order != nil && order.TxHash != "" {
		ctx = logger.ContextWithTxHash(ctx, order.TxHash)
	}
	log := h.log.WithContext(ctx)

	message, err := h.Compose(order, h.config.Now())
	if err != nil {
		log.Error("dropping order", logger.F("error", err))
		return err
	}

	log.Info("announcing new order",
		logger.F("owner", order.Owner),
		logger.F("sell_token", order.SellToken.Label()),
		logger.F("buy_token", order.BuyToken.Label()),
	)

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()

		// Delivery outlives the event callback, only the values are kept
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.config.SendTimeout)
		defer cancel()

		if err := h.notifier.SendMarkdown(sendCtx, message); err != nil {
			log.Error("failed to deliver announcement", logger.F("error", err))
			return
		}
		log.Debug("announcement delivered")
	}()

	return nil
}

// OnError logs subscription level failures reported by the order source.
// Recovery is left to the source.
func (h *EventHandler) OnError(err error) {
	h.log.Error("order subscription error", logger.F("error", err))
}

// Compose builds the announcement for an order as seen at now
func (h *EventHandler) Compose(order *models.Order, now time.Time) (string, error) {
	if err := order.Validate(); err != nil {
		return "", err
	}

	price, err := pricing.OrderPrice(order)
	if err != nil {
		return "", err
	}

	sellAmount, err := pricing.FormatAmount(order.PriceDenominator, order.SellToken.Decimals)
	if err != nil {
		return "", fmt.Errorf("sell amount: %w", err)
	}
	buyAmount, err := pricing.FormatAmount(order.PriceNumerator, order.BuyToken.Decimals)
	if err != nil {
		return "", fmt.Errorf("buy amount: %w", err)
	}

	fillRaw, err := pricing.FillAmount(order.PriceNumerator)
	if err != nil {
		return "", fmt.Errorf("fill amount: %w", err)
	}
	fillSell, err := pricing.FormatAmountFull(fillRaw, order.BuyToken.Decimals)
	if err != nil {
		return "", fmt.Errorf("fill amount: %w", err)
	}

	return h.formatter.FormatOrderPlacement(telegram.OrderAnnouncement{
		SellLabel:      order.SellToken.Label(),
		BuyLabel:       order.BuyToken.Label(),
		Price:          pricing.FormatPrice(price),
		SellAmount:     sellAmount.Display,
		BuyAmount:      buyAmount.Display,
		FillSellAmount: fillSell,
		FillBuyAmount:  sellAmount.Full,
		Window:         tradewindow.Describe(order.ValidFrom, order.ValidUntil, now),
	}), nil
}

// Stop waits for in-flight deliveries, giving up after timeout
func (h *EventHandler) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Debug("all deliveries finished")
	case <-time.After(timeout):
		h.log.Warn("delivery shutdown timeout, some announcements may be lost")
	}
}
