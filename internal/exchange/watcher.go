package exchange

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/lugondev/dex-order-alert/internal/logger"
	"github.com/lugondev/dex-order-alert/pkg/models"
)

var (
	ErrSubscription = errors.New("order subscription failed")
	ErrMaxRetries   = errors.New("max resubscribe retries exceeded")
)

// DefaultBatchDuration is the length of an exchange batch, order validity is
// expressed in batch ids
const DefaultBatchDuration = 300 * time.Second

// Config holds order watcher configuration
type Config struct {
	NodeURL           string
	ContractAddress   string
	ReconnectInterval time.Duration
	MaxRetries        int // consecutive failures before giving up, 0 retries forever
	BatchDuration     time.Duration
	Version           string
}

// OrderHandler receives orders and subscription failures.
// Calls are made from a single goroutine, one at a time.
type OrderHandler interface {
	OnNewOrder(ctx context.Context, order *models.Order) error
	OnError(err error)
}

// chainClient is the subset of ethclient.Client used by the watcher
type chainClient interface {
	ethereum.ContractCaller
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	BlockNumber(ctx context.Context) (uint64, error)
	NetworkID(ctx context.Context) (*big.Int, error)
}

// Watcher streams newly placed orders of the exchange contract
type Watcher struct {
	config   Config
	client   chainClient
	rpc      *rpc.Client
	contract common.Address
	tokens   *tokenResolver
	log      logger.Logger
}

// Dial connects to the node and creates a watcher for the configured contract
func Dial(ctx context.Context, cfg Config, cache TokenCache, log logger.Logger) (*Watcher, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.NodeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node: %w", err)
	}

	w := newWatcher(cfg, ethclient.NewClient(rpcClient), cache, log)
	w.rpc = rpcClient

	w.log.Info("connected to node",
		logger.F("contract", w.contract.Hex()),
	)
	return w, nil
}

func newWatcher(cfg Config, client chainClient, cache TokenCache, log logger.Logger) *Watcher {
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.BatchDuration == 0 {
		cfg.BatchDuration = DefaultBatchDuration
	}

	contract := common.HexToAddress(cfg.ContractAddress)
	log = log.With(logger.F("component", "exchange"))

	return &Watcher{
		config:   cfg,
		client:   client,
		contract: contract,
		tokens:   newTokenResolver(client, contract, cache, log),
		log:      log,
	}
}

// WatchOrderPlacement delivers every new order to h until ctx is cancelled.
// Subscription failures are reported to h.OnError and followed by a
// resubscription after the reconnect interval.
func (w *Watcher) WatchOrderPlacement(ctx context.Context, h OrderHandler) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{w.contract},
		Topics:    [][]common.Hash{{orderPlacementTopic}},
	}

	failures := 0
	for {
		logs := make(chan types.Log, 64)
		sub, err := w.client.SubscribeFilterLogs(ctx, query, logs)
		if err == nil {
			failures = 0
			w.log.Info("watching order placements")

			err = w.consume(ctx, sub, logs, h)
			sub.Unsubscribe()
		}

		if ctx.Err() != nil {
			w.log.Info("stopped watching order placements")
			return nil
		}

		failures++
		h.OnError(fmt.Errorf("%w: %v", ErrSubscription, err))

		if w.config.MaxRetries > 0 && failures >= w.config.MaxRetries {
			return fmt.Errorf("%w: %d consecutive failures", ErrMaxRetries, failures)
		}

		w.log.Warn("resubscribing to order placements",
			logger.F("attempt", failures),
			logger.F("interval", w.config.ReconnectInterval.String()),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.config.ReconnectInterval):
		}
	}
}

// consume handles logs until the subscription fails or ctx is cancelled
func (w *Watcher) consume(ctx context.Context, sub ethereum.Subscription, logs <-chan types.Log, h OrderHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case lg := <-logs:
			w.handleLog(ctx, lg, h)
		}
	}
}

// handleLog turns a log into an order and hands it to h
func (w *Watcher) handleLog(ctx context.Context, lg types.Log, h OrderHandler) {
	log := w.log.With(
		logger.F("tx_hash", lg.TxHash.Hex()),
		logger.F("block", lg.BlockNumber),
	)

	if lg.Removed {
		log.Debug("skipping order placement removed by reorg")
		return
	}

	order, err := w.buildOrder(ctx, lg)
	if err != nil {
		log.Error("dropping order placement", logger.F("error", err))
		return
	}

	if err := h.OnNewOrder(ctx, order); err != nil {
		log.Warn("order rejected by handler", logger.F("error", err))
	}
}

// buildOrder decodes a log and resolves its tokens
func (w *Watcher) buildOrder(ctx context.Context, lg types.Log) (*models.Order, error) {
	ev, err := decodeOrderPlacement(lg)
	if err != nil {
		return nil, err
	}

	buyToken, err := w.tokens.Resolve(ctx, ev.BuyToken)
	if err != nil {
		return nil, fmt.Errorf("buy token: %w", err)
	}
	sellToken, err := w.tokens.Resolve(ctx, ev.SellToken)
	if err != nil {
		return nil, fmt.Errorf("sell token: %w", err)
	}

	order := &models.Order{
		Owner:            ev.Owner.Hex(),
		Index:            ev.Index,
		BuyToken:         buyToken,
		SellToken:        sellToken,
		ValidFrom:        w.batchTime(ev.ValidFrom),
		ValidUntil:       w.batchTime(ev.ValidUntil),
		PriceNumerator:   ev.PriceNumerator,
		PriceDenominator: ev.PriceDenominator,
		TxHash:           lg.TxHash.Hex(),
		BlockNumber:      lg.BlockNumber,
	}

	if err := order.Validate(); err != nil {
		return nil, err
	}
	return order, nil
}

// batchTime converts a batch id to the time the batch starts
func (w *Watcher) batchTime(batchID uint32) time.Time {
	seconds := int64(batchID) * int64(w.config.BatchDuration/time.Second)
	return time.Unix(seconds, 0).UTC()
}

// GetAbout reports the node, network and contract being watched
func (w *Watcher) GetAbout(ctx context.Context) (*models.About, error) {
	blockNumber, err := w.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block number: %w", err)
	}

	networkID, err := w.client.NetworkID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get network id: %w", err)
	}

	nodeInfo := "unknown"
	if w.rpc != nil {
		var version string
		if err := w.rpc.CallContext(ctx, &version, "web3_clientVersion"); err != nil {
			w.log.Warn("failed to get node version", logger.F("error", err))
		} else {
			nodeInfo = version
		}
	}

	return &models.About{
		BlockNumber:     blockNumber,
		NetworkID:       networkID.String(),
		NodeInfo:        nodeInfo,
		Version:         w.config.Version,
		ContractAddress: w.contract.Hex(),
	}, nil
}

// Close closes the node connection
func (w *Watcher) Close() {
	if w.rpc != nil {
		w.log.Info("closing node connection")
		w.rpc.Close()
	}
}
