package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/lugondev/dex-order-alert/internal/logger"
	"github.com/lugondev/dex-order-alert/pkg/models"
)

var (
	contractAddr = common.HexToAddress("0x6F400810b62df8E13fded51bE75fF5393eaa841F")
	wethAddr     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	ownerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type erc20Meta struct {
	symbol   string
	name     string
	decimals uint8
}

// fakeSubscription is an ethereum.Subscription driven by the test
type fakeSubscription struct {
	errCh chan error
	once  sync.Once
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errCh: make(chan error, 1)}
}

func (s *fakeSubscription) Err() <-chan error { return s.errCh }

func (s *fakeSubscription) Unsubscribe() {
	s.once.Do(func() { close(s.errCh) })
}

// fakeChain answers eth_call for the exchange registry and ERC20 metadata
type fakeChain struct {
	mu         sync.Mutex
	registry   map[uint16]common.Address
	tokens     map[common.Address]erc20Meta
	calls      int
	subscribes int
	subErr     error
	logs       chan<- types.Log
	subs       []*fakeSubscription
	subscribed chan struct{}
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		registry: map[uint16]common.Address{1: wethAddr, 7: usdcAddr},
		tokens: map[common.Address]erc20Meta{
			wethAddr: {symbol: "WETH", name: "Wrapped Ether", decimals: 18},
			usdcAddr: {symbol: "USDC", name: "USD Coin", decimals: 6},
		},
		subscribed: make(chan struct{}, 8),
	}
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	selector := msg.Data[:4]

	if *msg.To == contractAddr {
		method := exchangeABI.Methods["tokenIdToAddressMap"]
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(f.registry[args[0].(uint16)])
	}

	meta, ok := f.tokens[*msg.To]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	for name, method := range erc20ABI.Methods {
		if !bytes.Equal(selector, method.ID) {
			continue
		}
		switch name {
		case "decimals":
			return method.Outputs.Pack(meta.decimals)
		case "symbol":
			if meta.symbol == "" {
				return nil, nil
			}
			return method.Outputs.Pack(meta.symbol)
		case "name":
			if meta.name == "" {
				return nil, nil
			}
			return method.Outputs.Pack(meta.name)
		}
	}
	return nil, fmt.Errorf("unknown selector %x", selector)
}

func (f *fakeChain) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++

	if f.subErr != nil {
		return nil, f.subErr
	}
	sub := newFakeSubscription()
	f.logs = ch
	f.subs = append(f.subs, sub)
	f.subscribed <- struct{}{}
	return sub, nil
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) { return 12345, nil }

func (f *fakeChain) NetworkID(ctx context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeChain) push(lg types.Log) {
	f.mu.Lock()
	ch := f.logs
	f.mu.Unlock()
	ch <- lg
}

func (f *fakeChain) failSubscription(err error) {
	f.mu.Lock()
	sub := f.subs[len(f.subs)-1]
	f.mu.Unlock()
	sub.errCh <- err
}

// recordingHandler collects orders and errors
type recordingHandler struct {
	mu     sync.Mutex
	orders []*models.Order
	errs   []error
	got    chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{got: make(chan struct{}, 16)}
}

func (h *recordingHandler) OnNewOrder(ctx context.Context, order *models.Order) error {
	h.mu.Lock()
	h.orders = append(h.orders, order)
	h.mu.Unlock()
	h.got <- struct{}{}
	return nil
}

func (h *recordingHandler) OnError(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
	h.got <- struct{}{}
}

func orderPlacementLog(t *testing.T, buyToken, sellToken uint16, validFrom, validUntil uint32, num, den *big.Int) types.Log {
	t.Helper()
	data, err := exchangeABI.Events["OrderPlacement"].Inputs.NonIndexed().Pack(uint16(3), validFrom, validUntil, num, den)
	if err != nil {
		t.Fatalf("failed to pack log data: %v", err)
	}
	return types.Log{
		Address: contractAddr,
		Topics: []common.Hash{
			orderPlacementTopic,
			common.BytesToHash(ownerAddr.Bytes()),
			common.BigToHash(big.NewInt(int64(buyToken))),
			common.BigToHash(big.NewInt(int64(sellToken))),
		},
		Data:        data,
		TxHash:      common.HexToHash("0xfeed"),
		BlockNumber: 9000000,
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestDecodeOrderPlacement(t *testing.T) {
	num := big.NewInt(2000000)
	den, _ := new(big.Int).SetString("1000000000000000000", 10)

	ev, err := decodeOrderPlacement(orderPlacementLog(t, 7, 1, 100, 200, num, den))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ev.Owner != ownerAddr {
		t.Errorf("expected owner %s, got %s", ownerAddr.Hex(), ev.Owner.Hex())
	}
	if ev.BuyToken != 7 || ev.SellToken != 1 {
		t.Errorf("unexpected tokens buy=%d sell=%d", ev.BuyToken, ev.SellToken)
	}
	if ev.Index != 3 || ev.ValidFrom != 100 || ev.ValidUntil != 200 {
		t.Errorf("unexpected fields %+v", ev.orderPlacementData)
	}
	if ev.PriceNumerator.Cmp(num) != 0 || ev.PriceDenominator.Cmp(den) != 0 {
		t.Errorf("unexpected price %s/%s", ev.PriceNumerator, ev.PriceDenominator)
	}
}

func TestDecodeOrderPlacementInvalid(t *testing.T) {
	valid := orderPlacementLog(t, 7, 1, 100, 200, big.NewInt(1), big.NewInt(1))

	wrongTopic := valid
	wrongTopic.Topics = append([]common.Hash{common.HexToHash("0x01")}, valid.Topics[1:]...)

	missingTopics := valid
	missingTopics.Topics = valid.Topics[:2]

	truncated := valid
	truncated.Data = valid.Data[:10]

	for name, lg := range map[string]types.Log{"wrong topic": wrongTopic, "missing topics": missingTopics, "truncated data": truncated} {
		t.Run(name, func(t *testing.T) {
			if _, err := decodeOrderPlacement(lg); !errors.Is(err, models.ErrInvalidOrderData) {
				t.Errorf("expected ErrInvalidOrderData, got %v", err)
			}
		})
	}
}

func TestTokenResolverUsesCache(t *testing.T) {
	chain := newFakeChain()
	r := newTokenResolver(chain, contractAddr, NewMemoryTokenCache(), logger.Nop())

	token, err := r.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.Symbol != "WETH" || token.Name != "Wrapped Ether" || token.Decimals != 18 || token.ID != 1 {
		t.Errorf("unexpected token %+v", token)
	}

	calls := chain.calls
	again, err := r.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chain.calls != calls {
		t.Errorf("expected cached lookup, got %d extra calls", chain.calls-calls)
	}
	if again != token {
		t.Errorf("cached token %+v differs from %+v", again, token)
	}
}

func TestTokenResolverMissingSymbol(t *testing.T) {
	chain := newFakeChain()
	chain.tokens[wethAddr] = erc20Meta{decimals: 18}
	r := newTokenResolver(chain, contractAddr, nil, logger.Nop())

	token, err := r.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.Label() != wethAddr.Hex() {
		t.Errorf("expected address label, got %q", token.Label())
	}
}

func TestTokenResolverUnregisteredToken(t *testing.T) {
	r := newTokenResolver(newFakeChain(), contractAddr, nil, logger.Nop())

	if _, err := r.Resolve(context.Background(), 99); !errors.Is(err, models.ErrInvalidOrderData) {
		t.Errorf("expected ErrInvalidOrderData, got %v", err)
	}
}

func TestBuildOrder(t *testing.T) {
	w := newWatcher(Config{ContractAddress: contractAddr.Hex()}, newFakeChain(), nil, logger.Nop())

	den, _ := new(big.Int).SetString("1000000000000000000", 10)
	order, err := w.buildOrder(context.Background(), orderPlacementLog(t, 7, 1, 100, 200, big.NewInt(2000000), den))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if order.BuyToken.Symbol != "USDC" || order.SellToken.Symbol != "WETH" {
		t.Errorf("unexpected tokens buy=%s sell=%s", order.BuyToken.Symbol, order.SellToken.Symbol)
	}
	if !order.ValidFrom.Equal(time.Unix(30000, 0)) || !order.ValidUntil.Equal(time.Unix(60000, 0)) {
		t.Errorf("unexpected window %s - %s", order.ValidFrom, order.ValidUntil)
	}
	if order.Owner != ownerAddr.Hex() {
		t.Errorf("unexpected owner %s", order.Owner)
	}
}

func TestBuildOrderZeroDenominator(t *testing.T) {
	w := newWatcher(Config{ContractAddress: contractAddr.Hex()}, newFakeChain(), nil, logger.Nop())

	_, err := w.buildOrder(context.Background(), orderPlacementLog(t, 7, 1, 100, 200, big.NewInt(1), big.NewInt(0)))
	if !errors.Is(err, models.ErrInvalidOrderData) {
		t.Errorf("expected ErrInvalidOrderData, got %v", err)
	}
}

func TestWatchOrderPlacement(t *testing.T) {
	chain := newFakeChain()
	w := newWatcher(Config{ContractAddress: contractAddr.Hex(), ReconnectInterval: time.Millisecond}, chain, nil, logger.Nop())
	h := newRecordingHandler()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.WatchOrderPlacement(ctx, h) }()

	waitFor(t, chain.subscribed)

	removed := orderPlacementLog(t, 7, 1, 100, 200, big.NewInt(5), big.NewInt(1))
	removed.Removed = true
	chain.push(removed)
	chain.push(orderPlacementLog(t, 7, 1, 100, 200, big.NewInt(2), big.NewInt(1)))
	waitFor(t, h.got)

	chain.failSubscription(errors.New("websocket: close 1006"))
	waitFor(t, h.got)
	waitFor(t, chain.subscribed)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(h.orders))
	}
	if h.orders[0].PriceNumerator.Int64() != 2 {
		t.Errorf("expected the non removed order, got numerator %s", h.orders[0].PriceNumerator)
	}
	if len(h.errs) != 1 || !errors.Is(h.errs[0], ErrSubscription) {
		t.Errorf("expected one subscription error, got %v", h.errs)
	}
}

func TestWatchOrderPlacementGivesUp(t *testing.T) {
	chain := newFakeChain()
	chain.subErr = errors.New("dial tcp: connection refused")
	w := newWatcher(Config{ContractAddress: contractAddr.Hex(), ReconnectInterval: time.Millisecond, MaxRetries: 3}, chain, nil, logger.Nop())
	h := newRecordingHandler()

	err := w.WatchOrderPlacement(context.Background(), h)
	if !errors.Is(err, ErrMaxRetries) {
		t.Fatalf("expected ErrMaxRetries, got %v", err)
	}
	if chain.subscribes != 3 {
		t.Errorf("expected 3 attempts, got %d", chain.subscribes)
	}
	if len(h.errs) != 3 {
		t.Errorf("expected 3 reported errors, got %d", len(h.errs))
	}
}

func TestGetAbout(t *testing.T) {
	w := newWatcher(Config{ContractAddress: contractAddr.Hex(), Version: "v1.2.3"}, newFakeChain(), nil, logger.Nop())

	about, err := w.GetAbout(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if about.BlockNumber != 12345 || about.NetworkID != "1" || about.Version != "v1.2.3" {
		t.Errorf("unexpected about %+v", about)
	}
	if about.ContractAddress != contractAddr.Hex() {
		t.Errorf("unexpected contract %s", about.ContractAddress)
	}
}

func TestMemoryTokenCache(t *testing.T) {
	cache := NewMemoryTokenCache()
	ctx := context.Background()

	if token, err := cache.Get(ctx, wethAddr.Hex()); err != nil || token != nil {
		t.Fatalf("expected miss, got %+v (err %v)", token, err)
	}

	if err := cache.Set(ctx, &models.Token{Address: wethAddr.Hex(), Symbol: "WETH", Decimals: 18}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// lookups are case insensitive
	token, err := cache.Get(ctx, "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	if err != nil || token == nil || token.Symbol != "WETH" {
		t.Errorf("expected cached WETH, got %+v (err %v)", token, err)
	}

	if err := cache.Set(ctx, nil); err == nil {
		t.Errorf("expected error for nil token")
	}
}
