package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/lugondev/dex-order-alert/internal/logger"
	"github.com/lugondev/dex-order-alert/pkg/models"
)

// TokenCache stores token metadata by address. Get returns nil, nil on a miss.
type TokenCache interface {
	Get(ctx context.Context, address string) (*models.Token, error)
	Set(ctx context.Context, token *models.Token) error
}

// MemoryTokenCache is a process local TokenCache
type MemoryTokenCache struct {
	mu     sync.RWMutex
	tokens map[string]models.Token
}

// NewMemoryTokenCache creates an empty in-memory token cache
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{tokens: make(map[string]models.Token)}
}

// Get returns the cached token for address
func (c *MemoryTokenCache) Get(ctx context.Context, address string) (*models.Token, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	token, ok := c.tokens[strings.ToLower(address)]
	if !ok {
		return nil, nil
	}
	return &token, nil
}

// Set caches token metadata
func (c *MemoryTokenCache) Set(ctx context.Context, token *models.Token) error {
	if token == nil {
		return fmt.Errorf("token is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[strings.ToLower(token.Address)] = *token
	return nil
}

// tokenResolver maps exchange token ids to ERC20 metadata
type tokenResolver struct {
	caller   ethereum.ContractCaller
	contract common.Address
	cache    TokenCache
	log      logger.Logger

	// the exchange never reassigns a token id
	mu        sync.RWMutex
	addresses map[uint16]common.Address
}

func newTokenResolver(caller ethereum.ContractCaller, contract common.Address, cache TokenCache, log logger.Logger) *tokenResolver {
	if cache == nil {
		cache = NewMemoryTokenCache()
	}
	return &tokenResolver{
		caller:    caller,
		contract:  contract,
		cache:     cache,
		log:       log.With(logger.F("component", "token-resolver")),
		addresses: make(map[uint16]common.Address),
	}
}

// Resolve returns the token registered under id
func (r *tokenResolver) Resolve(ctx context.Context, id uint16) (models.Token, error) {
	address, err := r.tokenAddress(ctx, id)
	if err != nil {
		return models.Token{}, err
	}

	cached, err := r.cache.Get(ctx, address.Hex())
	if err != nil {
		r.log.Warn("token cache lookup failed", logger.F("token", address.Hex()), logger.F("error", err))
	} else if cached != nil {
		token := *cached
		token.ID = id
		return token, nil
	}

	token, err := r.fetchMetadata(ctx, id, address)
	if err != nil {
		return models.Token{}, err
	}

	if err := r.cache.Set(ctx, &token); err != nil {
		r.log.Warn("failed to cache token", logger.F("token", token.Address), logger.F("error", err))
	}
	return token, nil
}

// tokenAddress looks up the token address in the exchange registry
func (r *tokenResolver) tokenAddress(ctx context.Context, id uint16) (common.Address, error) {
	r.mu.RLock()
	address, ok := r.addresses[id]
	r.mu.RUnlock()
	if ok {
		return address, nil
	}

	var out common.Address
	if err := r.call(ctx, exchangeABI, r.contract, "tokenIdToAddressMap", &out, id); err != nil {
		return common.Address{}, fmt.Errorf("failed to resolve token id %d: %w", id, err)
	}
	if out == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: token id %d is not registered", models.ErrInvalidOrderData, id)
	}

	r.mu.Lock()
	r.addresses[id] = out
	r.mu.Unlock()

	return out, nil
}

// fetchMetadata reads decimals, symbol and name from the token contract.
// Symbol and name are optional, some tokens return bytes32 or nothing.
func (r *tokenResolver) fetchMetadata(ctx context.Context, id uint16, address common.Address) (models.Token, error) {
	token := models.Token{ID: id, Address: address.Hex()}

	if err := r.call(ctx, erc20ABI, address, "decimals", &token.Decimals); err != nil {
		return models.Token{}, fmt.Errorf("failed to read decimals of %s: %w", address.Hex(), err)
	}
	if err := r.call(ctx, erc20ABI, address, "symbol", &token.Symbol); err != nil {
		r.log.Debug("token has no string symbol", logger.F("token", address.Hex()), logger.F("error", err))
	}
	if err := r.call(ctx, erc20ABI, address, "name", &token.Name); err != nil {
		r.log.Debug("token has no string name", logger.F("token", address.Hex()), logger.F("error", err))
	}

	r.log.Debug("token metadata loaded",
		logger.F("id", id),
		logger.F("token", token.Address),
		logger.F("symbol", token.Symbol),
		logger.F("decimals", token.Decimals),
	)
	return token, nil
}

// call performs an eth_call of a view method and unpacks its single output into out
func (r *tokenResolver) call(ctx context.Context, contractABI abi.ABI, to common.Address, method string, out interface{}, args ...interface{}) error {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}

	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return err
	}
	if len(result) == 0 {
		return fmt.Errorf("empty result from %s", method)
	}

	return contractABI.UnpackIntoInterface(out, method, result)
}
