package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-track-alerts/internal/tokens"
)

const aggregatorABIJSON = `[{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// FeedOptions parameterise the on-chain feed fetcher.
type FeedOptions struct {
	RPCURL  string
	Timeout time.Duration
}

// Feed reads USD prices from Chainlink aggregator contracts via Ethereum RPC.
type Feed struct {
	opts      FeedOptions
	registry  *tokens.Registry
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex

	decimalsMux sync.Mutex
	decimals    map[string]int32
}

// NewFeed builds a new on-chain price fetcher.
func NewFeed(opts FeedOptions, registry *tokens.Registry, logger zerolog.Logger) *Feed {
	return &Feed{
		opts:     opts,
		registry: registry,
		logger:   logger.With().Str("component", "feed_fetcher").Logger(),
		decimals: make(map[string]int32),
	}
}

// FetchPrice reads latestRoundData from the symbol's aggregator contract.
func (f *Feed) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	token, ok := f.registry.Resolve(symbol)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, symbol)
	}
	if f.opts.RPCURL == "" {
		return decimal.Decimal{}, errors.New("ethereum rpc url not configured")
	}
	if token.FeedAddress == "" {
		return decimal.Decimal{}, fmt.Errorf("no price feed configured for %s", symbol)
	}

	timeout := f.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := f.getClient(ctx)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	addr := common.HexToAddress(token.FeedAddress)

	scale, err := f.feedDecimals(ctx, client, addr)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	payload, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return decimal.Decimal{}, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	outputs, err := aggregatorABI.Unpack("latestRoundData", res)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(outputs) != 5 {
		return decimal.Decimal{}, fmt.Errorf("%w: unexpected latestRoundData response", ErrUnavailable)
	}

	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: failed to decode feed answer", ErrUnavailable)
	}
	if answer.Sign() < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: negative feed answer for %s", ErrUnavailable, symbol)
	}

	price := decimal.NewFromBigInt(answer, -scale)
	f.logger.Debug().Str("symbol", symbol).Str("usd_price", price.String()).Msg("price read from feed")
	return price, nil
}

func (f *Feed) feedDecimals(ctx context.Context, client *ethclient.Client, addr common.Address) (int32, error) {
	f.decimalsMux.Lock()
	if cached, ok := f.decimals[addr.Hex()]; ok {
		f.decimalsMux.Unlock()
		return cached, nil
	}
	f.decimalsMux.Unlock()

	payload, err := aggregatorABI.Pack("decimals")
	if err != nil {
		return 0, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return 0, err
	}

	outputs, err := aggregatorABI.Unpack("decimals", res)
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected decimals response")
	}

	value, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}

	scale := int32(value)
	f.decimalsMux.Lock()
	f.decimals[addr.Hex()] = scale
	f.decimalsMux.Unlock()
	return scale, nil
}

func (f *Feed) getClient(ctx context.Context) (*ethclient.Client, error) {
	f.clientMux.Lock()
	defer f.clientMux.Unlock()

	if f.client != nil {
		return f.client, nil
	}

	client, err := ethclient.DialContext(ctx, f.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	f.client = client
	return client, nil
}

var _ PriceFetcher = (*Feed)(nil)
