package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrNoBalance  = errors.New("no token balance to sell")
	ErrBadAddress = errors.New("invalid token address")
	ErrNoPair     = errors.New("no WBNB pair for token")
)

const (
	swapDeadline = 10 * time.Minute
	approveGas   = 100_000
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

type PancakeOptions struct {
	RouterAddress  string
	FactoryAddress string
	WBNBAddress    string
	ExplorerTxURL  string
}

// PancakeSwap executes swaps against a PancakeSwap V2 router on behalf of
// the client's wallet.
type PancakeSwap struct {
	client   *Client
	router   common.Address
	factory  common.Address
	wbnb     common.Address
	explorer string
	abis     contractABIs
	now      func() time.Time
}

func NewPancakeSwap(client *Client, opts PancakeOptions) (*PancakeSwap, error) {
	abis, err := parseABIs()
	if err != nil {
		return nil, err
	}
	return &PancakeSwap{
		client:   client,
		router:   common.HexToAddress(opts.RouterAddress),
		factory:  common.HexToAddress(opts.FactoryAddress),
		wbnb:     common.HexToAddress(opts.WBNBAddress),
		explorer: opts.ExplorerTxURL,
		abis:     abis,
		now:      time.Now,
	}, nil
}

func (p *PancakeSwap) ExplorerURL(txHash string) string {
	return p.explorer + txHash
}

func (p *PancakeSwap) WalletAddress() string {
	return p.client.WalletAddress().Hex()
}

// Balance returns the wallet's BNB balance.
func (p *PancakeSwap) Balance(ctx context.Context) (float64, error) {
	return p.client.NativeBalance(ctx)
}

// Buy swaps amountBNB of BNB for token, accepting at most slippagePct loss
// against the router quote. Returns the mined tx hash.
func (p *PancakeSwap) Buy(ctx context.Context, token string, amountBNB, slippagePct float64) (string, error) {
	addr, err := parseToken(token)
	if err != nil {
		return "", err
	}
	path := []common.Address{p.wbnb, addr}
	amountIn := ToWei(amountBNB, 18)

	minOut := big.NewInt(0)
	if expected, err := p.Quote(ctx, amountIn, path); err == nil {
		minOut = applySlippage(expected, slippagePct)
	} else {
		log.Info().Err(err).Str("token", token).Msg("quote unavailable, buying with no minimum output")
	}

	data, err := p.abis.router.Pack("swapExactETHForTokensSupportingFeeOnTransferTokens",
		minOut, path, p.client.WalletAddress(), p.deadline())
	if err != nil {
		return "", fmt.Errorf("pack buy swap: %w", err)
	}

	log.Info().Str("token", token).Float64("bnb", amountBNB).Msg("sending buy")
	hash, err := p.client.Send(ctx, p.router, amountIn, data, 0)
	if err != nil {
		return "", fmt.Errorf("buy %s: %w", token, err)
	}
	log.Info().Str("tx", p.ExplorerURL(hash)).Msg("buy confirmed")
	return hash, nil
}

// Sell swaps percent of the wallet's token balance back to BNB. A percent
// of 100 or more sells the whole balance.
func (p *PancakeSwap) Sell(ctx context.Context, token string, percent, slippagePct float64) (string, error) {
	addr, err := parseToken(token)
	if err != nil {
		return "", err
	}
	wallet := p.client.WalletAddress()

	balance, err := p.erc20Uint(ctx, addr, "balanceOf", wallet)
	if err != nil {
		return "", fmt.Errorf("balanceOf: %w", err)
	}
	if balance.Sign() == 0 {
		return "", fmt.Errorf("sell %s: %w", token, ErrNoBalance)
	}
	amountIn := portion(balance, percent)

	if err := p.ensureAllowance(ctx, addr, amountIn); err != nil {
		return "", err
	}

	path := []common.Address{addr, p.wbnb}
	minOut := big.NewInt(0)
	if expected, err := p.Quote(ctx, amountIn, path); err == nil {
		minOut = applySlippage(expected, slippagePct)
	} else {
		log.Info().Err(err).Str("token", token).Msg("quote unavailable, selling with no minimum output")
	}

	data, err := p.abis.router.Pack("swapExactTokensForETHSupportingFeeOnTransferTokens",
		amountIn, minOut, path, wallet, p.deadline())
	if err != nil {
		return "", fmt.Errorf("pack sell swap: %w", err)
	}

	log.Info().Str("token", token).Float64("percent", percent).Msg("sending sell")
	hash, err := p.client.Send(ctx, p.router, big.NewInt(0), data, 0)
	if err != nil {
		return "", fmt.Errorf("sell %s: %w", token, err)
	}
	log.Info().Str("tx", p.ExplorerURL(hash)).Msg("sell confirmed")
	return hash, nil
}

// CanSell is a basic honeypot check: the router must be able to quote a
// sale of one whole token back to WBNB.
func (p *PancakeSwap) CanSell(ctx context.Context, token string) bool {
	addr, err := parseToken(token)
	if err != nil {
		return false
	}
	data, err := p.abis.erc20.Pack("decimals")
	if err != nil {
		return false
	}
	out, err := p.client.CallContract(ctx, addr, data)
	if err != nil {
		return false
	}
	vals, err := p.abis.erc20.Unpack("decimals", out)
	if err != nil || len(vals) == 0 {
		return false
	}
	dec, ok := vals[0].(uint8)
	if !ok {
		return false
	}
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(dec)), nil)
	_, err = p.Quote(ctx, one, []common.Address{addr, p.wbnb})
	return err == nil
}

// Quote returns the router's expected output for amountIn along path.
func (p *PancakeSwap) Quote(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	data, err := p.abis.router.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	out, err := p.client.CallContract(ctx, p.router, data)
	if err != nil {
		return nil, fmt.Errorf("getAmountsOut: %w", err)
	}
	vals, err := p.abis.router.Unpack("getAmountsOut", out)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("decode getAmountsOut: %w", err)
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, errors.New("decode getAmountsOut: empty result")
	}
	return amounts[len(amounts)-1], nil
}

type Reserves struct {
	Pair         common.Address
	BNBReserve   float64
	TokenReserve *big.Int
}

// Reserves reads the WBNB/token pair reserves from the factory pair.
func (p *PancakeSwap) Reserves(ctx context.Context, token string) (*Reserves, error) {
	addr, err := parseToken(token)
	if err != nil {
		return nil, err
	}

	data, err := p.abis.factory.Pack("getPair", p.wbnb, addr)
	if err != nil {
		return nil, err
	}
	out, err := p.client.CallContract(ctx, p.factory, data)
	if err != nil {
		return nil, fmt.Errorf("getPair: %w", err)
	}
	vals, err := p.abis.factory.Unpack("getPair", out)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("decode getPair: %w", err)
	}
	pair, _ := vals[0].(common.Address)
	if pair == (common.Address{}) {
		return nil, ErrNoPair
	}

	data, _ = p.abis.pair.Pack("getReserves")
	out, err = p.client.CallContract(ctx, pair, data)
	if err != nil {
		return nil, fmt.Errorf("getReserves: %w", err)
	}
	vals, err = p.abis.pair.Unpack("getReserves", out)
	if err != nil || len(vals) < 2 {
		return nil, fmt.Errorf("decode getReserves: %w", err)
	}
	r0, _ := vals[0].(*big.Int)
	r1, _ := vals[1].(*big.Int)

	data, _ = p.abis.pair.Pack("token0")
	out, err = p.client.CallContract(ctx, pair, data)
	if err != nil {
		return nil, fmt.Errorf("token0: %w", err)
	}
	vals, err = p.abis.pair.Unpack("token0", out)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("decode token0: %w", err)
	}
	token0, _ := vals[0].(common.Address)

	bnb, tok := splitReserves(token0, p.wbnb, r0, r1)
	return &Reserves{Pair: pair, BNBReserve: FromWei(bnb, 18), TokenReserve: tok}, nil
}

// PriceImpact estimates the percentage of the pool's BNB side a buy of
// amountBNB would consume. Missing reserves count as 100%.
func (p *PancakeSwap) PriceImpact(ctx context.Context, token string, amountBNB float64) float64 {
	r, err := p.Reserves(ctx, token)
	if err != nil || r.BNBReserve <= 0 {
		return 100
	}
	return amountBNB / r.BNBReserve * 100
}

func (p *PancakeSwap) ensureAllowance(ctx context.Context, token common.Address, amount *big.Int) error {
	current, err := p.erc20Uint(ctx, token, "allowance", p.client.WalletAddress(), p.router)
	if err != nil {
		return fmt.Errorf("allowance: %w", err)
	}
	if current.Cmp(amount) >= 0 {
		return nil
	}

	log.Info().Str("token", token.Hex()).Msg("approving router")
	data, err := p.abis.erc20.Pack("approve", p.router, maxUint256)
	if err != nil {
		return err
	}
	hash, err := p.client.Send(ctx, token, big.NewInt(0), data, approveGas)
	if err != nil {
		return fmt.Errorf("approve tx: %w", err)
	}
	log.Info().Str("tx", p.ExplorerURL(hash)).Msg("approval confirmed")
	return nil
}

func (p *PancakeSwap) erc20Uint(ctx context.Context, token common.Address, method string, args ...any) (*big.Int, error) {
	data, err := p.abis.erc20.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := p.client.CallContract(ctx, token, data)
	if err != nil {
		return nil, err
	}
	vals, err := p.abis.erc20.Unpack(method, out)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode %s: unexpected type %T", method, vals[0])
	}
	return v, nil
}

func (p *PancakeSwap) deadline() *big.Int {
	return big.NewInt(p.now().Add(swapDeadline).Unix())
}

// --- helpers ---

func parseToken(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrBadAddress, s)
	}
	return common.HexToAddress(s), nil
}

// applySlippage returns expected × (100 − pct) / 100, never negative.
func applySlippage(expected *big.Int, pct float64) *big.Int {
	if pct >= 100 {
		return big.NewInt(0)
	}
	if pct < 0 {
		pct = 0
	}
	keep := decimal.NewFromInt(100).Sub(decimal.NewFromFloat(pct))
	return decimal.NewFromBigInt(expected, 0).Mul(keep).Div(decimal.NewFromInt(100)).BigInt()
}

func portion(balance *big.Int, percent float64) *big.Int {
	if percent >= 100 {
		return new(big.Int).Set(balance)
	}
	if percent <= 0 {
		return big.NewInt(0)
	}
	return decimal.NewFromBigInt(balance, 0).Mul(decimal.NewFromFloat(percent)).Div(decimal.NewFromInt(100)).BigInt()
}

func splitReserves(token0, wbnb common.Address, r0, r1 *big.Int) (bnb, token *big.Int) {
	if token0 == wbnb {
		return r0, r1
	}
	return r1, r0
}
