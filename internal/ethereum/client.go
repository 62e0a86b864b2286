package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrWrongChain = errors.New("rpc reports unexpected chain id")
	ErrReverted   = errors.New("transaction reverted")
)

const (
	receiptPollInterval = 2 * time.Second
	receiptTimeout      = 12 * time.Minute
)

type ClientOptions struct {
	Endpoints     []string // primary first
	PrivateKeyHex string
	ChainID       int64
	GasLimit      int
	GasMultiplier float64
	FallbackGwei  float64
}

type Client struct {
	rpc          *ethclient.Client
	endpoint     string
	privateKey   *ecdsa.PrivateKey
	wallet       common.Address
	chainID      *big.Int
	gasLimit     uint64
	gasMul       float64
	fallbackGwei float64
	pollEvery    time.Duration
}

// Dial connects to the first reachable endpoint and verifies its chain id.
// A chain id mismatch is fatal and is not retried on the other endpoints.
func Dial(ctx context.Context, opts ClientOptions) (*Client, error) {
	pkHex := strings.TrimPrefix(strings.TrimSpace(opts.PrivateKeyHex), "0x")
	pk, err := crypto.HexToECDSA(pkHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	var lastErr error
	for _, url := range opts.Endpoints {
		rpc, err := ethclient.DialContext(ctx, url)
		if err != nil {
			lastErr = fmt.Errorf("dial %s: %w", url, err)
			log.Warn().Err(err).Str("rpc", url).Msg("rpc dial failed, trying next endpoint")
			continue
		}
		id, err := rpc.ChainID(ctx)
		if err != nil {
			rpc.Close()
			lastErr = fmt.Errorf("chain id from %s: %w", url, err)
			log.Warn().Err(err).Str("rpc", url).Msg("rpc unreachable, trying next endpoint")
			continue
		}
		if id.Int64() != opts.ChainID {
			rpc.Close()
			return nil, fmt.Errorf("%w: expected %d, got %s", ErrWrongChain, opts.ChainID, id)
		}

		log.Info().Str("rpc", url).Int64("chain_id", opts.ChainID).Msg("connected to chain")
		return &Client{
			rpc:          rpc,
			endpoint:     url,
			privateKey:   pk,
			wallet:       crypto.PubkeyToAddress(pk.PublicKey),
			chainID:      big.NewInt(opts.ChainID),
			gasLimit:     uint64(opts.GasLimit),
			gasMul:       opts.GasMultiplier,
			fallbackGwei: opts.FallbackGwei,
			pollEvery:    receiptPollInterval,
		}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no rpc endpoints configured")
	}
	return nil, lastErr
}

func (c *Client) WalletAddress() common.Address { return c.wallet }
func (c *Client) Endpoint() string              { return c.endpoint }
func (c *Client) Close()                        { c.rpc.Close() }

// NativeBalance returns the wallet's BNB balance in BNB.
func (c *Client) NativeBalance(ctx context.Context) (float64, error) {
	wei, err := c.rpc.BalanceAt(ctx, c.wallet, nil)
	if err != nil {
		return 0, err
	}
	return FromWei(wei, 18), nil
}

// GasPrice returns the node's suggested price scaled by the multiplier, or
// the configured fallback when the node cannot suggest one.
func (c *Client) GasPrice(ctx context.Context) *big.Int {
	price, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil || price == nil || price.Sign() == 0 {
		log.Warn().Err(err).Float64("gwei", c.fallbackGwei).Msg("gas price suggestion unavailable, using fallback")
		return ToWei(c.fallbackGwei, 9)
	}
	if c.gasMul <= 0 || c.gasMul == 1 {
		return price
	}
	return decimal.NewFromBigInt(price, 0).Mul(decimal.NewFromFloat(c.gasMul)).BigInt()
}

// Send signs a legacy EIP-155 transaction, broadcasts it and waits for a
// successful receipt. It returns the tx hash.
//
// Once the transaction is broadcast, cancelling ctx no longer aborts the
// wait; only receiptTimeout does.
func (c *Client) Send(ctx context.Context, to common.Address, value *big.Int, data []byte, gas uint64) (string, error) {
	nonce, err := c.rpc.PendingNonceAt(ctx, c.wallet)
	if err != nil {
		return "", fmt.Errorf("get nonce: %w", err)
	}
	if gas == 0 {
		gas = c.gasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: c.GasPrice(ctx),
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}

	hash := signed.Hash()
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), receiptTimeout)
	defer cancel()
	receipt, err := c.waitForReceipt(waitCtx, hash)
	if err != nil {
		return "", fmt.Errorf("wait receipt %s: %w", hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
	}
	return hash.Hex(), nil
}

// CallContract performs a read-only eth_call at the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.rpc.CallContract(ctx, geth.CallMsg{To: &to, Data: data}, nil)
}

func (c *Client) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	every := c.pollEvery
	if every <= 0 {
		every = receiptPollInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := c.rpc.TransactionReceipt(ctx, hash)
			if errors.Is(err, geth.NotFound) {
				continue
			}
			if err != nil {
				log.Debug().Err(err).Str("tx", hash.Hex()).Msg("receipt poll failed")
				continue
			}
			return receipt, nil
		}
	}
}

// ToWei scales a human amount by 10^decimals.
func ToWei(amount float64, decimals int) *big.Int {
	return decimal.NewFromFloat(amount).Shift(int32(decimals)).BigInt()
}

// FromWei converts a raw integer amount with the given decimals to a float.
func FromWei(wei *big.Int, decimals int) float64 {
	if wei == nil {
		return 0
	}
	return decimal.NewFromBigInt(wei, -int32(decimals)).InexactFloat64()
}
