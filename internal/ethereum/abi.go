package ethereum

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal ABIs for PancakeSwap V2 and ERC20, only the methods we call.

const routerABIJSON = `[
	{
		"name": "swapExactETHForTokensSupportingFeeOnTransferTokens",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [
			{"name": "amountOutMin", "type": "uint256"},
			{"name": "path",         "type": "address[]"},
			{"name": "to",           "type": "address"},
			{"name": "deadline",     "type": "uint256"}
		],
		"outputs": []
	},
	{
		"name": "swapExactTokensForETHSupportingFeeOnTransferTokens",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "amountIn",     "type": "uint256"},
			{"name": "amountOutMin", "type": "uint256"},
			{"name": "path",         "type": "address[]"},
			{"name": "to",           "type": "address"},
			{"name": "deadline",     "type": "uint256"}
		],
		"outputs": []
	},
	{
		"name": "getAmountsOut",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "amountIn", "type": "uint256"},
			{"name": "path",     "type": "address[]"}
		],
		"outputs": [{"name": "amounts", "type": "uint256[]"}]
	}
]`

const erc20ABIJSON = `[
	{
		"name": "balanceOf",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "account", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"name": "allowance",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "owner",   "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"name": "approve",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount",  "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"name": "decimals",
		"type": "function",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint8"}]
	}
]`

const factoryABIJSON = `[
	{
		"name": "getPair",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "tokenA", "type": "address"},
			{"name": "tokenB", "type": "address"}
		],
		"outputs": [{"name": "pair", "type": "address"}]
	}
]`

const pairABIJSON = `[
	{
		"name": "getReserves",
		"type": "function",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [
			{"name": "reserve0",           "type": "uint112"},
			{"name": "reserve1",           "type": "uint112"},
			{"name": "blockTimestampLast", "type": "uint32"}
		]
	},
	{
		"name": "token0",
		"type": "function",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "address"}]
	}
]`

type contractABIs struct {
	router  abi.ABI
	erc20   abi.ABI
	factory abi.ABI
	pair    abi.ABI
}

func parseABIs() (contractABIs, error) {
	var out contractABIs
	for _, p := range []struct {
		name string
		json string
		dst  *abi.ABI
	}{
		{"router", routerABIJSON, &out.router},
		{"erc20", erc20ABIJSON, &out.erc20},
		{"factory", factoryABIJSON, &out.factory},
		{"pair", pairABIJSON, &out.pair},
	} {
		parsed, err := abi.JSON(strings.NewReader(p.json))
		if err != nil {
			return contractABIs{}, fmt.Errorf("parse %s ABI: %w", p.name, err)
		}
		*p.dst = parsed
	}
	return out, nil
}
