package action

import (
	"context"
	"fmt"
	"strings"

	"OpenMCP-Ankr/internal/schema"
	"OpenMCP-Ankr/internal/web3/ankr"
)

var accountBalance = define(definition[ankr.AccountBalanceReply]{
	name:   "GET_ACCOUNT_BALANCE_ANKR",
	method: "GetAccountBalance",
	similes: []string{
		"CHECK_BALANCE",
		"SHOW_BALANCE",
		"VIEW_BALANCE",
		"GET_WALLET_BALANCE",
	},
	description: "Retrieve account balance information across multiple blockchains.",
	examples: []string{
		"Show me the balance for wallet 0x1234567890123456789012345678901234567890 on eth",
	},
	fields: []schema.Field{
		{Name: "blockchain", Kind: schema.KindChainList, Description: "The blockchain(s) to check the balance on"},
		hexField("walletAddress", "The EVM-like wallet address to check the balance of, e.g. 0x1234567890123456789012345678901234567890"),
	},
	call: func(ctx context.Context, api API, v schema.Values) (*ankr.AccountBalanceReply, error) {
		return api.GetAccountBalance(ctx, ankr.AccountBalanceRequest{
			Blockchain:      v.Strings("blockchain"),
			WalletAddress:   v.String("walletAddress"),
			OnlyWhitelisted: true,
			PageSize:        50,
		})
	},
	format: formatAccountBalance,
})

func formatAccountBalance(v schema.Values, reply *ankr.AccountBalanceReply) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here are the balances for wallet %s:\n\n", v.String("walletAddress"))

	if len(reply.Assets) == 0 {
		b.WriteString("No balances found")
		return b.String()
	}

	for i, asset := range reply.Assets {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, asset.TokenName, asset.TokenType)
		fmt.Fprintf(&b, "   Balance: %s %s\n", asset.Balance, asset.TokenSymbol)
		if asset.ContractAddress != "" {
			fmt.Fprintf(&b, "   Contract: %s\n", asset.ContractAddress)
		}
		fmt.Fprintf(&b, "   USD Value: $%s\n\n", FormatFixed(asset.BalanceUsd, 2))
	}
	return b.String()
}
