package action

import (
	"context"
	"fmt"
	"strings"

	"OpenMCP-Ankr/internal/schema"
	"OpenMCP-Ankr/internal/web3/ankr"
	"OpenMCP-Ankr/internal/web3/chains"
)

var blockchainStats = define(definition[ankr.BlockchainStatsReply]{
	name:   "GET_BLOCKCHAIN_STATS_ANKR",
	method: "GetBlockchainStats",
	similes: []string{
		"BLOCKCHAIN_STATS",
		"CHAIN_STATS",
		"NETWORK_STATS",
		"BLOCKCHAIN_METRICS",
	},
	description: "Retrieve statistics about a blockchain such as latest block, transaction count, and more.",
	examples: []string{
		"Show me the stats for the Ethereum blockchain",
	},
	fields: []schema.Field{
		chainField("The blockchain to get statistics for"),
	},
	call: func(ctx context.Context, api API, v schema.Values) (*ankr.BlockchainStatsReply, error) {
		return api.GetBlockchainStats(ctx, ankr.BlockchainStatsRequest{
			Blockchain: v.Strings("blockchain"),
		})
	},
	format: formatBlockchainStats,
})

func formatBlockchainStats(v schema.Values, reply *ankr.BlockchainStatsReply) string {
	id := v.String("blockchain")
	header := fmt.Sprintf("Blockchain Statistics for %s (%s):\n\n", chains.Name(id), id)
	if len(reply.Stats) == 0 {
		return header + "No blockchain statistics found"
	}

	stats := reply.Stats[0]
	return header +
		fmt.Sprintf("Latest Block: %s\n", FormatCount(stats.LatestBlockNumber)) +
		fmt.Sprintf("Total Transactions: %s\n", FormatCount(stats.TotalTransactionsCount)) +
		fmt.Sprintf("Total Events: %s\n", FormatCount(stats.TotalEventsCount)) +
		fmt.Sprintf("Block Time: %.2f seconds\n", stats.BlockTimeMs/1000) +
		fmt.Sprintf("Native Coin Price: $%s USD", FormatFixed(stats.NativeCoinUsdPrice, 2))
}

var currencies = define(definition[ankr.CurrenciesReply]{
	name:   "GET_CURRENCIES_ANKR",
	method: "GetCurrencies",
	similes: []string{
		"LIST_CURRENCIES",
		"SHOW_CURRENCIES",
		"VIEW_CURRENCIES",
		"FETCH_CURRENCIES",
	},
	description: "Retrieve information about currencies on specified blockchain networks.",
	examples: []string{
		"Show me the top currencies on Ethereum",
	},
	fields: []schema.Field{
		chainField("The blockchain to get currencies for"),
	},
	call: func(ctx context.Context, api API, v schema.Values) (*ankr.CurrenciesReply, error) {
		return api.GetCurrencies(ctx, ankr.CurrenciesRequest{
			Blockchain: v.String("blockchain"),
		})
	},
	format: formatCurrencies,
})

func formatCurrencies(v schema.Values, reply *ankr.CurrenciesReply) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here are the top currencies on %s:\n\n", v.String("blockchain"))

	if len(reply.Currencies) == 0 {
		b.WriteString("No currencies found")
		return b.String()
	}

	for i, currency := range reply.Currencies {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, currency.Name, currency.Symbol)
		if isNativeAddress(currency.Address) {
			b.WriteString("   Native Token\n")
		} else {
			fmt.Fprintf(&b, "   Contract: %s\n", Truncate(currency.Address))
		}
		fmt.Fprintf(&b, "   Decimals: %d\n\n", currency.Decimals)
	}

	if reply.SyncStatus != nil {
		b.WriteString(syncLine(reply.SyncStatus))
	}
	return b.String()
}

var interactions = define(definition[ankr.InteractionsReply]{
	name:   "GET_INTERACTIONS_ANKR",
	method: "GetInteractions",
	similes: []string{
		"FETCH_INTERACTIONS",
		"SHOW_INTERACTIONS",
		"VIEW_INTERACTIONS",
		"LIST_INTERACTIONS",
	},
	description: "Retrieve interactions between wallets and smart contracts on specified blockchain networks.",
	examples: []string{
		"Show me interactions for the wallet 0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45",
	},
	fields: []schema.Field{
		hexField("address", "The wallet address to get interactions for"),
		{Name: "blockchain", Kind: schema.KindChain, Description: "The blockchain to check interactions on (optional)"},
	},
	call: func(ctx context.Context, api API, v schema.Values) (*ankr.InteractionsReply, error) {
		return api.GetInteractions(ctx, ankr.InteractionsRequest{
			Address:    v.String("address"),
			Blockchain: v.String("blockchain"),
		})
	},
	format: formatInteractions,
})

func formatInteractions(v schema.Values, reply *ankr.InteractionsReply) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Blockchain interactions for address %s:\n\n", v.String("address"))

	if len(reply.Blockchains) == 0 {
		b.WriteString("No interactions found on any blockchain")
		return b.String()
	}

	b.WriteString("This address has interacted with the following blockchains:\n")
	for i, chain := range reply.Blockchains {
		fmt.Fprintf(&b, "%d. %s\n", i+1, chain)
	}

	if reply.SyncStatus != nil {
		b.WriteString("\n" + syncLine(reply.SyncStatus))
	}
	return b.String()
}
