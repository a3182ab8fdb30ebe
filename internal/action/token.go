package action

import (
	"context"
	"fmt"
	"strings"

	"OpenMCP-Ankr/internal/schema"
	"OpenMCP-Ankr/internal/web3/ankr"
)

var tokenHolders = define(definition[ankr.TokenHoldersReply]{
	name:   "GET_TOKEN_HOLDERS_ANKR",
	method: "GetTokenHolders",
	similes: []string{
		"LIST_HOLDERS",
		"SHOW_HOLDERS",
		"TOKEN_HOLDERS",
		"FIND_HOLDERS",
	},
	description: "Get a list of token holders for any ERC20 or ERC721 token contract.",
	examples: []string{
		"Show me holders for contract 0xf307910A4c7bbc79691fD374889b36d8531B08e3 on bsc",
	},
	fields: []schema.Field{
		chainField("The blockchain to get token holders for"),
		hexField("contractAddress", "The contract address of the token"),
	},
	call: func(ctx context.Context, api API, v schema.Values) (*ankr.TokenHoldersReply, error) {
		return api.GetTokenHolders(ctx, ankr.TokenHoldersRequest{
			Blockchain:      v.String("blockchain"),
			ContractAddress: v.String("contractAddress"),
		})
	},
	format: formatTokenHolders,
})

func formatTokenHolders(v schema.Values, reply *ankr.TokenHoldersReply) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Token Holders on %s:\n", strings.ToUpper(v.String("blockchain")))
	fmt.Fprintf(&b, "Total Holders: %s\n\n", FormatCount(reply.HoldersCount))

	if len(reply.Holders) == 0 {
		b.WriteString("No token holders found")
		return b.String()
	}

	for i, holder := range reply.Holders {
		fmt.Fprintf(&b, "%d. %s\n", i+1, Truncate(holder.HolderAddress))
		fmt.Fprintf(&b, "   Balance: %s\n\n", FormatLocale(holder.Balance))
	}

	if reply.SyncStatus != nil {
		b.WriteString("\n" + syncBrief(reply.SyncStatus) + "\n")
	}
	return b.String()
}

var tokenHoldersCount = define(definition[ankr.TokenHoldersCountReply]{
	name:   "GET_TOKEN_HOLDERS_COUNT_ANKR",
	method: "GetTokenHoldersCount",
	similes: []string{
		"COUNT_HOLDERS",
		"TOTAL_HOLDERS",
		"HOLDERS_COUNT",
		"NUMBER_OF_HOLDERS",
	},
	description: "Get the total number of holders and historical data for a specific token.",
	examples: []string{
		"How many holders does 0xdAC17F958D2ee523a2206206994597C13D831ec7 have on eth?",
	},
	fields: []schema.Field{
		chainField("The blockchain to get token holders count for"),
		hexField("contractAddress", "The contract address of the token"),
	},
	call: func(ctx context.Context, api API, v schema.Values) (*ankr.TokenHoldersCountReply, error) {
		return api.GetTokenHoldersCount(ctx, ankr.TokenHoldersRequest{
			Blockchain:      v.String("blockchain"),
			ContractAddress: v.String("contractAddress"),
		})
	},
	format: formatTokenHoldersCount,
})

func formatTokenHoldersCount(v schema.Values, reply *ankr.TokenHoldersCountReply) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Token Holders Count on %s:\n\n", strings.ToUpper(v.String("blockchain")))
	fmt.Fprintf(&b, "Current Holders: %s\n\n", FormatCount(reply.LatestHoldersCount))
	b.WriteString("Historical Data:\n")

	for i, entry := range reply.HolderCountHistory {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, FormatDate(entry.LastUpdatedAt.Time()))
		fmt.Fprintf(&b, "   Holders: %s\n", FormatCount(entry.HolderCount))
		fmt.Fprintf(&b, "   Total Amount: %s", FormatLocale(entry.TotalAmount))
	}

	if reply.SyncStatus != nil {
		b.WriteString("\n\n" + syncBrief(reply.SyncStatus))
	}
	return b.String()
}

var tokenPrice = define(definition[ankr.TokenPriceReply]{
	name:   "GET_TOKEN_PRICE_ANKR",
	method: "GetTokenPrice",
	similes: []string{
		"CHECK_PRICE",
		"TOKEN_PRICE",
		"CRYPTO_PRICE",
		"PRICE_CHECK",
	},
	description: "Get the current USD price for any token on supported blockchains.",
	examples: []string{
		"What's the current price of ETH?",
		"What's the current price of 0x8290333cef9e6d528dd5618fb97a76f268f3edd4 token on eth?",
	},
	fields: []schema.Field{
		chainField("The blockchain to check the token price on"),
		optionalHexField("contractAddress",
			"The contract address of the token to check the price of. Leave empty for native token.",
			"Contract address must either be empty or start with '0x'"),
	},
	call: func(ctx context.Context, api API, v schema.Values) (*ankr.TokenPriceReply, error) {
		return api.GetTokenPrice(ctx, ankr.TokenPriceRequest{
			Blockchain:      v.String("blockchain"),
			ContractAddress: v.String("contractAddress"),
		})
	},
	format: formatTokenPrice,
})

func formatTokenPrice(v schema.Values, reply *ankr.TokenPriceReply) string {
	contract := "Native Token"
	if reply.ContractAddress != "" {
		contract = Truncate(reply.ContractAddress)
	}

	text := fmt.Sprintf("Current token price on %s:\n\n", v.String("blockchain")) +
		fmt.Sprintf("Price: $%s USD\n", FormatFixed(reply.UsdPrice, 5)) +
		fmt.Sprintf("Contract: %s", contract)
	if reply.SyncStatus != nil {
		text += "\n" + syncLine(reply.SyncStatus)
	}
	return text
}

var tokenTransfers = define(definition[ankr.TokenTransfersReply]{
	name:   "GET_TOKEN_TRANSFERS_ANKR",
	method: "GetTokenTransfers",
	similes: []string{
		"FETCH_TOKEN_TRANSFERS",
		"SHOW_TOKEN_TRANSFERS",
		"VIEW_TOKEN_TRANSFERS",
		"LIST_TOKEN_TRANSFERS",
	},
	description: "Retrieve token transfer history for a specific address on the blockchain",
	examples: []string{
		"Show me token transfers for address 0xd8da6bf26964af9d7eed9e03e53415d37aa96045 on eth",
	},
	fields: []schema.Field{
		chainField("The blockchain to get token transfers from"),
		hexField("address", "The wallet address to get token transfers for"),
		optionalHexField("contractAddress", "The token contract address (optional)", "Contract address must be empty or start with 0x"),
		timestampField("fromTimestamp", "Start timestamp for the transfers (optional)"),
		timestampField("toTimestamp", "End timestamp for the transfers (optional)"),
		flagField("descOrder", "Whether to sort transfers in descending order", true),
	},
	call: func(ctx context.Context, api API, v schema.Values) (*ankr.TokenTransfersReply, error) {
		return api.GetTokenTransfers(ctx, ankr.TransfersRequest{
			Blockchain:      v.Strings("blockchain"),
			Address:         []string{v.String("address")},
			ContractAddress: v.String("contractAddress"),
			FromTimestamp:   v.Int64("fromTimestamp"),
			ToTimestamp:     v.Int64("toTimestamp"),
			DescOrder:       boolPtr(v.Bool("descOrder")),
			PageSize:        10,
		})
	},
	format: formatTokenTransfers,
})

func formatTokenTransfers(v schema.Values, reply *ankr.TokenTransfersReply) string {
	address := v.String("address")

	var b strings.Builder
	fmt.Fprintf(&b, "Token transfers for %s on %s:\n\n", address, v.String("blockchain"))

	if len(reply.Transfers) == 0 {
		b.WriteString("No token transfers found")
		return b.String()
	}

	for i, transfer := range reply.Transfers {
		value := FormatNumber(transfer.Value)
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, transfer.TokenName, transfer.TokenSymbol)
		if SameAddress(transfer.FromAddress, address) {
			fmt.Fprintf(&b, "   Sent: %s %s\n", value, transfer.TokenSymbol)
			fmt.Fprintf(&b, "   To: %s\n", Truncate(transfer.ToAddress))
		} else {
			fmt.Fprintf(&b, "   Received: %s %s\n", value, transfer.TokenSymbol)
			fmt.Fprintf(&b, "   From: %s\n", Truncate(transfer.FromAddress))
		}
		fmt.Fprintf(&b, "   Contract: %s\n", Truncate(transfer.ContractAddress))
		fmt.Fprintf(&b, "   Tx Hash: %s\n", Truncate(transfer.TransactionHash))
		fmt.Fprintf(&b, "   Time: %s\n\n", formatUnix(transfer.Timestamp))
	}

	if reply.SyncStatus != nil {
		b.WriteString(syncLine(reply.SyncStatus))
	}
	return b.String()
}
