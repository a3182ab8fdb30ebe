package action

import (
	"context"
	"fmt"
	"strings"

	"OpenMCP-Ankr/internal/schema"
	"OpenMCP-Ankr/internal/web3/ankr"
)

var transactionsByAddress = define(definition[ankr.TransactionsReply]{
	name:   "GET_TRANSACTIONS_BY_ADDRESS_ANKR",
	method: "GetTransactionsByAddress",
	similes: []string{
		"LIST_TXS",
		"SHOW_TXS",
		"VIEW_TRANSACTIONS",
		"GET_ADDRESS_TXS",
	},
	description: "Get transactions for a specific address on the blockchain",
	examples: []string{
		"Show me the latest transactions for address 0xd8da6bf26964af9d7eed9e03e53415d37aa96045 on eth",
	},
	fields: []schema.Field{
		chainField("The blockchain to get transactions from"),
		hexField("address", "The wallet address to get transactions for"),
		flagField("includeLogs", "Whether to include transaction logs", true),
		flagField("descOrder", "Whether to sort transactions in descending order", true),
	},
	call: func(ctx context.Context, api API, v schema.Values) (*ankr.TransactionsReply, error) {
		return api.GetTransactionsByAddress(ctx, ankr.TransactionsByAddressRequest{
			Blockchain:  v.Strings("blockchain"),
			Address:     []string{v.String("address")},
			IncludeLogs: v.Bool("includeLogs"),
			DescOrder:   boolPtr(v.Bool("descOrder")),
			PageSize:    10,
		})
	},
	format: formatTransactionsByAddress,
})

func formatTransactionsByAddress(v schema.Values, reply *ankr.TransactionsReply) string {
	blockchain := v.String("blockchain")

	var b strings.Builder
	fmt.Fprintf(&b, "Transactions for %s on %s:\n\n", v.String("address"), blockchain)

	if len(reply.Transactions) == 0 {
		b.WriteString("No transactions found")
		return b.String()
	}

	unit := "native tokens"
	if blockchain == "eth" {
		unit = "ETH"
	}

	for i, tx := range reply.Transactions {
		status := "Failed"
		if tx.Status == "0x1" {
			status = "Success"
		}

		fmt.Fprintf(&b, "%d. Transaction\n", i+1)
		fmt.Fprintf(&b, "   Hash: %s\n", Truncate(tx.Hash))
		fmt.Fprintf(&b, "   From: %s\n", Truncate(tx.From))
		if tx.To != "" {
			fmt.Fprintf(&b, "   To: %s\n", Truncate(tx.To))
		} else if tx.ContractAddress != "" {
			fmt.Fprintf(&b, "   Contract Created: %s\n", Truncate(tx.ContractAddress))
		}
		fmt.Fprintf(&b, "   Value: %s %s\n", FormatEther(tx.Value.String()), unit)
		fmt.Fprintf(&b, "   Status: %s\n", status)
		fmt.Fprintf(&b, "   Time: %s\n\n", FormatTimestamp(tx.Timestamp.String()))
	}

	if reply.SyncStatus != nil {
		b.WriteString(syncLine(reply.SyncStatus))
	}
	return b.String()
}

var transactionsByHash = define(definition[ankr.TransactionsReply]{
	name:   "GET_TRANSACTIONS_BY_HASH_ANKR",
	method: "GetTransactionsByHash",
	similes: []string{
		"FETCH_TRANSACTION_BY_HASH",
		"SHOW_TRANSACTION_BY_HASH",
		"VIEW_TRANSACTION_BY_HASH",
		"GET_TX_BY_HASH",
	},
	description: "Retrieve transaction details by transaction hash on specified blockchain networks.",
	examples: []string{
		"Show me transaction 0x5a4bf6970980a9381e6d6c78d96ab278035bbff58c383ffe96a0a2bbc7c02a4c on eth",
	},
	fields: []schema.Field{
		{Name: "blockchain", Kind: schema.KindChain, Description: "The blockchain to get transaction from (optional)"},
		hexField("transactionHash", "The transaction hash to look up"),
		flagField("includeLogs", "Whether to include transaction logs", false),
	},
	call: func(ctx context.Context, api API, v schema.Values) (*ankr.TransactionsReply, error) {
		includeLogs := v.Bool("includeLogs")
		return api.GetTransactionsByHash(ctx, ankr.TransactionsByHashRequest{
			Blockchain:      v.Strings("blockchain"),
			TransactionHash: v.String("transactionHash"),
			IncludeLogs:     includeLogs,
			DecodeLogs:      includeLogs,
			DecodeTxData:    true,
		})
	},
	format: formatTransactionsByHash,
})

func formatTransactionsByHash(v schema.Values, reply *ankr.TransactionsReply) string {
	hash := v.String("transactionHash")

	var b strings.Builder
	fmt.Fprintf(&b, "Transaction details for hash %s:\n\n", hash)

	if len(reply.Transactions) == 0 {
		b.WriteString("No transaction found with this hash")
		return b.String()
	}

	for i, tx := range reply.Transactions {
		chain := tx.Blockchain
		if chain == "" {
			chain = "Unknown"
		}
		txHash := tx.Hash
		if txHash == "" {
			txHash = hash
		}

		fmt.Fprintf(&b, "Transaction #%d:\n", i+1)
		fmt.Fprintf(&b, "Blockchain: %s\n", chain)
		fmt.Fprintf(&b, "Hash: %s\n", txHash)
		fmt.Fprintf(&b, "Block: %s\n", tx.BlockNumber)
		fmt.Fprintf(&b, "From: %s\n", tx.From)
		if tx.To != "" {
			fmt.Fprintf(&b, "To: %s\n", tx.To)
		} else if tx.ContractAddress != "" {
			fmt.Fprintf(&b, "Contract Created: %s\n", tx.ContractAddress)
		}
		fmt.Fprintf(&b, "Value: %s\n", tx.Value)
		if tx.Gas != "" {
			fmt.Fprintf(&b, "Gas Limit: %s\n", tx.Gas)
		}
		if tx.GasUsed != "" {
			fmt.Fprintf(&b, "Gas Used: %s\n", tx.GasUsed)
		}
		if tx.GasPrice != "" {
			fmt.Fprintf(&b, "Gas Price: %s\n", tx.GasPrice)
		}
		if tx.Status != "" {
			status := "Failed"
			if tx.Status == "1" || tx.Status == "0x1" {
				status = "Success"
			}
			fmt.Fprintf(&b, "Status: %s\n", status)
		}
		if tx.Timestamp != "" {
			fmt.Fprintf(&b, "Time: %s\n", FormatTimestamp(tx.Timestamp.String()))
		}

		if v.Bool("includeLogs") && len(tx.Logs) > 0 {
			fmt.Fprintf(&b, "\nLogs (%d):\n", len(tx.Logs))
			for j, log := range tx.Logs {
				fmt.Fprintf(&b, "  Log #%d:\n", j+1)
				fmt.Fprintf(&b, "    Address: %s\n", log.Address)
				fmt.Fprintf(&b, "    Topics: %s\n", strings.Join(log.Topics, ", "))
				if log.Event == nil {
					continue
				}
				fmt.Fprintf(&b, "    Event: %s\n", log.Event.Name)
				if len(log.Event.Inputs) > 0 {
					b.WriteString("    Inputs:\n")
					for _, input := range log.Event.Inputs {
						fmt.Fprintf(&b, "      %s (%s): %s\n", input.Name, input.Type, input.ValueDecoded)
					}
				}
			}
		}
		b.WriteString("\n")
	}

	if reply.SyncStatus != nil {
		b.WriteString(syncLine(reply.SyncStatus) + "\n" + lastUpdate(reply.SyncStatus))
	}
	return b.String()
}
