package action

import (
	"context"
	"fmt"
	"strings"

	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/internal/schema"
	"OpenMCP-Ankr/internal/web3/ankr"
)

var nftHolders = define(definition[ankr.NFTHoldersReply]{
	name:   "GET_NFT_HOLDERS_ANKR",
	method: "GetNFTHolders",
	similes: []string{
		"FETCH_NFT_HOLDERS",
		"SHOW_NFT_HOLDERS",
		"VIEW_NFT_HOLDERS",
		"LIST_NFT_HOLDERS",
	},
	description: "Retrieve holders of specific NFTs on specified blockchain networks.",
	examples: []string{
		"Show me holders of NFT contract 0x34d85c9cdeb23fa97cb08333b511ac86e1c4e258 on bsc",
	},
	fields: []schema.Field{
		{Name: "blockchain", Kind: schema.KindChain, Default: "eth", Description: "The blockchain to get NFT holders from"},
		hexField("contractAddress", "The NFT contract address to get holders for"),
	},
	call: func(ctx context.Context, api API, v schema.Values) (*ankr.NFTHoldersReply, error) {
		return api.GetNFTHolders(ctx, ankr.NFTHoldersRequest{
			Blockchain:      v.String("blockchain"),
			ContractAddress: v.String("contractAddress"),
			PageSize:        10,
		})
	},
	format: formatNFTHolders,
})

func formatNFTHolders(v schema.Values, reply *ankr.NFTHoldersReply) string {
	var b strings.Builder
	fmt.Fprintf(&b, "NFT Holders for contract %s on %s:\n\n", v.String("contractAddress"), v.String("blockchain"))

	if len(reply.Holders) == 0 {
		b.WriteString("No holders found for this NFT contract")
		return b.String()
	}

	fmt.Fprintf(&b, "Total Holders: %d\n\n", len(reply.Holders))
	for i, holder := range reply.Holders {
		fmt.Fprintf(&b, "%d. %s\n", i+1, holder)
	}

	if reply.SyncStatus != nil {
		b.WriteString("\n" + syncLine(reply.SyncStatus) + "\n" + lastUpdate(reply.SyncStatus))
	}
	return b.String()
}

var nftMetadata = define(definition[ankr.NFTMetadataReply]{
	name:   "GET_NFT_METADATA_ANKR",
	method: "GetNFTMetadata",
	similes: []string{
		"GET_NFT_INFO",
		"SHOW_NFT_DETAILS",
		"VIEW_NFT",
		"NFT_METADATA",
	},
	description: "Get detailed metadata for a specific NFT including traits, images, and contract information.",
	examples: []string{
		"Show me the metadata for NFT token 1234 at contract 0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d on eth",
	},
	fields: []schema.Field{
		chainField("The blockchain to get NFT metadata from"),
		hexField("contractAddress", "The NFT contract address"),
		{Name: "tokenId", Kind: schema.KindString, Required: true, Description: "The token ID of the NFT"},
	},
	call: func(ctx context.Context, api API, v schema.Values) (*ankr.NFTMetadataReply, error) {
		return api.GetNFTMetadata(ctx, ankr.NFTMetadataRequest{
			Blockchain:      v.String("blockchain"),
			ContractAddress: v.String("contractAddress"),
			TokenID:         v.String("tokenId"),
			ForceFetch:      true,
		})
	},
	format: formatNFTMetadata,
})

func formatNFTMetadata(v schema.Values, reply *ankr.NFTMetadataReply) string {
	tokenID := v.String("tokenId")
	metadata, attributes := reply.Metadata, reply.Attributes
	if metadata == nil || attributes == nil {
		return fmt.Sprintf("No metadata found for NFT with token ID %s at contract %s on %s",
			tokenID, v.String("contractAddress"), v.String("blockchain"))
	}

	title := attributes.Name
	if title == "" {
		title = "Token #" + tokenID
	}

	// 名称形如 "Collection #123" 时取井号前的部分作为集合名。
	collection := metadata.CollectionName
	if attributes.Name != "" {
		collection, _, _ = strings.Cut(attributes.Name, "#")
		collection = strings.TrimSpace(collection)
	} else if collection == "" {
		collection = "Unknown Collection"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "NFT Metadata for %s:\n\n", title)
	fmt.Fprintf(&b, "Collection: %s\n", collection)
	fmt.Fprintf(&b, "Contract: %s (%s)\n\n", Truncate(metadata.ContractAddress), metadata.ContractType)

	if attributes.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n\n", attributes.Description)
	}
	if len(attributes.Traits) > 0 {
		b.WriteString("Traits:\n")
		for _, trait := range attributes.Traits {
			fmt.Fprintf(&b, "- %s: %s\n", trait.TraitType, trait.Value)
		}
	}
	if attributes.ImageURL != "" {
		fmt.Fprintf(&b, "\nImage URL: %s\n", attributes.ImageURL)
	}
	if attributes.TokenURL != "" {
		fmt.Fprintf(&b, "Token URL: %s\n", attributes.TokenURL)
	}

	if reply.SyncStatus != nil {
		b.WriteString("\n" + syncLine(reply.SyncStatus) + "\n" + lastUpdate(reply.SyncStatus))
	}
	return b.String()
}

var nftTransfers = define(definition[ankr.NFTTransfersReply]{
	name:   "GET_NFT_TRANSFERS_ANKR",
	method: "GetNFTTransfers",
	similes: []string{
		"FETCH_NFT_TRANSFERS",
		"SHOW_NFT_TRANSFERS",
		"VIEW_NFT_TRANSFERS",
		"LIST_NFT_TRANSFERS",
	},
	description: "Retrieve NFT transfer history on specified blockchain networks.",
	examples: []string{
		"Show me NFT transfers for contract 0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d on eth",
	},
	fields: []schema.Field{
		chainField("The blockchain to get NFT transfers from"),
		optionalHexField("contractAddress", "The NFT contract address (optional)", "Contract address must be empty or start with 0x"),
		optionalHexField("fromAddress", "The sender address (optional)", "From address must be empty or start with 0x"),
		optionalHexField("toAddress", "The recipient address (optional)", "To address must be empty or start with 0x"),
		timestampField("fromTimestamp", "Start timestamp for the transfers (optional)"),
		timestampField("toTimestamp", "End timestamp for the transfers (optional)"),
	},
	check: func(v schema.Values) error {
		if v.String("contractAddress") == "" && v.String("fromAddress") == "" && v.String("toAddress") == "" {
			return xerrors.New(xerrors.CodeValidation, "At least one of contractAddress, fromAddress, or toAddress must be provided")
		}
		return nil
	},
	call: func(ctx context.Context, api API, v schema.Values) (*ankr.NFTTransfersReply, error) {
		return api.GetNFTTransfers(ctx, ankr.TransfersRequest{
			Blockchain:      v.Strings("blockchain"),
			ContractAddress: v.String("contractAddress"),
			FromAddress:     v.String("fromAddress"),
			ToAddress:       v.String("toAddress"),
			FromTimestamp:   v.Int64("fromTimestamp"),
			ToTimestamp:     v.Int64("toTimestamp"),
			PageSize:        10,
		})
	},
	format: formatNFTTransfers,
})

func formatNFTTransfers(v schema.Values, reply *ankr.NFTTransfersReply) string {
	var b strings.Builder
	fmt.Fprintf(&b, "NFT Transfers on %s:\n\n", v.String("blockchain"))
	if contract := v.String("contractAddress"); contract != "" {
		fmt.Fprintf(&b, "Contract: %s\n\n", contract)
	}
	if from := v.String("fromAddress"); from != "" {
		fmt.Fprintf(&b, "From Address: %s\n\n", from)
	}
	if to := v.String("toAddress"); to != "" {
		fmt.Fprintf(&b, "To Address: %s\n\n", to)
	}

	if len(reply.Transfers) == 0 {
		b.WriteString("No NFT transfers found")
		return b.String()
	}

	for i, transfer := range reply.Transfers {
		collection := transfer.CollectionName
		if collection == "" {
			collection = "NFT"
		}
		tokenID := transfer.TokenID
		if tokenID == "" {
			tokenID = "Unknown"
		}
		fmt.Fprintf(&b, "%d. %s (ID: %s)\n", i+1, collection, tokenID)
		fmt.Fprintf(&b, "   From: %s\n", Truncate(transfer.FromAddress))
		fmt.Fprintf(&b, "   To: %s\n", Truncate(transfer.ToAddress))
		fmt.Fprintf(&b, "   Contract: %s\n", Truncate(transfer.ContractAddress))
		fmt.Fprintf(&b, "   Type: %s\n", transfer.Type)
		fmt.Fprintf(&b, "   Tx Hash: %s\n", Truncate(transfer.TransactionHash))
		fmt.Fprintf(&b, "   Time: %s\n\n", formatUnix(transfer.Timestamp))
	}

	if reply.SyncStatus != nil {
		b.WriteString(syncLine(reply.SyncStatus) + "\n" + lastUpdate(reply.SyncStatus))
	}
	return b.String()
}

var nftsByOwner = define(definition[ankr.NFTsByOwnerReply]{
	name:   "GET_NFTS_BY_OWNER_ANKR",
	method: "GetNFTsByOwner",
	similes: []string{
		"LIST_NFTS",
		"SHOW_NFTS",
		"VIEW_NFTS",
		"FETCH_NFTS",
		"GET_OWNED_NFTS",
	},
	description: "Get NFTs owned by a specific wallet address across multiple blockchains",
	examples: []string{
		"Show me the NFTs owned by 0xd8da6bf26964af9d7eed9e03e53415d37aa96045",
	},
	fields: []schema.Field{
		{Name: "blockchain", Kind: schema.KindChainList, Description: "The blockchain(s) to get NFTs from"},
		hexField("walletAddress", "The wallet address to get NFTs for"),
	},
	call: func(ctx context.Context, api API, v schema.Values) (*ankr.NFTsByOwnerReply, error) {
		return api.GetNFTsByOwner(ctx, ankr.NFTsByOwnerRequest{
			Blockchain:    v.Strings("blockchain"),
			WalletAddress: v.String("walletAddress"),
			PageSize:      10,
		})
	},
	format: formatNFTsByOwner,
})

func formatNFTsByOwner(v schema.Values, reply *ankr.NFTsByOwnerReply) string {
	var b strings.Builder
	fmt.Fprintf(&b, "NFTs owned by %s:\n\n", v.String("walletAddress"))

	if len(reply.Assets) == 0 {
		b.WriteString("No NFTs found")
		return b.String()
	}

	for i, nft := range reply.Assets {
		name := nft.Name
		if name == "" {
			name = "Unnamed NFT"
		}
		collection := nft.CollectionName
		if collection == "" {
			collection = "Unknown Collection"
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, name)
		fmt.Fprintf(&b, "   Collection: %s\n", collection)
		fmt.Fprintf(&b, "   Token ID: %s\n", nft.TokenID)
		fmt.Fprintf(&b, "   Blockchain: %s\n", nft.Blockchain)
		fmt.Fprintf(&b, "   Contract: %s\n", Truncate(nft.ContractAddress))
		if nft.Quantity != "" && nft.Quantity != "1" {
			fmt.Fprintf(&b, "   Quantity: %s\n", nft.Quantity)
		}
		fmt.Fprintf(&b, "   Type: %s\n\n", nft.ContractType)
	}

	if reply.SyncStatus != nil {
		b.WriteString(syncLine(reply.SyncStatus))
	}
	return b.String()
}
