package action

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"OpenMCP-Ankr/internal/schema"
	"OpenMCP-Ankr/internal/web3/ankr"
)

func TestTruncate(t *testing.T) {
	cases := map[string]string{
		"":           "",
		"0x1234":     "0x1234",
		"0x12345678": "0x1234...5678",
		"0xd8da6bf26964af9d7eed9e03e53415d37aa96045": "0xd8da...6045",
	}
	for in, want := range cases {
		if got := Truncate(in); got != want {
			t.Fatalf("Truncate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNumberFormatting(t *testing.T) {
	if got := FormatEther("2500000000000000000"); got != "2.5000" {
		t.Fatalf("decimal wei: %s", got)
	}
	if got := FormatEther("0x22b1c8c1227a0000"); got != "2.5000" {
		t.Fatalf("hex wei: %s", got)
	}
	if got := FormatEther("not a number"); got != "0.0000" {
		t.Fatalf("invalid wei: %s", got)
	}
	if got := FormatCount(1234567); got != "1,234,567" {
		t.Fatalf("count: %s", got)
	}
	if got := FormatCount(-1000); got != "-1,000" {
		t.Fatalf("negative count: %s", got)
	}
	locale := map[string]string{
		"1234567.891234": "1,234,567.891",
		"1000":           "1,000",
		"0.5":            "0.5",
		"abc":            "NaN",
		"-0.0001":        "0",
	}
	for in, want := range locale {
		if got := FormatLocale(in); got != want {
			t.Fatalf("FormatLocale(%q) = %q, want %q", in, got, want)
		}
	}
	fixed := map[string]string{
		"1.23456789": "1.23457",
		"":           "0.00000",
		"oops":       "NaN",
		"1e400":      "Infinity",
	}
	for in, want := range fixed {
		if got := FormatFixed(in, 5); got != want {
			t.Fatalf("FormatFixed(%q) = %q, want %q", in, got, want)
		}
	}
	if ts, ok := ParseTimestamp("0x6553f100"); !ok || ts != 1700000000 {
		t.Fatalf("hex timestamp: %d %v", ts, ok)
	}
}

func TestDates(t *testing.T) {
	at := time.Date(2024, 3, 5, 0, 4, 9, 0, time.UTC)
	if got := FormatTime(at); got != "3/5/2024, 12:04:09 AM" {
		t.Fatalf("date time: %s", got)
	}
	if got := FormatDate(at); got != "3/5/2024" {
		t.Fatalf("date: %s", got)
	}
	if got := FormatTimestamp("0x6553f100"); got != "11/14/2023, 10:13:20 PM" {
		t.Fatalf("hex timestamp: %s", got)
	}
	if got := FormatTimestamp("pending"); got != "Invalid Date" {
		t.Fatalf("unparsable timestamp should render as Invalid Date: %s", got)
	}
}

func TestSameAddress(t *testing.T) {
	if !SameAddress("0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045", "0xd8da6bf26964af9d7eed9e03e53415d37aa96045") {
		t.Fatalf("checksum and lowercase forms should match")
	}
	if SameAddress("0xd8da6bf26964af9d7eed9e03e53415d37aa96045", "0x1111111111111111111111111111111111111111") {
		t.Fatalf("different addresses matched")
	}
	if !SameAddress("abc", "ABC") {
		t.Fatalf("non-hex values fall back to case-insensitive comparison")
	}
}

func TestEmptyListsShortCircuit(t *testing.T) {
	cases := []struct {
		name   string
		values schema.Values
		reply  any
		want   string
	}{
		{"GET_ACCOUNT_BALANCE_ANKR", schema.Values{"walletAddress": "0xabc"}, &ankr.AccountBalanceReply{SyncStatus: synced},
			"Here are the balances for wallet 0xabc:\n\nNo balances found"},
		{"GET_CURRENCIES_ANKR", schema.Values{"blockchain": "eth"}, &ankr.CurrenciesReply{SyncStatus: synced},
			"Here are the top currencies on eth:\n\nNo currencies found"},
		{"GET_INTERACTIONS_ANKR", schema.Values{"address": "0xabc"}, &ankr.InteractionsReply{SyncStatus: synced},
			"Blockchain interactions for address 0xabc:\n\nNo interactions found on any blockchain"},
		{"GET_NFT_HOLDERS_ANKR", schema.Values{"blockchain": "eth", "contractAddress": "0xabc"}, &ankr.NFTHoldersReply{SyncStatus: synced},
			"NFT Holders for contract 0xabc on eth:\n\nNo holders found for this NFT contract"},
		{"GET_NFTS_BY_OWNER_ANKR", schema.Values{"walletAddress": "0xabc"}, &ankr.NFTsByOwnerReply{SyncStatus: synced},
			"NFTs owned by 0xabc:\n\nNo NFTs found"},
		{"GET_TRANSACTIONS_BY_HASH_ANKR", schema.Values{"transactionHash": "0xabc"}, &ankr.TransactionsReply{SyncStatus: synced},
			"Transaction details for hash 0xabc:\n\nNo transaction found with this hash"},
		{"GET_NFT_METADATA_ANKR", schema.Values{"blockchain": "eth", "contractAddress": "0xabc", "tokenId": "7"}, &ankr.NFTMetadataReply{},
			"No metadata found for NFT with token ID 7 at contract 0xabc on eth"},
		{"GET_BLOCKCHAIN_STATS_ANKR", schema.Values{"blockchain": "bsc"}, &ankr.BlockchainStatsReply{},
			"Blockchain Statistics for Binance Smart Chain (bsc):\n\nNo blockchain statistics found"},
	}
	for _, tc := range cases {
		d, _ := Lookup(tc.name)
		got, err := d.Format(tc.values, tc.reply)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s:\n got %q\nwant %q", tc.name, got, tc.want)
		}
	}
}

func TestFormatNFTMetadata(t *testing.T) {
	reply := &ankr.NFTMetadataReply{
		Metadata: &ankr.NFTMetadata{ContractAddress: "0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d", ContractType: "ERC721"},
		Attributes: &ankr.NFTAttributes{
			Name:     "BoredApeYachtClub #1234",
			ImageURL: "ipfs://image",
			Traits:   []ankr.Trait{{TraitType: "Fur", Value: "Gold"}},
		},
		SyncStatus: synced,
	}
	values := schema.Values{"blockchain": "eth", "contractAddress": "0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d", "tokenId": "1234"}

	got := formatNFTMetadata(values, reply)
	want := "NFT Metadata for BoredApeYachtClub #1234:\n\n" +
		"Collection: BoredApeYachtClub\n" +
		"Contract: 0xbc4c...f13d (ERC721)\n\n" +
		"Traits:\n- Fur: Gold\n" +
		"\nImage URL: ipfs://image\n" +
		"\nSync Status: synced (lag: -2s)\n" +
		"Last Update: 11/14/2023, 10:13:20 PM"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatTokenHoldersCount(t *testing.T) {
	reply := &ankr.TokenHoldersCountReply{
		LatestHoldersCount: 4521987,
		HolderCountHistory: []ankr.HolderCount{
			{HolderCount: 4521987, TotalAmount: "39823711248.123456", LastUpdatedAt: ankr.Millis(1709337600000)},
		},
		SyncStatus: synced,
	}
	got := formatTokenHoldersCount(schema.Values{"blockchain": "eth"}, reply)
	want := "Token Holders Count on ETH:\n\n" +
		"Current Holders: 4,521,987\n\n" +
		"Historical Data:\n" +
		"\n1. 3/2/2024\n" +
		"   Holders: 4,521,987\n" +
		"   Total Amount: 39,823,711,248.123" +
		"\n\nSync Status: synced (-2s)"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("holders count mismatch (-want +got):\n%s", diff)
	}
}
