package action

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/internal/web3/ankr"
)

type stubAPI struct {
	API

	tokenPrice      *ankr.TokenPriceReply
	tokenTransfers  *ankr.TokenTransfersReply
	transactions    *ankr.TransactionsReply
	nftTransfers    *ankr.NFTTransfersReply
	lastPriceReq    ankr.TokenPriceRequest
	lastTransferReq ankr.TransfersRequest
	lastTxReq       ankr.TransactionsByAddressRequest
}

func (s *stubAPI) GetTokenPrice(_ context.Context, req ankr.TokenPriceRequest) (*ankr.TokenPriceReply, error) {
	s.lastPriceReq = req
	return s.tokenPrice, nil
}

func (s *stubAPI) GetTokenTransfers(_ context.Context, req ankr.TransfersRequest) (*ankr.TokenTransfersReply, error) {
	s.lastTransferReq = req
	return s.tokenTransfers, nil
}

func (s *stubAPI) GetNFTTransfers(_ context.Context, req ankr.TransfersRequest) (*ankr.NFTTransfersReply, error) {
	s.lastTransferReq = req
	return s.nftTransfers, nil
}

func (s *stubAPI) GetTransactionsByAddress(_ context.Context, req ankr.TransactionsByAddressRequest) (*ankr.TransactionsReply, error) {
	s.lastTxReq = req
	return s.transactions, nil
}

var synced = &ankr.SyncStatus{Timestamp: 1700000000, Lag: "-2s", Status: "synced"}

func run(t *testing.T, name string, api API, raw map[string]any) string {
	t.Helper()
	d, ok := Lookup(name)
	if !ok {
		t.Fatalf("action %s not registered", name)
	}
	values, err := d.ValidateRequest(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	reply, err := d.Call(context.Background(), api, values)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	text, err := d.Format(values, reply)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	return text
}

func TestRegistry(t *testing.T) {
	all := All()
	if len(all) != 14 {
		t.Fatalf("expected 14 actions, got %d", len(all))
	}
	seen := map[string]bool{}
	for _, d := range all {
		if seen[d.Name] {
			t.Fatalf("duplicate action %s", d.Name)
		}
		seen[d.Name] = true
		if !strings.HasSuffix(d.Name, "_ANKR") || d.Method == "" || len(d.Similes) == 0 || len(d.Examples) == 0 {
			t.Fatalf("incomplete descriptor %+v", d.Name)
		}
	}

	d, ok := Lookup("price_check")
	if !ok || d.Name != "GET_TOKEN_PRICE_ANKR" {
		t.Fatalf("simile lookup failed: %v %v", ok, d.Name)
	}
	if _, ok := Lookup("GET_GAS_ANKR"); ok {
		t.Fatalf("unknown action should not resolve")
	}
}

func TestTokenPriceEndToEnd(t *testing.T) {
	api := &stubAPI{tokenPrice: &ankr.TokenPriceReply{
		Blockchain: "eth",
		UsdPrice:   "3021.1234567",
		SyncStatus: synced,
	}}

	got := run(t, "GET_TOKEN_PRICE_ANKR", api, map[string]any{"blockchain": "eth"})
	want := "Current token price on eth:\n\n" +
		"Price: $3021.12346 USD\n" +
		"Contract: Native Token\n" +
		"Sync Status: synced (lag: -2s)"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("token price mismatch (-want +got):\n%s", diff)
	}
	if api.lastPriceReq.ContractAddress != "" || api.lastPriceReq.Blockchain != "eth" {
		t.Fatalf("unexpected request: %+v", api.lastPriceReq)
	}
}

func TestTokenTransfersDirection(t *testing.T) {
	api := &stubAPI{tokenTransfers: &ankr.TokenTransfersReply{
		Transfers: []ankr.TokenTransfer{
			{
				FromAddress:     "0xd8da6bf26964af9d7eed9e03e53415d37aa96045",
				ToAddress:       "0x1111111111111111111111111111111111111111",
				ContractAddress: "0xdac17f958d2ee523a2206206994597c13d831ec7",
				Value:           "12.50",
				TokenName:       "Tether USD",
				TokenSymbol:     "USDT",
				TransactionHash: "0xabcdef0123456789",
				Timestamp:       1700000000,
			},
			{
				FromAddress:     "0x2222222222222222222222222222222222222222",
				ToAddress:       "0xd8da6bf26964af9d7eed9e03e53415d37aa96045",
				ContractAddress: "0xdac17f958d2ee523a2206206994597c13d831ec7",
				Value:           "3",
				TokenName:       "Tether USD",
				TokenSymbol:     "USDT",
				TransactionHash: "0x9999",
				Timestamp:       1700000000,
			},
		},
		SyncStatus: synced,
	}}

	got := run(t, "SHOW_TOKEN_TRANSFERS", api, map[string]any{
		"blockchain": "eth",
		"address":    "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045",
	})
	want := "Token transfers for 0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045 on eth:\n\n" +
		"1. Tether USD (USDT)\n" +
		"   Sent: 12.5 USDT\n" +
		"   To: 0x1111...1111\n" +
		"   Contract: 0xdac1...1ec7\n" +
		"   Tx Hash: 0xabcd...6789\n" +
		"   Time: 11/14/2023, 10:13:20 PM\n\n" +
		"2. Tether USD (USDT)\n" +
		"   Received: 3 USDT\n" +
		"   From: 0x2222...2222\n" +
		"   Contract: 0xdac1...1ec7\n" +
		"   Tx Hash: 0x9999\n" +
		"   Time: 11/14/2023, 10:13:20 PM\n\n" +
		"Sync Status: synced (lag: -2s)"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("token transfers mismatch (-want +got):\n%s", diff)
	}

	req := api.lastTransferReq
	if len(req.Address) != 1 || req.DescOrder == nil || !*req.DescOrder || req.PageSize != 10 {
		t.Fatalf("unexpected call shaping: %+v", req)
	}
}

func TestTransactionsByAddressFormatsWei(t *testing.T) {
	api := &stubAPI{transactions: &ankr.TransactionsReply{
		Transactions: []ankr.Transaction{{
			Hash:      "0x5a4bf6970980a9381e6d6c78d96ab278035bbff58c383ffe96a0a2bbc7c02a4c",
			From:      "0xd8da6bf26964af9d7eed9e03e53415d37aa96045",
			Value:     "0x22b1c8c1227a0000",
			Status:    "0x1",
			Timestamp: "0x6553f100",
		}, {
			Hash:            "0x01",
			From:            "0xd8da6bf26964af9d7eed9e03e53415d37aa96045",
			ContractAddress: "0x3333333333333333333333333333333333333333",
			Value:           "0",
			Status:          "0x0",
			Timestamp:       "0x6553f100",
		}},
	}}

	got := run(t, "GET_TRANSACTIONS_BY_ADDRESS_ANKR", api, map[string]any{
		"blockchain": "eth",
		"address":    "0xd8da6bf26964af9d7eed9e03e53415d37aa96045",
	})
	want := "Transactions for 0xd8da6bf26964af9d7eed9e03e53415d37aa96045 on eth:\n\n" +
		"1. Transaction\n" +
		"   Hash: 0x5a4b...2a4c\n" +
		"   From: 0xd8da...6045\n" +
		"   Value: 2.5000 ETH\n" +
		"   Status: Success\n" +
		"   Time: 11/14/2023, 10:13:20 PM\n\n" +
		"2. Transaction\n" +
		"   Hash: 0x01\n" +
		"   From: 0xd8da...6045\n" +
		"   Contract Created: 0x3333...3333\n" +
		"   Value: 0.0000 ETH\n" +
		"   Status: Failed\n" +
		"   Time: 11/14/2023, 10:13:20 PM\n\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("transactions mismatch (-want +got):\n%s", diff)
	}
	if !api.lastTxReq.IncludeLogs || api.lastTxReq.DescOrder == nil || !*api.lastTxReq.DescOrder {
		t.Fatalf("defaults not applied: %+v", api.lastTxReq)
	}
}

func TestNFTTransfersRequiresAnAddress(t *testing.T) {
	d, _ := Lookup("GET_NFT_TRANSFERS_ANKR")

	_, err := d.ValidateRequest(map[string]any{"blockchain": "eth", "contractAddress": ""})
	xe, ok := xerrors.From(err)
	if !ok || xe.Code() != xerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if xe.Message() != "At least one of contractAddress, fromAddress, or toAddress must be provided" {
		t.Fatalf("unexpected message %q", xe.Message())
	}

	_, err = d.ValidateRequest(map[string]any{"blockchain": "eth", "fromAddress": "abc"})
	if xe, _ := xerrors.From(err); xe == nil || !strings.Contains(xe.Message(), "From address must be empty or start with 0x") {
		t.Fatalf("structural issue should be reported first, got %v", err)
	}

	api := &stubAPI{nftTransfers: &ankr.NFTTransfersReply{}}
	got := run(t, "GET_NFT_TRANSFERS_ANKR", api, map[string]any{
		"blockchain":    "eth",
		"toAddress":     "0xd8da6bf26964af9d7eed9e03e53415d37aa96045",
		"fromTimestamp": 1700000000,
	})
	if got != "NFT Transfers on eth:\n\nTo Address: 0xd8da6bf26964af9d7eed9e03e53415d37aa96045\n\nNo NFT transfers found" {
		t.Fatalf("unexpected empty output %q", got)
	}
	req := api.lastTransferReq
	if req.ContractAddress != "" || req.FromAddress != "" || req.FromTimestamp != 1700000000 || req.ToTimestamp != 0 {
		t.Fatalf("absent fields must be omitted: %+v", req)
	}
}

func TestFormatTypeMismatch(t *testing.T) {
	d, _ := Lookup("GET_TOKEN_PRICE_ANKR")
	if _, err := d.Format(nil, &ankr.CurrenciesReply{}); err == nil {
		t.Fatalf("expected error for mismatched reply type")
	}
}
