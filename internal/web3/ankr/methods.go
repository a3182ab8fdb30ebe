package ankr

import "context"

// Ankr Advanced API 方法名。
const (
	MethodGetAccountBalance        = "ankr_getAccountBalance"
	MethodGetBlockchainStats       = "ankr_getBlockchainStats"
	MethodGetCurrencies            = "ankr_getCurrencies"
	MethodGetInteractions          = "ankr_getInteractions"
	MethodGetNFTHolders            = "ankr_getNFTHolders"
	MethodGetNFTMetadata           = "ankr_getNFTMetadata"
	MethodGetNFTTransfers          = "ankr_getNftTransfers"
	MethodGetNFTsByOwner           = "ankr_getNFTsByOwner"
	MethodGetTokenHolders          = "ankr_getTokenHolders"
	MethodGetTokenHoldersCount     = "ankr_getTokenHoldersCount"
	MethodGetTokenPrice            = "ankr_getTokenPrice"
	MethodGetTokenTransfers        = "ankr_getTokenTransfers"
	MethodGetTransactionsByAddress = "ankr_getTransactionsByAddress"
	MethodGetTransactionsByHash    = "ankr_getTransactionsByHash"
)

// AccountBalanceRequest 是 ankr_getAccountBalance 的参数。
type AccountBalanceRequest struct {
	Blockchain      ChainSet `json:"blockchain,omitempty"`
	WalletAddress   string   `json:"walletAddress"`
	OnlyWhitelisted bool     `json:"onlyWhitelisted,omitempty"`
	PageSize        int      `json:"pageSize,omitempty"`
	PageToken       string   `json:"pageToken,omitempty"`
}

// BlockchainStatsRequest 是 ankr_getBlockchainStats 的参数。
type BlockchainStatsRequest struct {
	Blockchain ChainSet `json:"blockchain,omitempty"`
}

// CurrenciesRequest 是 ankr_getCurrencies 的参数。
type CurrenciesRequest struct {
	Blockchain string `json:"blockchain"`
}

// InteractionsRequest 是 ankr_getInteractions 的参数，Blockchain 为空时查询全部链。
type InteractionsRequest struct {
	Address    string `json:"address"`
	Blockchain string `json:"blockchain,omitempty"`
}

// NFTHoldersRequest 是 ankr_getNFTHolders 的参数。
type NFTHoldersRequest struct {
	Blockchain      string `json:"blockchain"`
	ContractAddress string `json:"contractAddress"`
	PageSize        int    `json:"pageSize,omitempty"`
	PageToken       string `json:"pageToken,omitempty"`
}

// NFTMetadataRequest 是 ankr_getNFTMetadata 的参数。
type NFTMetadataRequest struct {
	Blockchain      string `json:"blockchain"`
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenId"`
	ForceFetch      bool   `json:"forceFetch"`
}

// TransfersRequest 是 ankr_getNftTransfers 与 ankr_getTokenTransfers 共用的参数。
type TransfersRequest struct {
	Blockchain      ChainSet `json:"blockchain,omitempty"`
	Address         []string `json:"address,omitempty"`
	ContractAddress string   `json:"contractAddress,omitempty"`
	FromAddress     string   `json:"fromAddress,omitempty"`
	ToAddress       string   `json:"toAddress,omitempty"`
	FromTimestamp   int64    `json:"fromTimestamp,omitempty"`
	ToTimestamp     int64    `json:"toTimestamp,omitempty"`
	DescOrder       *bool    `json:"descOrder,omitempty"`
	PageSize        int      `json:"pageSize,omitempty"`
	PageToken       string   `json:"pageToken,omitempty"`
}

// NFTsByOwnerRequest 是 ankr_getNFTsByOwner 的参数。
type NFTsByOwnerRequest struct {
	Blockchain    ChainSet `json:"blockchain,omitempty"`
	WalletAddress string   `json:"walletAddress"`
	PageSize      int      `json:"pageSize,omitempty"`
	PageToken     string   `json:"pageToken,omitempty"`
}

// TokenHoldersRequest 是 ankr_getTokenHolders 与 ankr_getTokenHoldersCount 的参数。
type TokenHoldersRequest struct {
	Blockchain      string `json:"blockchain"`
	ContractAddress string `json:"contractAddress"`
	PageSize        int    `json:"pageSize,omitempty"`
	PageToken       string `json:"pageToken,omitempty"`
}

// TokenPriceRequest 是 ankr_getTokenPrice 的参数，合约地址为空表示原生币。
type TokenPriceRequest struct {
	Blockchain      string `json:"blockchain"`
	ContractAddress string `json:"contractAddress,omitempty"`
}

// TransactionsByAddressRequest 是 ankr_getTransactionsByAddress 的参数。
type TransactionsByAddressRequest struct {
	Blockchain  ChainSet `json:"blockchain,omitempty"`
	Address     []string `json:"address"`
	IncludeLogs bool     `json:"includeLogs"`
	DescOrder   *bool    `json:"descOrder,omitempty"`
	PageSize    int      `json:"pageSize,omitempty"`
	PageToken   string   `json:"pageToken,omitempty"`
}

// TransactionsByHashRequest 是 ankr_getTransactionsByHash 的参数。
type TransactionsByHashRequest struct {
	Blockchain      ChainSet `json:"blockchain,omitempty"`
	TransactionHash string   `json:"transactionHash"`
	IncludeLogs     bool     `json:"includeLogs"`
	DecodeLogs      bool     `json:"decodeLogs"`
	DecodeTxData    bool     `json:"decodeTxData"`
}

// GetAccountBalance 查询钱包在一条或多条链上的资产。
func (c *Client) GetAccountBalance(ctx context.Context, req AccountBalanceRequest) (*AccountBalanceReply, error) {
	var out AccountBalanceReply
	if err := c.Call(ctx, MethodGetAccountBalance, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBlockchainStats 查询链的统计数据。
func (c *Client) GetBlockchainStats(ctx context.Context, req BlockchainStatsRequest) (*BlockchainStatsReply, error) {
	var out BlockchainStatsReply
	if err := c.Call(ctx, MethodGetBlockchainStats, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCurrencies 查询链上的币种。
func (c *Client) GetCurrencies(ctx context.Context, req CurrenciesRequest) (*CurrenciesReply, error) {
	var out CurrenciesReply
	if err := c.Call(ctx, MethodGetCurrencies, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetInteractions 查询地址有过交互的链。
func (c *Client) GetInteractions(ctx context.Context, req InteractionsRequest) (*InteractionsReply, error) {
	var out InteractionsReply
	if err := c.Call(ctx, MethodGetInteractions, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetNFTHolders 查询 NFT 合约的持有人。
func (c *Client) GetNFTHolders(ctx context.Context, req NFTHoldersRequest) (*NFTHoldersReply, error) {
	var out NFTHoldersReply
	if err := c.Call(ctx, MethodGetNFTHolders, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetNFTMetadata 查询单个 NFT 的元数据。
func (c *Client) GetNFTMetadata(ctx context.Context, req NFTMetadataRequest) (*NFTMetadataReply, error) {
	var out NFTMetadataReply
	if err := c.Call(ctx, MethodGetNFTMetadata, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetNFTTransfers 查询 NFT 转移记录。
func (c *Client) GetNFTTransfers(ctx context.Context, req TransfersRequest) (*NFTTransfersReply, error) {
	var out NFTTransfersReply
	if err := c.Call(ctx, MethodGetNFTTransfers, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetNFTsByOwner 查询钱包持有的 NFT。
func (c *Client) GetNFTsByOwner(ctx context.Context, req NFTsByOwnerRequest) (*NFTsByOwnerReply, error) {
	var out NFTsByOwnerReply
	if err := c.Call(ctx, MethodGetNFTsByOwner, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTokenHolders 查询代币持有人。
func (c *Client) GetTokenHolders(ctx context.Context, req TokenHoldersRequest) (*TokenHoldersReply, error) {
	var out TokenHoldersReply
	if err := c.Call(ctx, MethodGetTokenHolders, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTokenHoldersCount 查询代币持有人数量及历史。
func (c *Client) GetTokenHoldersCount(ctx context.Context, req TokenHoldersRequest) (*TokenHoldersCountReply, error) {
	var out TokenHoldersCountReply
	if err := c.Call(ctx, MethodGetTokenHoldersCount, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTokenPrice 查询代币的美元价格。
func (c *Client) GetTokenPrice(ctx context.Context, req TokenPriceRequest) (*TokenPriceReply, error) {
	var out TokenPriceReply
	if err := c.Call(ctx, MethodGetTokenPrice, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTokenTransfers 查询代币转账记录。
func (c *Client) GetTokenTransfers(ctx context.Context, req TransfersRequest) (*TokenTransfersReply, error) {
	var out TokenTransfersReply
	if err := c.Call(ctx, MethodGetTokenTransfers, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransactionsByAddress 查询地址相关的交易。
func (c *Client) GetTransactionsByAddress(ctx context.Context, req TransactionsByAddressRequest) (*TransactionsReply, error) {
	var out TransactionsReply
	if err := c.Call(ctx, MethodGetTransactionsByAddress, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransactionsByHash 按哈希查询交易。
func (c *Client) GetTransactionsByHash(ctx context.Context, req TransactionsByHashRequest) (*TransactionsReply, error) {
	var out TransactionsReply
	if err := c.Call(ctx, MethodGetTransactionsByHash, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
