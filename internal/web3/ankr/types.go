package ankr

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// SyncStatus 描述 Ankr 索引相对链头的同步情况。
type SyncStatus struct {
	Timestamp int64  `json:"timestamp"`
	Lag       Text   `json:"lag"`
	Status    string `json:"status"`
}

// Time 返回最后同步时间，Timestamp 单位为秒。
func (s SyncStatus) Time() time.Time {
	return time.Unix(s.Timestamp, 0).UTC()
}

// Text 兼容字符串、数字与布尔形式的 JSON 值，统一保存为字符串。
type Text string

// UnmarshalJSON 实现 json.Unmarshaler。
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(data)
	return nil
}

func (t Text) String() string {
	return string(t)
}

// Millis 是毫秒时间戳，也接受数字字符串和 RFC 3339 文本。
type Millis int64

// UnmarshalJSON 实现 json.Unmarshaler。
func (m *Millis) UnmarshalJSON(data []byte) error {
	var raw Text
	if err := raw.UnmarshalJSON(data); err != nil {
		return err
	}
	value := strings.TrimSpace(string(raw))
	if value == "" {
		*m = 0
		return nil
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		*m = Millis(int64(n))
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return err
	}
	*m = Millis(ts.UnixMilli())
	return nil
}

// Time 转换为 UTC 时间。
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m)).UTC()
}

// ChainSet 序列化时单个元素输出字符串，多个元素输出数组。
type ChainSet []string

// MarshalJSON 实现 json.Marshaler。
func (c ChainSet) MarshalJSON() ([]byte, error) {
	if len(c) == 1 {
		return json.Marshal(c[0])
	}
	return json.Marshal([]string(c))
}

// Balance 是账户的单个资产余额。
type Balance struct {
	Blockchain        string `json:"blockchain"`
	TokenName         string `json:"tokenName"`
	TokenSymbol       string `json:"tokenSymbol"`
	TokenDecimals     int    `json:"tokenDecimals"`
	TokenType         string `json:"tokenType"`
	ContractAddress   string `json:"contractAddress,omitempty"`
	HolderAddress     string `json:"holderAddress"`
	Balance           string `json:"balance"`
	BalanceRawInteger string `json:"balanceRawInteger"`
	BalanceUsd        string `json:"balanceUsd"`
	TokenPrice        string `json:"tokenPrice"`
	Thumbnail         string `json:"thumbnail,omitempty"`
}

// AccountBalanceReply 对应 ankr_getAccountBalance。
type AccountBalanceReply struct {
	TotalBalanceUsd string      `json:"totalBalanceUsd"`
	TotalCount      int         `json:"totalCount"`
	Assets          []Balance   `json:"assets"`
	NextPageToken   string      `json:"nextPageToken,omitempty"`
	SyncStatus      *SyncStatus `json:"syncStatus,omitempty"`
}

// BlockchainStats 是单条链的统计数据。
type BlockchainStats struct {
	Blockchain             string  `json:"blockchain"`
	TotalTransactionsCount int64   `json:"totalTransactionsCount"`
	TotalEventsCount       int64   `json:"totalEventsCount"`
	LatestBlockNumber      int64   `json:"latestBlockNumber"`
	BlockTimeMs            float64 `json:"blockTimeMs"`
	NativeCoinUsdPrice     string  `json:"nativeCoinUsdPrice"`
}

// BlockchainStatsReply 对应 ankr_getBlockchainStats。
type BlockchainStatsReply struct {
	Stats []BlockchainStats `json:"stats"`
}

// Currency 是链上的一种币。
type Currency struct {
	Blockchain string `json:"blockchain"`
	Address    string `json:"address,omitempty"`
	Name       string `json:"name"`
	Decimals   int    `json:"decimals"`
	Symbol     string `json:"symbol"`
	Thumbnail  string `json:"thumbnail,omitempty"`
}

// CurrenciesReply 对应 ankr_getCurrencies。
type CurrenciesReply struct {
	Currencies []Currency  `json:"currencies"`
	SyncStatus *SyncStatus `json:"syncStatus,omitempty"`
}

// InteractionsReply 对应 ankr_getInteractions。
type InteractionsReply struct {
	Blockchains []string    `json:"blockchains"`
	SyncStatus  *SyncStatus `json:"syncStatus,omitempty"`
}

// NFTHoldersReply 对应 ankr_getNFTHolders。
type NFTHoldersReply struct {
	Holders       []string    `json:"holders"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
	SyncStatus    *SyncStatus `json:"syncStatus,omitempty"`
}

// NFTMetadata 是 NFT 的合约层信息。
type NFTMetadata struct {
	Blockchain      string `json:"blockchain"`
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenId"`
	ContractType    Text   `json:"contractType"`
	CollectionName  string `json:"collectionName,omitempty"`
}

// Trait 是 NFT 的一个属性。
type Trait struct {
	TraitType string `json:"trait_type"`
	Value     Text   `json:"value"`
}

// NFTAttributes 是 NFT 的展示信息。
type NFTAttributes struct {
	ContractType Text    `json:"contractType"`
	TokenURL     string  `json:"tokenUrl,omitempty"`
	ImageURL     string  `json:"imageUrl,omitempty"`
	Name         string  `json:"name,omitempty"`
	Description  string  `json:"description,omitempty"`
	Traits       []Trait `json:"traits,omitempty"`
}

// NFTMetadataReply 对应 ankr_getNFTMetadata，元数据缺失时两个指针均可能为空。
type NFTMetadataReply struct {
	Metadata   *NFTMetadata   `json:"metadata,omitempty"`
	Attributes *NFTAttributes `json:"attributes,omitempty"`
	SyncStatus *SyncStatus    `json:"syncStatus,omitempty"`
}

// NFTTransfer 是一次 NFT 转移。
type NFTTransfer struct {
	FromAddress      string `json:"fromAddress"`
	ToAddress        string `json:"toAddress"`
	ContractAddress  string `json:"contractAddress"`
	Value            string `json:"value"`
	TokenID          string `json:"tokenId,omitempty"`
	Blockchain       string `json:"blockchain"`
	Type             string `json:"type"`
	TransactionHash  string `json:"transactionHash"`
	BlockHeight      int64  `json:"blockHeight"`
	Timestamp        int64  `json:"timestamp"`
	CollectionName   string `json:"collectionName,omitempty"`
	CollectionSymbol string `json:"collectionSymbol,omitempty"`
	ImageURL         string `json:"imageUrl,omitempty"`
	Name             string `json:"name,omitempty"`
}

// NFTTransfersReply 对应 ankr_getNftTransfers。
type NFTTransfersReply struct {
	Transfers     []NFTTransfer `json:"transfers"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
	SyncStatus    *SyncStatus   `json:"syncStatus,omitempty"`
}

// NFT 是钱包持有的一个 NFT。
type NFT struct {
	Blockchain      string `json:"blockchain"`
	Name            string `json:"name,omitempty"`
	TokenID         string `json:"tokenId"`
	TokenURL        string `json:"tokenUrl,omitempty"`
	ImageURL        string `json:"imageUrl,omitempty"`
	CollectionName  string `json:"collectionName,omitempty"`
	Symbol          string `json:"symbol,omitempty"`
	ContractType    Text   `json:"contractType"`
	ContractAddress string `json:"contractAddress"`
	Quantity        Text   `json:"quantity,omitempty"`
}

// NFTsByOwnerReply 对应 ankr_getNFTsByOwner。
type NFTsByOwnerReply struct {
	Owner         string      `json:"owner"`
	Assets        []NFT       `json:"assets"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
	SyncStatus    *SyncStatus `json:"syncStatus,omitempty"`
}

// Holder 是代币的一个持有人。
type Holder struct {
	HolderAddress     string `json:"holderAddress"`
	Balance           string `json:"balance"`
	BalanceRawInteger string `json:"balanceRawInteger"`
}

// TokenHoldersReply 对应 ankr_getTokenHolders。
type TokenHoldersReply struct {
	Blockchain      string      `json:"blockchain"`
	ContractAddress string      `json:"contractAddress"`
	TokenDecimals   int         `json:"tokenDecimals"`
	Holders         []Holder    `json:"holders"`
	HoldersCount    int64       `json:"holdersCount"`
	NextPageToken   string      `json:"nextPageToken,omitempty"`
	SyncStatus      *SyncStatus `json:"syncStatus,omitempty"`
}

// HolderCount 是某一时刻的持有人统计。
type HolderCount struct {
	HolderCount           int64  `json:"holderCount"`
	TotalAmount           string `json:"totalAmount"`
	TotalAmountRawInteger string `json:"totalAmountRawInteger"`
	LastUpdatedAt         Millis `json:"lastUpdatedAt"`
}

// TokenHoldersCountReply 对应 ankr_getTokenHoldersCount。
type TokenHoldersCountReply struct {
	Blockchain         string        `json:"blockchain"`
	ContractAddress    string        `json:"contractAddress"`
	TokenDecimals      int           `json:"tokenDecimals"`
	HolderCountHistory []HolderCount `json:"holderCountHistory"`
	LatestHoldersCount int64         `json:"latestHoldersCount"`
	NextPageToken      string        `json:"nextPageToken,omitempty"`
	SyncStatus         *SyncStatus   `json:"syncStatus,omitempty"`
}

// TokenPriceReply 对应 ankr_getTokenPrice。
type TokenPriceReply struct {
	Blockchain      string      `json:"blockchain"`
	ContractAddress string      `json:"contractAddress,omitempty"`
	UsdPrice        string      `json:"usdPrice"`
	SyncStatus      *SyncStatus `json:"syncStatus,omitempty"`
}

// TokenTransfer 是一次同质化代币转账。
type TokenTransfer struct {
	FromAddress     string `json:"fromAddress"`
	ToAddress       string `json:"toAddress"`
	ContractAddress string `json:"contractAddress"`
	Value           string `json:"value"`
	ValueRawInteger string `json:"valueRawInteger"`
	Blockchain      string `json:"blockchain"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimals   int    `json:"tokenDecimals"`
	Thumbnail       string `json:"thumbnail,omitempty"`
	TransactionHash string `json:"transactionHash"`
	BlockHeight     int64  `json:"blockHeight"`
	Timestamp       int64  `json:"timestamp"`
}

// TokenTransfersReply 对应 ankr_getTokenTransfers。
type TokenTransfersReply struct {
	Transfers     []TokenTransfer `json:"transfers"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
	SyncStatus    *SyncStatus     `json:"syncStatus,omitempty"`
}

// EventInput 是解码后的事件参数。
type EventInput struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Indexed      bool   `json:"indexed"`
	ValueDecoded Text   `json:"valueDecoded"`
}

// Event 是解码后的日志事件。
type Event struct {
	Name      string       `json:"name"`
	Inputs    []EventInput `json:"inputs,omitempty"`
	Anonymous bool         `json:"anonymous"`
	Signature string       `json:"signature,omitempty"`
	Verified  bool         `json:"verified"`
}

// Log 是交易日志，Event 仅在请求解码时出现。
type Log struct {
	Address          string   `json:"address"`
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
	BlockNumber      Text     `json:"blockNumber"`
	TransactionHash  string   `json:"transactionHash"`
	TransactionIndex Text     `json:"transactionIndex"`
	BlockHash        string   `json:"blockHash"`
	LogIndex         Text     `json:"logIndex"`
	Removed          bool     `json:"removed"`
	Event            *Event   `json:"event,omitempty"`
}

// Transaction 是链上交易，数值字段多为十六进制字符串。
type Transaction struct {
	Blockchain       string `json:"blockchain,omitempty"`
	BlockHash        string `json:"blockHash"`
	BlockNumber      Text   `json:"blockNumber"`
	From             string `json:"from"`
	To               string `json:"to,omitempty"`
	ContractAddress  string `json:"contractAddress,omitempty"`
	Gas              Text   `json:"gas,omitempty"`
	GasPrice         Text   `json:"gasPrice,omitempty"`
	GasUsed          Text   `json:"gasUsed,omitempty"`
	CumulativeGas    Text   `json:"cumulativeGasUsed,omitempty"`
	Hash             string `json:"hash"`
	Input            string `json:"input,omitempty"`
	Nonce            Text   `json:"nonce"`
	TransactionIndex Text   `json:"transactionIndex"`
	Type             Text   `json:"type"`
	Value            Text   `json:"value"`
	Status           Text   `json:"status,omitempty"`
	Timestamp        Text   `json:"timestamp"`
	Logs             []Log  `json:"logs,omitempty"`
}

// TransactionsReply 对应 ankr_getTransactionsByAddress 与 ankr_getTransactionsByHash。
type TransactionsReply struct {
	Transactions  []Transaction `json:"transactions"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
	SyncStatus    *SyncStatus   `json:"syncStatus,omitempty"`
}
