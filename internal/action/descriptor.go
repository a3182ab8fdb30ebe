package action

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"OpenMCP-Ankr/internal/schema"
	"OpenMCP-Ankr/internal/web3/ankr"
)

// API 是动作调用的 Ankr 接口集合，*ankr.Client 实现了它。
type API interface {
	GetAccountBalance(ctx context.Context, req ankr.AccountBalanceRequest) (*ankr.AccountBalanceReply, error)
	GetBlockchainStats(ctx context.Context, req ankr.BlockchainStatsRequest) (*ankr.BlockchainStatsReply, error)
	GetCurrencies(ctx context.Context, req ankr.CurrenciesRequest) (*ankr.CurrenciesReply, error)
	GetInteractions(ctx context.Context, req ankr.InteractionsRequest) (*ankr.InteractionsReply, error)
	GetNFTHolders(ctx context.Context, req ankr.NFTHoldersRequest) (*ankr.NFTHoldersReply, error)
	GetNFTMetadata(ctx context.Context, req ankr.NFTMetadataRequest) (*ankr.NFTMetadataReply, error)
	GetNFTTransfers(ctx context.Context, req ankr.TransfersRequest) (*ankr.NFTTransfersReply, error)
	GetNFTsByOwner(ctx context.Context, req ankr.NFTsByOwnerRequest) (*ankr.NFTsByOwnerReply, error)
	GetTokenHolders(ctx context.Context, req ankr.TokenHoldersRequest) (*ankr.TokenHoldersReply, error)
	GetTokenHoldersCount(ctx context.Context, req ankr.TokenHoldersRequest) (*ankr.TokenHoldersCountReply, error)
	GetTokenPrice(ctx context.Context, req ankr.TokenPriceRequest) (*ankr.TokenPriceReply, error)
	GetTokenTransfers(ctx context.Context, req ankr.TransfersRequest) (*ankr.TokenTransfersReply, error)
	GetTransactionsByAddress(ctx context.Context, req ankr.TransactionsByAddressRequest) (*ankr.TransactionsReply, error)
	GetTransactionsByHash(ctx context.Context, req ankr.TransactionsByHashRequest) (*ankr.TransactionsReply, error)
}

var _ API = (*ankr.Client)(nil)

// Descriptor 描述一个动作：清单信息、请求结构、调用方式与回复渲染。
type Descriptor struct {
	Name        string
	Method      string
	Similes     []string
	Description string
	Examples    []string
	Schema      schema.Schema

	check  func(schema.Values) error
	call   func(ctx context.Context, api API, v schema.Values) (any, error)
	format func(v schema.Values, reply any) (string, error)
}

// ValidateRequest 先做结构校验，再做跨字段校验。
func (d Descriptor) ValidateRequest(raw map[string]any) (schema.Values, error) {
	values, err := d.Schema.Validate(raw)
	if err != nil {
		return nil, err
	}
	if d.check != nil {
		if err := d.check(values); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// Call 发起一次 Ankr 请求。
func (d Descriptor) Call(ctx context.Context, api API, v schema.Values) (any, error) {
	return d.call(ctx, api, v)
}

// Format 渲染回复文本，reply 必须是 Call 的返回值。
func (d Descriptor) Format(v schema.Values, reply any) (string, error) {
	return d.format(v, reply)
}

// Matches 判断名称是否为动作名或其别名，忽略大小写。
func (d Descriptor) Matches(name string) bool {
	name = strings.TrimSpace(name)
	if strings.EqualFold(d.Name, name) {
		return true
	}
	for _, simile := range d.Similes {
		if strings.EqualFold(simile, name) {
			return true
		}
	}
	return false
}

// definition 让每个动作以具体回复类型编写调用与渲染逻辑。
type definition[R any] struct {
	name        string
	method      string
	similes     []string
	description string
	examples    []string
	fields      []schema.Field
	check       func(schema.Values) error
	call        func(ctx context.Context, api API, v schema.Values) (*R, error)
	format      func(v schema.Values, reply *R) string
}

func define[R any](d definition[R]) Descriptor {
	return Descriptor{
		Name:        d.name,
		Method:      d.method,
		Similes:     d.similes,
		Description: d.description,
		Examples:    d.examples,
		Schema:      schema.Schema{Fields: d.fields},
		check:       d.check,
		call: func(ctx context.Context, api API, v schema.Values) (any, error) {
			return d.call(ctx, api, v)
		},
		format: func(v schema.Values, reply any) (string, error) {
			typed, ok := reply.(*R)
			if !ok || typed == nil {
				return "", fmt.Errorf("%s 的回复类型不匹配: %T", d.method, reply)
			}
			return d.format(v, typed), nil
		},
	}
}

var registry = []Descriptor{
	accountBalance,
	blockchainStats,
	currencies,
	interactions,
	nftHolders,
	nftMetadata,
	nftTransfers,
	nftsByOwner,
	tokenHolders,
	tokenHoldersCount,
	tokenPrice,
	tokenTransfers,
	transactionsByAddress,
	transactionsByHash,
}

// All 返回全部动作，按名称排序。
func All() []Descriptor {
	out := make([]Descriptor, len(registry))
	copy(out, registry)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup 按动作名或别名查找。
func Lookup(name string) (Descriptor, bool) {
	for _, d := range registry {
		if d.Matches(name) {
			return d, true
		}
	}
	return Descriptor{}, false
}

func chainField(description string) schema.Field {
	return schema.Field{Name: "blockchain", Kind: schema.KindChain, Required: true, Description: description}
}

func hexField(name, description string) schema.Field {
	return schema.Field{Name: name, Kind: schema.KindString, Required: true, Prefix: "0x", Description: description}
}

func optionalHexField(name, description, message string) schema.Field {
	return schema.Field{Name: name, Kind: schema.KindString, Prefix: "0x", PrefixOrEmpty: true, Message: message, Description: description}
}

func timestampField(name, description string) schema.Field {
	return schema.Field{Name: name, Kind: schema.KindNumber, Description: description}
}

func flagField(name, description string, def bool) schema.Field {
	return schema.Field{Name: name, Kind: schema.KindBoolean, Default: def, Description: description}
}

func boolPtr(b bool) *bool {
	return &b
}
