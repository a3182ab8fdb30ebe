package chains

import "strings"

// Network 区分主网与测试网。
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Info 描述 Ankr 多链接口支持的一条链。
type Info struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Network Network `json:"network"`
}

// IsTestnet 判断是否为测试网。
func (i Info) IsTestnet() bool {
	return i.Network == Testnet
}

// Label 返回 "Name (tag)" 形式的展示文本。
func (i Info) Label() string {
	return i.Name + " (" + i.ID + ")"
}

// 顺序即展示顺序，提示词中的链列表依赖它。
var registry = []Info{
	{ID: "arbitrum", Name: "Arbitrum", Network: Mainnet},
	{ID: "avalanche", Name: "Avalanche", Network: Mainnet},
	{ID: "base", Name: "Base", Network: Mainnet},
	{ID: "bsc", Name: "Binance Smart Chain", Network: Mainnet},
	{ID: "eth", Name: "Ethereum", Network: Mainnet},
	{ID: "fantom", Name: "Fantom", Network: Mainnet},
	{ID: "flare", Name: "Flare", Network: Mainnet},
	{ID: "gnosis", Name: "Gnosis", Network: Mainnet},
	{ID: "linea", Name: "Linea", Network: Mainnet},
	{ID: "optimism", Name: "Optimism", Network: Mainnet},
	{ID: "polygon", Name: "Polygon", Network: Mainnet},
	{ID: "polygon_zkevm", Name: "Polygon zkEVM", Network: Mainnet},
	{ID: "rollux", Name: "Rollux", Network: Mainnet},
	{ID: "scroll", Name: "Scroll", Network: Mainnet},
	{ID: "syscoin", Name: "Syscoin", Network: Mainnet},
	{ID: "telos", Name: "Telos", Network: Mainnet},
	{ID: "xai", Name: "Xai", Network: Mainnet},
	{ID: "xlayer", Name: "XLayer", Network: Mainnet},
	{ID: "story_mainnet", Name: "Story", Network: Mainnet},

	{ID: "avalanche_fuji", Name: "Avalanche Fuji", Network: Testnet},
	{ID: "base_sepolia", Name: "Base Sepolia", Network: Testnet},
	{ID: "eth_holesky", Name: "Ethereum Holesky", Network: Testnet},
	{ID: "eth_sepolia", Name: "Ethereum Sepolia", Network: Testnet},
	{ID: "optimism_testnet", Name: "Optimism Testnet", Network: Testnet},
	{ID: "polygon_amoy", Name: "Polygon Amoy", Network: Testnet},
	{ID: "story_testnet", Name: "Story Testnet", Network: Testnet},
}

var (
	byID   = make(map[string]Info, len(registry))
	byName = make(map[string]Info, len(registry))
)

func init() {
	for _, info := range registry {
		byID[info.ID] = info
		byName[strings.ToLower(info.Name)] = info
	}
}

// All 返回全部链，主网在前。
func All() []Info {
	out := make([]Info, len(registry))
	copy(out, registry)
	return out
}

// Mainnets 返回主网列表。
func Mainnets() []Info {
	return filter(Mainnet)
}

// Testnets 返回测试网列表。
func Testnets() []Info {
	return filter(Testnet)
}

func filter(network Network) []Info {
	out := make([]Info, 0, len(registry))
	for _, info := range registry {
		if info.Network == network {
			out = append(out, info)
		}
	}
	return out
}

// Lookup 按标签精确查找。
func Lookup(id string) (Info, bool) {
	info, ok := byID[id]
	return info, ok
}

// Valid 判断标签是否受支持。
func Valid(id string) bool {
	_, ok := byID[id]
	return ok
}

// LookupName 接受标签或全名，忽略大小写和首尾空白，优先匹配标签。
func LookupName(input string) (Info, bool) {
	key := strings.ToLower(strings.TrimSpace(input))
	if key == "" {
		return Info{}, false
	}
	if info, ok := byID[key]; ok {
		return info, true
	}
	info, ok := byName[key]
	return info, ok
}

// Name 返回标签对应的展示名称，未知标签原样返回。
func Name(id string) string {
	if info, ok := byID[id]; ok {
		return info.Name
	}
	return id
}

// IsTestnet 判断标签是否指向测试网。
func IsTestnet(id string) bool {
	info, ok := byID[id]
	return ok && info.IsTestnet()
}

// IDs 按声明顺序返回全部标签。
func IDs() []string {
	out := make([]string, 0, len(registry))
	for _, info := range registry {
		out = append(out, info.ID)
	}
	return out
}
