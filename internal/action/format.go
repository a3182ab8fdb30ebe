package action

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/params"

	"OpenMCP-Ankr/internal/web3/ankr"
)

const (
	dateTimeLayout = "1/2/2006, 3:04:05 PM"
	dateLayout     = "1/2/2006"
	zeroAddress    = "0x0000000000000000000000000000000000000000"
	invalidDate    = "Invalid Date"
)

// Truncate 把长地址或哈希缩写为前 6 位加后 4 位，短于 10 个字符的原样返回。
func Truncate(s string) string {
	if len(s) < 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// FormatTime 以 UTC 渲染日期时间。
func FormatTime(t time.Time) string {
	return t.UTC().Format(dateTimeLayout)
}

// FormatDate 以 UTC 渲染日期。
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func formatUnix(seconds int64) string {
	return FormatTime(time.Unix(seconds, 0))
}

// FormatTimestamp 渲染字符串形式的秒级时间戳，无法解析时返回 Invalid Date。
func FormatTimestamp(value string) string {
	if strings.TrimSpace(value) == "" {
		return formatUnix(0)
	}
	ts, ok := ParseTimestamp(value)
	if !ok {
		return invalidDate
	}
	return formatUnix(ts)
}

// FormatCount 给整数加千分位。
func FormatCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, s = "-", s[1:]
	}
	return sign + groupThousands(s)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatLocale 以千分位和最多三位小数渲染数字字符串，无法解析时返回 NaN。
func FormatLocale(value string) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 0) {
		if f < 0 {
			return "-∞"
		}
		return "∞"
	}
	text := strconv.FormatFloat(f, 'f', 3, 64)
	sign := ""
	if strings.HasPrefix(text, "-") {
		sign, text = "-", text[1:]
	}
	intPart, fracPart, _ := strings.Cut(text, ".")
	fracPart = strings.TrimRight(fracPart, "0")
	out := groupThousands(intPart)
	if fracPart != "" {
		out += "." + fracPart
	}
	if out == "0" {
		sign = ""
	}
	return sign + out
}

// FormatFixed 解析数字字符串并保留固定位数小数，空串按 0 处理，无法解析时返回 NaN。
func FormatFixed(value string, decimals int) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return strconv.FormatFloat(0, 'f', decimals, 64)
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 0) {
		if f < 0 {
			return "-Infinity"
		}
		return "Infinity"
	}
	return strconv.FormatFloat(f, 'f', decimals, 64)
}

// FormatNumber 按最短形式渲染数字字符串，和脚本语言里的 Number 转字符串一致。
func FormatNumber(value string) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return "NaN"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatEther 把十进制或 0x 十六进制的 wei 数量换算为 4 位小数的 ether。
func FormatEther(wei string) string {
	n, ok := gethmath.ParseBig256(strings.TrimSpace(wei))
	if !ok {
		return "0.0000"
	}
	value := new(big.Float).Quo(new(big.Float).SetInt(n), new(big.Float).SetInt64(params.Ether))
	return value.Text('f', 4)
}

// ParseTimestamp 解析十进制或十六进制的秒级时间戳。
func ParseTimestamp(value string) (int64, bool) {
	n, ok := gethmath.ParseUint64(strings.TrimSpace(value))
	if !ok || n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

// SameAddress 比较两个地址，EVM 地址忽略大小写与校验和格式。
func SameAddress(a, b string) bool {
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func isNativeAddress(address string) bool {
	return address == "" || strings.EqualFold(address, zeroAddress)
}

func syncLine(s *ankr.SyncStatus) string {
	return fmt.Sprintf("Sync Status: %s (lag: %s)", s.Status, s.Lag)
}

func syncBrief(s *ankr.SyncStatus) string {
	return fmt.Sprintf("Sync Status: %s (%s)", s.Status, s.Lag)
}

func lastUpdate(s *ankr.SyncStatus) string {
	return "Last Update: " + formatUnix(s.Timestamp)
}
