package agent

import (
	"os"
	"strings"

	xerrors "OpenMCP-Ankr/internal/errors"
)

// APIKeySetting 是 Ankr 凭据在运行时设置与环境变量中的名称。
const APIKeySetting = "ANKR_API_KEY"

// ResolveAPIKey 按运行时设置、环境变量、本地配置的顺序查找 API Key。
func ResolveAPIKey(rt Runtime, fallback string) (string, error) {
	if rt != nil {
		if key := strings.TrimSpace(rt.Setting(APIKeySetting)); key != "" {
			return key, nil
		}
	}
	if key := strings.TrimSpace(os.Getenv(APIKeySetting)); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(fallback); key != "" {
		return key, nil
	}
	return "", xerrors.New(xerrors.CodeConfiguration, "ANKR_API_KEY not found in environment variables")
}
