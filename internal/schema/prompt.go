package schema

import (
	"regexp"
	"strings"

	"OpenMCP-Ankr/internal/web3/chains"
)

// RecentMessagesKey 是模板中最近对话的占位符名称。
const RecentMessagesKey = "recentMessages"

const (
	promptDirective = "Respond with a JSON markdown block containing only the extracted values\n" +
		"- Skip any values that cannot be determined.\n" +
		"- If no specific blockchain is mentioned, assume the user wants to check all supported blockchains.\n" +
		"- When a blockchain is mentioned by its full name (e.g., \"Ethereum\"), use the corresponding tag (e.g., \"eth\")."

	promptTail = "## Recent Messages\n\n" +
		"<recentMessages>\n{{" + RecentMessagesKey + "}}\n</recentMessages>\n\n" +
		"Given the recent messages, extract the following information according to the schema.\n\n" +
		"Respond with a JSON markdown block containing only the extracted values."
)

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Template 渲染参数抽取提示词，结果只依赖 Schema 与链注册表。
func Template(s Schema) string {
	var description string
	if s.Description != "" {
		description = "## Schema Description\n\n" + s.Description + "\n"
	}

	var properties string
	if len(s.Fields) > 0 {
		lines := make([]string, 0, len(s.Fields))
		for _, f := range s.Fields {
			lines = append(lines, "- "+f.Name+": "+f.Description)
		}
		properties = "## Properties\n\n" + strings.Join(lines, "\n") + "\n"
	}

	var chainSection string
	if s.HasChain() {
		chainSection = "\n## Supported Blockchains\n\n### Mainnets\n" + chainLines(chains.Mainnets()) +
			"\n\n### Testnets\n" + chainLines(chains.Testnets())
	}

	var b strings.Builder
	b.WriteString(promptDirective)
	b.WriteString("\n\n")
	b.WriteString(description)
	b.WriteString("\n")
	b.WriteString(properties)
	b.WriteString("\n")
	b.WriteString(chainSection)
	b.WriteString("\n\n")
	b.WriteString(promptTail)
	return b.String()
}

func chainLines(list []chains.Info) string {
	lines := make([]string, 0, len(list))
	for _, info := range list {
		lines = append(lines, "- "+info.Label())
	}
	return strings.Join(lines, "\n")
}

// Compose 用状态值替换模板中的 {{key}} 占位符，缺失的键替换为空串。
func Compose(template string, state map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		key := match[2 : len(match)-2]
		return state[key]
	})
}
