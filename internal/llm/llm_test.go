package llm

import (
	"encoding/json"
	"testing"
)

func TestParseObject(t *testing.T) {
	cases := map[string]string{
		"fenced":  "Here you go:\n```json\n{\"blockchain\":\"eth\",\"tokenId\":12345678901234567890}\n```",
		"bare":    `{"blockchain":"eth","tokenId":12345678901234567890}`,
		"chatter": `Sure! {"blockchain":"eth","tokenId":12345678901234567890} Hope that helps.`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := ParseObject(input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out["blockchain"] != "eth" {
				t.Fatalf("unexpected blockchain: %v", out["blockchain"])
			}
			if out["tokenId"] != json.Number("12345678901234567890") {
				t.Fatalf("large numbers must keep precision, got %v", out["tokenId"])
			}
		})
	}
}

func TestParseObjectErrors(t *testing.T) {
	for _, input := range []string{"", "no json here", "```json\n[1,2]\n```"} {
		if _, err := ParseObject(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}
