package summarizer

import (
	"strings"

	"github.com/yungbote/raptorgraph-backend/internal/platform/apierr"
)

// Provider labels for the three supported OpenAI-compatible backends.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderTogether  = "together"
)

// ModelInfo describes a routable summarization model.
type ModelInfo struct {
	Name     string
	Provider string
	Window   int
}

// registry maps normalized logical model names to providers and context
// windows. Lookups normalize whitespace, case and separators first.
var registry = map[string]ModelInfo{
	"gpt-4o":            {Provider: ProviderOpenAI, Window: 128000},
	"gpt-4o-mini":       {Provider: ProviderOpenAI, Window: 128000},
	"gpt-4.1":           {Provider: ProviderOpenAI, Window: 1047576},
	"gpt-4.1-mini":      {Provider: ProviderOpenAI, Window: 1047576},
	"o3-mini":           {Provider: ProviderOpenAI, Window: 200000},
	"claude-3-5-haiku":  {Provider: ProviderAnthropic, Window: 200000},
	"claude-3-5-sonnet": {Provider: ProviderAnthropic, Window: 200000},
	"claude-3-7-sonnet": {Provider: ProviderAnthropic, Window: 200000},
	"llama-3.1-70b":     {Provider: ProviderTogether, Window: 131072},
	"llama-3.3-70b":     {Provider: ProviderTogether, Window: 131072},
	"mixtral-8x7b":      {Provider: ProviderTogether, Window: 32768},
	"qwen-2.5-72b":      {Provider: ProviderTogether, Window: 131072},
	"deepseek-v3":       {Provider: ProviderTogether, Window: 131072},
}

// NormalizeModelName lowercases, trims and collapses separator runs so that
// "GPT 4o Mini", "gpt_4o_mini" and "gpt-4o-mini" all resolve identically.
func NormalizeModelName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	prevSep := false
	for _, r := range name {
		switch r {
		case ' ', '\t', '_', '-':
			if !prevSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			prevSep = true
		default:
			b.WriteRune(r)
			prevSep = false
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Resolve routes a logical model name to its provider, failing before any I/O
// when the name is unknown.
func Resolve(name string) (ModelInfo, error) {
	key := NormalizeModelName(name)
	info, ok := registry[key]
	if !ok {
		return ModelInfo{}, apierr.New(apierr.KindValidation, "model_not_supported", "summarizer model is not supported").
			WithContext(map[string]any{"model": name})
	}
	info.Name = key
	return info, nil
}
