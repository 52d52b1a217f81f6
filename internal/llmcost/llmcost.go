// Package llmcost implements spec.md §4.7: the context-window trimming
// and per-model cost accounting applied around every LLM call. Grounded
// on the teacher's pkg/models.LLMUsage (PromptTokens/CompletionTokens/
// TotalTokens carried on LLMResponse) and pkg/models.LLMRequest's message
// shape — generalized into prefix-table lookups the teacher's executor
// never had (it calls providers directly with no window/cost ledger).
package llmcost

import (
	"strings"
)

// Message is the minimal chat-turn shape the trimmer needs: enough to
// identify the system message and whole human/assistant turns without
// depending on any particular provider SDK's request type.
type Message struct {
	Role    string
	Content string
}

const safetyMarginTokens = 512

// windowEntry maps a model-name prefix to its context window size.
type windowEntry struct {
	prefix string
	window int
}

// ContextWindow picks the longest matching prefix, so a specific entry wins
// over a family-wide default regardless of its position in this list.
var contextWindows = []windowEntry{
	{"gpt-4.1", 1_047_576},
	{"gpt-4o", 128_000},
	{"gpt-4-turbo", 128_000},
	{"gpt-4", 8_192},
	{"gpt-3.5-turbo", 16_385},
	{"o3-mini", 200_000},
	{"o1", 200_000},
	{"claude-3-5", 200_000},
	{"claude-3-7", 200_000},
	{"claude-opus-4", 200_000},
	{"claude-sonnet-4", 200_000},
	{"claude-3", 200_000},
	{"claude", 100_000},
}

const defaultWindow = 32_000

// ContextWindow returns the token window for model, matching the longest
// registered prefix, or defaultWindow if none match.
func ContextWindow(model string) int {
	best := -1
	window := defaultWindow
	for _, e := range contextWindows {
		if strings.HasPrefix(model, e.prefix) && len(e.prefix) > best {
			best = len(e.prefix)
			window = e.window
		}
	}
	return window
}

// priceEntry maps a model-name prefix to its per-1M-token pricing.
type priceEntry struct {
	prefix         string
	inputUSDPer1M  float64
	outputUSDPer1M float64
}

var prices = []priceEntry{
	{"gpt-4.1", 2.00, 8.00},
	{"gpt-4o", 2.50, 10.00},
	{"gpt-4-turbo", 10.00, 30.00},
	{"gpt-4", 30.00, 60.00},
	{"gpt-3.5-turbo", 0.50, 1.50},
	{"o3-mini", 1.10, 4.40},
	{"o1", 15.00, 60.00},
	{"claude-opus-4", 15.00, 75.00},
	{"claude-sonnet-4", 3.00, 15.00},
	{"claude-3-5", 3.00, 15.00},
	{"claude-3-7", 3.00, 15.00},
	{"claude-3", 3.00, 15.00},
	{"claude", 3.00, 15.00},
}

// Cost computes (input_cost, output_cost) USD for the given token counts
// against model's pricing entry. Unknown models price at zero rather than
// guessing — an accounting gap is safer than an accounting lie.
func Cost(model string, inputTokens, outputTokens int) (inputUSD, outputUSD float64) {
	best := -1
	var entry priceEntry
	for _, e := range prices {
		if strings.HasPrefix(model, e.prefix) && len(e.prefix) > best {
			best = len(e.prefix)
			entry = e
		}
	}
	if best < 0 {
		return 0, 0
	}
	inputUSD = float64(inputTokens) / 1_000_000 * entry.inputUSDPer1M
	outputUSD = float64(outputTokens) / 1_000_000 * entry.outputUSDPer1M
	return inputUSD, outputUSD
}

// ReserveCompletionTokens computes the completion-token budget spec.md
// §4.7 specifies: requestedMax if set, else min(16k, window/4).
func ReserveCompletionTokens(model string, requestedMax int) int {
	if requestedMax > 0 {
		return requestedMax
	}
	window := ContextWindow(model)
	fallback := window / 4
	if fallback > 16_000 {
		fallback = 16_000
	}
	return fallback
}

// TrimMessages applies the "keep most recent whole messages, always keep
// the system message, start on a human turn" strategy, trimming messages
// until the running total (by rune count, a stand-in for a token
// estimate) fits within the model's window minus the reserved completion
// budget and a fixed safety margin.
func TrimMessages(model string, messages []Message, reservedCompletion int) []Message {
	budget := ContextWindow(model) - reservedCompletion - safetyMarginTokens
	if budget <= 0 || len(messages) == 0 {
		return messages
	}

	var system *Message
	rest := messages
	if messages[0].Role == "system" {
		system = &messages[0]
		rest = messages[1:]
	}

	systemTokens := 0
	if system != nil {
		systemTokens = estimateTokens(system.Content)
	}

	kept := make([]Message, 0, len(rest))
	used := systemTokens
	for i := len(rest) - 1; i >= 0; i-- {
		t := estimateTokens(rest[i].Content)
		if used+t > budget && len(kept) > 0 {
			break
		}
		kept = append([]Message{rest[i]}, kept...)
		used += t
	}

	for len(kept) > 0 && kept[0].Role != "user" && kept[0].Role != "human" {
		kept = kept[1:]
	}

	if system != nil {
		out := make([]Message, 0, len(kept)+1)
		out = append(out, *system)
		out = append(out, kept...)
		return out
	}
	return kept
}

// estimateTokens approximates token count as runes/4, the common rough
// ratio for English text, avoiding a dependency on any specific
// tokenizer for a budget check that only needs to be in the right
// ballpark.
func estimateTokens(s string) int {
	n := len([]rune(s)) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}
