package transcript

import (
	"strings"

	"github.com/highbeam/agentdeck/internal/model"
)

// modelRates are USD per million tokens. Approximate and replaceable;
// matched by substring so dated model ids resolve to their family.
type modelRates struct {
	input         float64
	output        float64
	cacheRead     float64
	cacheCreation float64
}

var rateTable = []struct {
	match string
	rates modelRates
}{
	{"opus", modelRates{input: 15, output: 75, cacheRead: 1.5, cacheCreation: 18.75}},
	{"sonnet", modelRates{input: 3, output: 15, cacheRead: 0.3, cacheCreation: 3.75}},
	{"haiku", modelRates{input: 0.8, output: 4, cacheRead: 0.08, cacheCreation: 1}},
	{"gpt-5", modelRates{input: 1.25, output: 10, cacheRead: 0.125}},
	{"gpt-4o", modelRates{input: 2.5, output: 10, cacheRead: 1.25}},
	{"o3", modelRates{input: 2, output: 8, cacheRead: 0.5}},
	{"codex", modelRates{input: 1.5, output: 6, cacheRead: 0.375}},
}

// EstimateCost prices a session's token usage against the static rate
// table. Unknown models cost zero rather than failing.
func EstimateCost(modelID string, stats model.UsageStats) float64 {
	rates, ok := lookupRates(modelID)
	if !ok {
		return 0
	}
	const mtok = 1_000_000
	return float64(stats.InputTokens)/mtok*rates.input +
		float64(stats.OutputTokens)/mtok*rates.output +
		float64(stats.CacheReadTokens)/mtok*rates.cacheRead +
		float64(stats.CacheCreationTokens)/mtok*rates.cacheCreation
}

func lookupRates(modelID string) (modelRates, bool) {
	id := strings.ToLower(modelID)
	for _, entry := range rateTable {
		if strings.Contains(id, entry.match) {
			return entry.rates, true
		}
	}
	return modelRates{}, false
}
