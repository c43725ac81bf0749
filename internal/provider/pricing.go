package provider

import "strings"

// modelRate is USD per million tokens.
type modelRate struct {
	input  float64
	output float64
}

// rates holds published per-model pricing. Longest matching prefix wins so
// versioned model names ("gemini-2.5-flash-001") resolve correctly.
var rates = map[string]modelRate{
	"gemini-2.5-pro":        {input: 1.25, output: 10.00},
	"gemini-2.5-flash":      {input: 0.30, output: 2.50},
	"gemini-2.5-flash-lite": {input: 0.10, output: 0.40},
}

// Cost computes the USD cost of a call. Unknown models cost zero rather
// than guessing; budget enforcement treats missing pricing as free.
func Cost(model string, usage Usage) float64 {
	var best string
	for prefix := range rates {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return 0
	}
	rate := rates[best]
	return float64(usage.PromptTokens)/1e6*rate.input +
		float64(usage.CompletionTokens)/1e6*rate.output
}
