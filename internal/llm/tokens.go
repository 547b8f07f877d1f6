package llm

import "unicode/utf8"

const (
	messageOverheadTokens = 4
	asciiRunesPerToken    = 4
)

// EstimateTokens is a coarse size estimate: one token per four ASCII runes
// and one per non-ASCII rune (Hangul tokenizes close to a syllable per token).
func EstimateTokens(text string) int {
	ascii, other := 0, 0
	for _, r := range text {
		if r < utf8.RuneSelf {
			ascii++
		} else {
			other++
		}
	}
	return (ascii+asciiRunesPerToken-1)/asciiRunesPerToken + other
}

func EstimateMessageTokens(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverheadTokens + EstimateTokens(m.Content)
		for _, call := range m.ToolCalls {
			total += EstimateTokens(call.Name) + EstimateTokens(string(call.Arguments))
		}
	}
	return total
}
