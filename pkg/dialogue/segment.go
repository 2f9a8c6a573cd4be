package dialogue

import "strings"

// ttsPunctuation is the set of characters that may close a TTS segment.
const ttsPunctuation = "，。！？,.!?:：；;、\n\t\r•"

// ExtractTTSText walks the accumulated text from right to left looking for
// the longest prefix ending in a punctuation character that is also longer
// than 10 characters. If found, it returns that prefix as the next segment
// to synthesize and the remainder to keep buffering. If no such prefix
// exists it returns an empty segment and the original text unchanged.
func ExtractTTSText(text string) (segment string, remainder string) {
	runes := []rune(text)
	for i := len(runes); i > 10; i-- {
		prefix := runes[:i]
		if isTTSPunctuation(prefix[len(prefix)-1]) {
			return string(prefix), string(runes[i:])
		}
	}
	return "", text
}

func isTTSPunctuation(r rune) bool {
	return strings.ContainsRune(ttsPunctuation, r)
}
