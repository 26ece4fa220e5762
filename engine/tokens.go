package engine

import "unicode"

var cjkTables = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hangul,
	unicode.Hiragana,
	unicode.Katakana,
}

// EstimateTokens approximates the token cost of text without a real
// tokenizer. CJK scripts tokenize much denser than Latin text, so those
// code points count ~1/1.5 token each and everything else ~1/4.
func EstimateTokens(text string) int {
	var cjk, other int
	for _, r := range text {
		if unicode.In(r, cjkTables...) {
			cjk++
		} else {
			other++
		}
	}
	return int(float64(cjk)/1.5 + float64(other)/4.0)
}
