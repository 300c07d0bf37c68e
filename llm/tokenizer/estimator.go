package tokenizer

import "unicode"

// cjk covers ideographs plus CJK and full-width punctuation. These runes
// average about 1.5 per token, everything else about 4.
var cjk = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x3000, Hi: 0x303F, Stride: 1},
		{Lo: 0x3400, Hi: 0x4DBF, Stride: 1},
		{Lo: 0x4E00, Hi: 0x9FFF, Stride: 1},
		{Lo: 0xF900, Hi: 0xFAFF, Stride: 1},
		{Lo: 0xFF00, Hi: 0xFFEF, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x20000, Hi: 0x2A6DF, Stride: 1},
	},
}

const (
	cjkRunesPerToken   = 1.5
	otherRunesPerToken = 4.0
	defaultMaxTokens   = 4096
)

// EstimatorTokenizer approximates token counts from rune classes. It needs
// no encoding data, so it backs memory budgets for models tiktoken does not
// know.
type EstimatorTokenizer struct {
	model     string
	maxTokens int
}

// NewEstimatorTokenizer creates an estimator; maxTokens <= 0 means 4096.
func NewEstimatorTokenizer(model string, maxTokens int) *EstimatorTokenizer {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &EstimatorTokenizer{model: model, maxTokens: maxTokens}
}

// CountTokens never fails. Non-empty text counts as at least one token.
func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	var wide, narrow int
	for _, r := range text {
		if unicode.Is(cjk, r) {
			wide++
		} else {
			narrow++
		}
	}
	return max(int(float64(wide)/cjkRunesPerToken+float64(narrow)/otherRunesPerToken), 1), nil
}

func (e *EstimatorTokenizer) MaxTokens() int { return e.maxTokens }

func (e *EstimatorTokenizer) Name() string { return "estimator" }
