package tokens

import (
	"math"
	"strings"
	"unicode"
)

// Estimate approximates the token count of text for budget checks. Latin-ish
// text averages ~4 runes per token; CJK runes are closer to one token each.
func Estimate(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	var latin, wide int
	for _, r := range text {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			wide++
		} else {
			latin++
		}
	}
	return wide + int(math.Ceil(float64(latin)/4.0))
}

// EstimateAll sums Estimate over texts.
func EstimateAll(texts []string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return total
}

// SplitByEstimate cuts text into pieces of at most maxTokens estimated tokens,
// preferring paragraph then sentence boundaries.
func SplitByEstimate(text string, maxTokens int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxTokens <= 0 || Estimate(text) <= maxTokens {
		return []string{text}
	}
	var out []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if Estimate(cur.String())+Estimate(para) > maxTokens {
			flush()
		}
		if Estimate(para) > maxTokens {
			for _, sent := range strings.SplitAfter(para, ". ") {
				if Estimate(cur.String())+Estimate(sent) > maxTokens {
					flush()
				}
				cur.WriteString(sent)
			}
			continue
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	if len(out) == 0 {
		return []string{text}
	}
	return out
}
