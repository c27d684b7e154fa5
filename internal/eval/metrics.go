// Package eval scores finished output files: answer recall over generated
// backgrounds for stage 1, and exact match, fact-checking accuracy, or
// F1/Rouge-L over final answers for stage 2.
package eval

import "strings"

// recallHit reports whether any gold answer appears verbatim (after
// normalization) in the concatenated background text.
func recallHit(backgrounds []string, golds []string) bool {
	haystack := normalizeAnswer(strings.Join(backgrounds, " "))
	for _, gold := range golds {
		g := normalizeAnswer(gold)
		if g != "" && strings.Contains(haystack, g) {
			return true
		}
	}
	return false
}

// exactMatch reports whether the prediction equals any gold answer after
// normalization.
func exactMatch(prediction string, golds []string) bool {
	pred := normalizeAnswer(prediction)
	for _, gold := range golds {
		if pred == normalizeAnswer(gold) {
			return true
		}
	}
	return false
}

// factLabel maps free text onto a yes/no verdict. The benchmarks label
// claims SUPPORTS/REFUTES or true/false; model output is free-form.
func factLabel(s string) string {
	n := normalizeAnswer(s)
	for _, w := range strings.Fields(n) {
		switch w {
		case "supports", "true", "yes", "correct":
			return "yes"
		case "refutes", "false", "no", "incorrect":
			return "no"
		}
	}
	return ""
}

// factCorrect reports whether the predicted verdict matches the gold one.
func factCorrect(prediction string, golds []string) bool {
	pred := factLabel(prediction)
	if pred == "" || len(golds) == 0 {
		return false
	}
	return pred == factLabel(golds[0])
}

// unigramF1 returns the max token-level F1 between the prediction and any
// gold answer.
func unigramF1(prediction string, golds []string) float64 {
	pred := tokens(prediction)
	best := 0.0
	for _, gold := range golds {
		if f1 := pairF1(pred, tokens(gold)); f1 > best {
			best = f1
		}
	}
	return best
}

func pairF1(pred, gold []string) float64 {
	if len(pred) == 0 || len(gold) == 0 {
		return 0
	}
	counts := make(map[string]int, len(gold))
	for _, w := range gold {
		counts[w]++
	}
	overlap := 0
	for _, w := range pred {
		if counts[w] > 0 {
			counts[w]--
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}
	precision := float64(overlap) / float64(len(pred))
	recall := float64(overlap) / float64(len(gold))
	return 2 * precision * recall / (precision + recall)
}

// rougeL returns the max LCS-based F1 between the prediction and any gold.
func rougeL(prediction string, golds []string) float64 {
	pred := tokens(prediction)
	best := 0.0
	for _, gold := range golds {
		if r := pairRougeL(pred, tokens(gold)); r > best {
			best = r
		}
	}
	return best
}

func pairRougeL(pred, gold []string) float64 {
	if len(pred) == 0 || len(gold) == 0 {
		return 0
	}
	lcs := lcsLen(pred, gold)
	if lcs == 0 {
		return 0
	}
	precision := float64(lcs) / float64(len(pred))
	recall := float64(lcs) / float64(len(gold))
	return 2 * precision * recall / (precision + recall)
}

func lcsLen(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// wordCount counts whitespace-separated words, used for average answer
// and background lengths.
func wordCount(s string) int {
	return len(strings.Fields(s))
}
