package report

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"workreport/api/internal/store"
)

// KeyResultProgress returns current/target as a rounded percentage. Values are
// free-form strings; only a leading number is read ("90%", "12 users"). It
// reports false when either side has no number or the target is zero.
func KeyResultProgress(current, target string) (int, bool) {
	cur, ok := leadingNumber(current)
	if !ok {
		return 0, false
	}
	tgt, ok := leadingNumber(target)
	if !ok || tgt == 0 {
		return 0, false
	}
	return int(math.Round(cur / tgt * 100)), true
}

func leadingNumber(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	end := 0
	for i, r := range value {
		if unicode.IsDigit(r) || r == '.' || ((r == '-' || r == '+') && i == 0) {
			end = i + 1
			continue
		}
		break
	}
	if end == 0 {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(value[:end], 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// WithProgress fills ProgressPercent on every key result of the tree.
func WithProgress(tree store.OkrTree) store.OkrTree {
	for i := range tree.Objectives {
		for j := range tree.Objectives[i].KeyResults {
			kr := &tree.Objectives[i].KeyResults[j]
			if pct, ok := KeyResultProgress(kr.CurrentValue, kr.TargetValue); ok {
				kr.ProgressPercent = &pct
			}
		}
	}
	return tree
}
