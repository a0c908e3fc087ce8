package format

import (
	"fmt"
	"strings"

	"colosseum/internal/common"
)

// Problem label strategies. The original system accepted arbitrary scripts
// for this; we expose a closed set instead, plus a printf-style template
// escape hatch ("template:<verb>" where the verb formats the 1-based index).
const (
	LabelNumbers = "numbers" // 1, 2, 3, ...
	LabelLetters = "letters" // A, B, ..., Z, AA, AB, ...

	labelTemplatePrefix = "template:"
)

// LabelFor renders the label for the zero-based problem index.
func LabelFor(strategy string, index int) (string, error) {
	switch {
	case strategy == LabelNumbers:
		return fmt.Sprintf("%d", index+1), nil
	case strategy == LabelLetters:
		return letterLabel(index), nil
	case strings.HasPrefix(strategy, labelTemplatePrefix):
		verb := strings.TrimPrefix(strategy, labelTemplatePrefix)
		if !strings.Contains(verb, "%d") {
			return "", common.Errorf("label template must contain %%d: %w", common.ErrValidation)
		}
		return fmt.Sprintf(verb, index+1), nil
	default:
		return "", common.Errorf("unknown label strategy %q: %w", strategy, common.ErrValidation)
	}
}

// ValidateLabelStrategy probes the strategy against index 0 and requires a
// non-empty result, mirroring how label scripts were checked at save time.
func ValidateLabelStrategy(strategy string) error {
	label, err := LabelFor(strategy, 0)
	if err != nil {
		return err
	}
	if label == "" {
		return common.Errorf("label strategy produced an empty label: %w", common.ErrValidation)
	}
	return nil
}

func letterLabel(index int) string {
	label := ""
	n := index
	for {
		label = string(rune('A'+n%26)) + label
		n = n/26 - 1
		if n < 0 {
			break
		}
	}
	return label
}
