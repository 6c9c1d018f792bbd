// Package epistemic implements the post-generation cleanup pass (spec
// §4.1 step 15): robust think-tag stripping across model variants, a
// two-stage empty-result recovery, short stray CJK run removal, and
// double-space collapsing. Grounded on the teacher's
// internal/resolver/resolver.go regex-driven text transform idiom.
package epistemic

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// thinkTagVariants covers the model-family variants that wrap reasoning
// in a "thinking" block before the final answer.
var thinkTagVariants = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<reasoning>.*?</reasoning>`),
	regexp.MustCompile(`(?is)\[think\].*?\[/think\]`),
}

// StripThinkTags removes every recognized reasoning-wrapper variant from
// text, returning the stripped result and the concatenated content of any
// removed blocks (used by the two-stage recovery path).
func StripThinkTags(text string) (stripped string, removedContent string) {
	stripped = text
	var removed []string
	for _, re := range thinkTagVariants {
		for _, m := range re.FindAllString(stripped, -1) {
			removed = append(removed, stripTagWrapper(m))
		}
		stripped = re.ReplaceAllString(stripped, "")
	}
	return strings.TrimSpace(stripped), strings.TrimSpace(strings.Join(removed, "\n"))
}

func stripTagWrapper(block string) string {
	inner := regexp.MustCompile(`(?is)^<[^>]+>|</[^>]+>$|^\[think\]|\[/think\]$`).ReplaceAllString(block, "")
	return strings.TrimSpace(inner)
}

// Completer is the narrow model-pool dependency the recovery path needs.
type Completer func(ctx context.Context, prompt string, temperature float64) (string, error)

// Clean runs the full epistemic post-processing pipeline: strip think
// tags, and if the result is empty, run the two-stage recovery (retry at
// lower temperature with an explicit no-think-tags directive, then fall
// back to presenting the original reasoning content as an analysis
// summary).
func Clean(ctx context.Context, raw, originalPrompt string, complete Completer) (string, error) {
	stripped, removed := StripThinkTags(raw)
	if stripped != "" {
		return finalize(stripped), nil
	}

	if complete != nil {
		retryPrompt := originalPrompt + "\n\nRespond directly without any <think> or reasoning tags."
		retryResult, err := complete(ctx, retryPrompt, 0.2)
		if err == nil {
			retryStripped, _ := StripThinkTags(retryResult)
			if retryStripped != "" {
				return finalize(retryStripped), nil
			}
		}
	}

	if removed != "" {
		return finalize(fmt.Sprintf("Based on my analysis: %s", removed)), nil
	}
	return "", nil
}

// cjkRun matches a contiguous run of CJK Unified Ideographs, Hiragana,
// Katakana, or Hangul characters.
var cjkRun = regexp.MustCompile(`[\p{Han}\p{Hiragana}\p{Katakana}\p{Hangul}]+`)

// maxStrayCJKLength is the spec's threshold (≤10 chars is "stray",
// longer blocks are presumed intentional and preserved).
const maxStrayCJKLength = 10

// removeStrayCJK strips only short CJK runs, leaving longer intentional
// blocks intact.
func removeStrayCJK(text string) string {
	return cjkRun.ReplaceAllStringFunc(text, func(run string) string {
		if len([]rune(run)) <= maxStrayCJKLength {
			return ""
		}
		return run
	})
}

var doubleSpace = regexp.MustCompile(` {2,}`)

func collapseDoubleSpaces(text string) string {
	return doubleSpace.ReplaceAllString(text, " ")
}

func finalize(text string) string {
	text = removeStrayCJK(text)
	text = collapseDoubleSpaces(text)
	return strings.TrimSpace(text)
}

// isCJK reports whether r is in one of the CJK-family Unicode ranges. It
// is unexported and currently has no caller in this package.
func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
