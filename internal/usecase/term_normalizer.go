package usecase

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Package-level compiled regex patterns for performance
var (
	multiSpacePattern   = regexp.MustCompile(`\s+`)
	lonePunctuation     = regexp.MustCompile(`\s+[,\-;:]+\s+`)
	trailingPunctuation = regexp.MustCompile(`[,\-;:]+\s*$`)
	leadingPunctuation  = regexp.MustCompile(`^\s*[,\-;:]+`)
)

const defaultMaxTermLength = 100

// TermNormalizer canonicalizes user search terms so that equivalent
// spellings share one cache entry
type TermNormalizer struct {
	maxLength int // in runes
}

// NewTermNormalizer creates a term normalizer. maxLength <= 0 uses the default of 100 runes.
func NewTermNormalizer(maxLength int) *TermNormalizer {
	if maxLength <= 0 {
		maxLength = defaultMaxTermLength
	}
	return &TermNormalizer{maxLength: maxLength}
}

// Normalize trims, lowercases and collapses whitespace.
// Orphaned punctuation left at the edges or between words is dropped.
func (t *TermNormalizer) Normalize(term string) string {
	cleaned := strings.ToLower(strings.TrimSpace(term))
	if cleaned == "" {
		return ""
	}

	cleaned = lonePunctuation.ReplaceAllString(cleaned, " ")
	cleaned = trailingPunctuation.ReplaceAllString(cleaned, "")
	cleaned = leadingPunctuation.ReplaceAllString(cleaned, "")
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if utf8.RuneCountInString(cleaned) > t.maxLength {
		runes := []rune(cleaned)
		cleaned = string(runes[:t.maxLength])
		// Try to cut at word boundary
		if lastSpace := strings.LastIndex(cleaned, " "); lastSpace > len(cleaned)/2 {
			cleaned = cleaned[:lastSpace]
		}
	}

	return cleaned
}
