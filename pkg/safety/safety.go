// Package safety implements the Safety Filter (spec.md §2 C7, §4.7): a
// pure, deterministic text classifier that never blocks, only annotates.
// It is grounded on the teacher's pkg/masking deterministic redaction
// engine (compiled keyword/regex patterns grouped by category), repurposed
// here to score rather than redact.
package safety

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Category is a risk classification tag.
type Category string

const (
	CategoryProhibited Category = "prohibited"
	CategorySexual     Category = "sexual"
	CategoryDating     Category = "dating"
	CategoryAmbiguous  Category = "ambiguous"
	CategoryMild       Category = "mild"
)

var categoryWeight = map[Category]float64{
	CategoryProhibited: 1.0,
	CategorySexual:     0.9,
	CategoryDating:     0.8,
	CategoryAmbiguous:  0.6,
	CategoryMild:       0.3,
}

// CompiledPattern is one regex rule tagged with the category it signals,
// mirroring the teacher's masking.CompiledPattern shape.
type CompiledPattern struct {
	Category Category
	Regex    *regexp.Regexp
}

// Annotation is the Safety Filter's output (spec.md §4.7).
type Annotation struct {
	RiskScore float64
	Flags     []string
}

// Filter is a pure function over text: same input always yields the same
// output, and it performs no network I/O (spec.md §4.7).
type Filter struct {
	patterns []CompiledPattern
}

// New compiles the default pattern set. A small, explicit multi-language
// term list plus simple leet-speak normalization cover spec.md §4.7's
// "configurable short list of multi-language terms" requirement.
func New() *Filter {
	return &Filter{patterns: DefaultPatterns()}
}

// NewWithPatterns builds a Filter from a caller-supplied pattern set,
// allowing the pattern list to be externally configured.
func NewWithPatterns(patterns []CompiledPattern) *Filter {
	return &Filter{patterns: patterns}
}

// Analyze scores a single piece of text. risk_score is the maximum
// weighted hit across categories; flags is the deduplicated, sorted list
// of matched category tags (spec.md §4.7).
func (f *Filter) Analyze(text string) Annotation {
	normalized := normalizeLeetSpeak(strings.ToLower(text))

	matched := map[Category]bool{}
	maxScore := 0.0
	for _, p := range f.patterns {
		if p.Regex.MatchString(normalized) {
			matched[p.Category] = true
			if w := categoryWeight[p.Category]; w > maxScore {
				maxScore = w
			}
		}
	}

	flags := make([]string, 0, len(matched))
	for cat := range matched {
		flags = append(flags, string(cat))
	}
	sort.Strings(flags)

	return Annotation{RiskScore: maxScore, Flags: flags}
}

// AnalyzeAll scores every bubble plus their concatenation (spec.md §4.6
// step 5 "Pass each bubble and the concatenation through the Safety
// Filter"), returning the combined worst-case annotation.
func (f *Filter) AnalyzeAll(bubbles []string) Annotation {
	combined := f.Analyze(strings.Join(bubbles, " "))
	best := combined
	for _, b := range bubbles {
		a := f.Analyze(b)
		if a.RiskScore > best.RiskScore {
			best = a
		} else {
			best.Flags = mergeFlags(best.Flags, a.Flags)
		}
	}
	return best
}

func mergeFlags(a, b []string) []string {
	set := map[string]bool{}
	for _, f := range a {
		set[f] = true
	}
	for _, f := range b {
		set[f] = true
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

var leetReplacer = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"@", "a",
	"$", "s",
)

// normalizeLeetSpeak applies the "simple leet-speak normalization" named
// in spec.md §4.7 so patterns match obfuscated variants.
func normalizeLeetSpeak(s string) string {
	return leetReplacer.Replace(s)
}

// RiskScoreForCategory exposes the fixed category weight table for callers
// that need to reason about a specific category in isolation (e.g. tests,
// the review priority formula's safety term).
func RiskScoreForCategory(c Category) float64 {
	return categoryWeight[c]
}

// Clamp01 bounds a score to [0,1], defensive against pattern-weight drift.
func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
