// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package thinking splits raw model output into a reasoning prefix and the
// final answer.
//
// Rules are tried in order and the first match wins:
//
//  1. Delimiter: an explicit tag pair such as <think>...</think>.
//  2. Heuristic: the text opens with a filler ("Okay, let me") and a blank
//     line is later followed by an answer phrase, heading, list item or a
//     short declarative line ending in a colon.
//  3. Fallback: long text containing a filler followed by a blank line next
//     to a structural marker.
//  4. None: the whole text is the answer.
//
// The heuristic rules are best effort. They can split mid-thought on
// unusual input and miss reasoning that does not open with a filler.
package thinking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// Rule identifies which rule produced a Split.
type Rule int

const (
	RuleNone Rule = iota
	RuleDelimiter
	RuleHeuristic
	RuleFallback
)

// String returns the rule name.
func (r Rule) String() string {
	switch r {
	case RuleDelimiter:
		return "delimiter"
	case RuleHeuristic:
		return "heuristic"
	case RuleFallback:
		return "fallback"
	default:
		return "none"
	}
}

// Split is the result of segmenting one response. Both parts are trimmed.
type Split struct {
	Reasoning string
	Answer    string
	Rule      Rule
}

// HasReasoning reports whether a reasoning segment was found.
func (s Split) HasReasoning() bool {
	return s.Rule != RuleNone
}

// =============================================================================
// SEGMENTER
// =============================================================================

var (
	blankLineRe  = regexp.MustCompile(`\n[ \t]*\n[ \t\n]*`)
	headingRe    = regexp.MustCompile(`^#{1,6}\s`)
	numberedRe   = regexp.MustCompile(`^\d+[.)]\s`)
	bulletRe     = regexp.MustCompile(`^[-*•+]\s`)
	boldLineRe   = regexp.MustCompile(`^\*\*[^*\s].*\*\*:?\s*$`)
	horizontalRe = regexp.MustCompile(`^(?:-{3,}|\*{3,}|_{3,})\s*$`)
)

// Segmenter applies a compiled PatternTable. It is safe for concurrent use.
type Segmenter struct {
	table PatternTable

	tags        []*regexp.Regexp
	fillerStart *regexp.Regexp
	answerStart *regexp.Regexp
}

// New compiles table. Zero thresholds take their defaults.
func New(table PatternTable) *Segmenter {
	if table.MinFallbackLength <= 0 {
		table.MinFallbackLength = DefaultMinFallbackLength
	}
	if table.MinReasoningLength <= 0 {
		table.MinReasoningLength = DefaultMinReasoningLength
	}
	if table.MaxColonLineLength <= 0 {
		table.MaxColonLineLength = DefaultMaxColonLineLength
	}

	s := &Segmenter{table: table}
	for _, tag := range table.Tags {
		pattern := `(?is)` + regexp.QuoteMeta(tag.Open) + `(.*?)` + regexp.QuoteMeta(tag.Close)
		s.tags = append(s.tags, regexp.MustCompile(pattern))
	}
	fillers := alternation(table.Fillers)
	s.fillerStart = compileOrNil(`(?i)^(?:` + fillers + `)`)
	s.answerStart = compileOrNil(`(?i)^(?:` + alternation(table.AnswerPhrases) + `)`)
	return s
}

// Table returns the table the segmenter was built from.
func (s *Segmenter) Table() PatternTable {
	return s.table
}

var defaultSegmenter = New(DefaultTable())

// Segment splits raw with the default table.
func Segment(raw string) Split {
	return defaultSegmenter.Segment(raw)
}

// Segment splits raw into reasoning and answer. It never fails; with no
// match the trimmed text is returned as the answer.
func (s *Segmenter) Segment(raw string) Split {
	if split, ok := s.byDelimiter(raw); ok {
		return split
	}

	text := strings.TrimLeftFunc(strings.ReplaceAll(raw, "\r\n", "\n"), unicode.IsSpace)
	if split, ok := s.byHeuristic(text); ok {
		return split
	}
	if split, ok := s.byFallback(text); ok {
		return split
	}
	return Split{Answer: strings.TrimSpace(raw), Rule: RuleNone}
}

// =============================================================================
// RULE 1: DELIMITER
// =============================================================================

func (s *Segmenter) byDelimiter(raw string) (Split, bool) {
	var best []int
	for _, re := range s.tags {
		m := re.FindStringSubmatchIndex(raw)
		if m != nil && (best == nil || m[0] < best[0]) {
			best = m
		}
	}
	if best == nil {
		return Split{}, false
	}

	reasoning := strings.TrimSpace(raw[best[2]:best[3]])
	answer := strings.TrimSpace(raw[best[1]:])
	if answer == "" {
		answer = strings.TrimSpace(raw[:best[0]])
	}
	if reasoning == "" {
		return Split{Answer: answer, Rule: RuleNone}, true
	}
	return Split{Reasoning: reasoning, Answer: answer, Rule: RuleDelimiter}, true
}

// =============================================================================
// RULE 2: HEURISTIC
// =============================================================================

func (s *Segmenter) byHeuristic(text string) (Split, bool) {
	if s.fillerStart == nil || !s.fillerStart.MatchString(text) {
		return Split{}, false
	}
	for _, m := range blankLineRe.FindAllStringIndex(text, -1) {
		if s.isTransition(firstLine(text[m[1]:])) {
			return s.split(text, m, RuleHeuristic)
		}
	}
	return Split{}, false
}

func (s *Segmenter) isTransition(line string) bool {
	if line == "" {
		return false
	}
	if s.answerStart != nil && s.answerStart.MatchString(line) {
		return true
	}
	if headingRe.MatchString(line) || numberedRe.MatchString(line) || bulletRe.MatchString(line) {
		return true
	}
	return s.isColonLine(line)
}

// isColonLine matches a short declarative line such as "Supported formats:".
func (s *Segmenter) isColonLine(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasSuffix(line, ":") || utf8.RuneCountInString(line) > s.table.MaxColonLineLength {
		return false
	}
	first, _ := utf8.DecodeRuneInString(line)
	if !unicode.IsUpper(first) && !unicode.IsDigit(first) {
		return false
	}
	return s.fillerStart == nil || !s.fillerStart.MatchString(line)
}

// =============================================================================
// RULE 3: FALLBACK
// =============================================================================

func (s *Segmenter) byFallback(text string) (Split, bool) {
	if s.fillerStart == nil || utf8.RuneCountInString(strings.TrimSpace(text)) <= s.table.MinFallbackLength {
		return Split{}, false
	}
	// Same anchored filler as rule 2; a filler word mid-sentence is not
	// evidence of a monologue.
	loc := s.fillerStart.FindStringIndex(text)
	if loc == nil {
		return Split{}, false
	}

	for _, m := range blankLineRe.FindAllStringIndex(text, -1) {
		if m[0] < loc[1] || !isStructural(firstLine(text[m[1]:])) {
			continue
		}
		if utf8.RuneCountInString(strings.TrimSpace(text[:m[0]])) <= s.table.MinReasoningLength {
			return Split{}, false
		}
		return s.split(text, m, RuleFallback)
	}
	return Split{}, false
}

func isStructural(line string) bool {
	return headingRe.MatchString(line) ||
		numberedRe.MatchString(line) ||
		bulletRe.MatchString(line) ||
		boldLineRe.MatchString(line) ||
		horizontalRe.MatchString(line)
}

// =============================================================================
// HELPERS
// =============================================================================

// split cuts text at the blank line m. A leading horizontal rule is dropped
// from the answer.
func (s *Segmenter) split(text string, m []int, rule Rule) (Split, bool) {
	reasoning := strings.TrimSpace(text[:m[0]])
	answer := text[m[1]:]
	if horizontalRe.MatchString(firstLine(answer)) {
		if i := strings.IndexByte(answer, '\n'); i >= 0 {
			answer = answer[i+1:]
		} else {
			answer = ""
		}
	}
	answer = strings.TrimSpace(answer)
	if reasoning == "" || answer == "" {
		return Split{}, false
	}
	return Split{Reasoning: reasoning, Answer: answer, Rule: rule}, true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

// alternation builds a regexp alternation from literal phrases. Phrases
// ending in a word character get a trailing word boundary.
func alternation(phrases []string) string {
	parts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		quoted := regexp.QuoteMeta(p)
		quoted = strings.ReplaceAll(quoted, "'", "['’]")
		quoted = strings.ReplaceAll(quoted, " ", `\s+`)
		last, _ := utf8.DecodeLastRuneInString(p)
		if unicode.IsLetter(last) || unicode.IsDigit(last) {
			quoted += `\b`
		}
		parts = append(parts, quoted)
	}
	return strings.Join(parts, "|")
}

func compileOrNil(pattern string) *regexp.Regexp {
	if strings.HasSuffix(pattern, "(?:)") {
		return nil
	}
	return regexp.MustCompile(pattern)
}
