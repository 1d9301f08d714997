// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package thinking

// TableVersion identifies the default pattern table. Bump it whenever an
// entry changes so stored splits can be traced to the rules that made them.
const TableVersion = "2"

// Default thresholds, in runes.
const (
	DefaultMinFallbackLength  = 400
	DefaultMinReasoningLength = 100
	DefaultMaxColonLineLength = 120
)

// TagPair is an explicit reasoning delimiter. Matching is case-insensitive.
type TagPair struct {
	Open  string
	Close string
}

// PatternTable is the complete, versioned configuration of the segmenter.
//
// Apostrophes in Fillers and AnswerPhrases match both the straight (')
// and typographic (’) forms.
type PatternTable struct {
	Version string

	// Tags are tried together; the earliest opening tag in the text wins.
	Tags []TagPair

	// Fillers open a self-directed monologue ("Okay, let me ...").
	Fillers []string

	// AnswerPhrases introduce the user-facing answer after a blank line.
	AnswerPhrases []string

	// MinFallbackLength is the text length a fallback split requires.
	MinFallbackLength int
	// MinReasoningLength is the reasoning length a fallback split requires.
	MinReasoningLength int
	// MaxColonLineLength bounds a declarative "Heading:" transition line.
	MaxColonLineLength int
}

// DefaultTable returns a fresh copy of the built-in table.
func DefaultTable() PatternTable {
	return PatternTable{
		Version: TableVersion,
		Tags: []TagPair{
			{Open: "<think>", Close: "</think>"},
			{Open: "<thinking>", Close: "</thinking>"},
			{Open: "<reasoning>", Close: "</reasoning>"},
			{Open: "<reflection>", Close: "</reflection>"},
			{Open: "<|begin_of_thought|>", Close: "<|end_of_thought|>"},
			{Open: "[THINK]", Close: "[/THINK]"},
		},
		Fillers: []string{
			"okay",
			"ok so",
			"alright",
			"all right",
			"hmm",
			"let me",
			"let's",
			"i need to",
			"i should",
			"i'll",
			"i think",
			"i'm going to",
			"first",
			"well",
			"so",
			"wait",
			"the user",
			"we need to",
		},
		AnswerPhrases: []string{
			"here's",
			"here is",
			"here are",
			"the answer",
			"final answer",
			"answer:",
			"in summary",
			"to summarize",
			"therefore",
			"in short",
		},
		MinFallbackLength:  DefaultMinFallbackLength,
		MinReasoningLength: DefaultMinReasoningLength,
		MaxColonLineLength: DefaultMaxColonLineLength,
	}
}
