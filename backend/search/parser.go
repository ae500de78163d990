// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package search parses the query strings accepted by the listing endpoints,
// e.g. `status:complete player:"Princess Peach" frame:>=5 luigi`.
package search

import (
	"strconv"
	"strings"
	"unicode"
)

// Operator represents a comparison operator in a filter.
type Operator string

const (
	OpEqual          Operator = "="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpRange          Operator = ".." // frame:3..7, inclusive
)

// prefixOperators are checked in order; two-character operators come first.
var prefixOperators = []Operator{OpGreaterOrEqual, OpLessOrEqual, OpGreater, OpLess}

// Filter represents a structured criteria derived from the query string.
type Filter struct {
	Key      string   // e.g. "status", "player", "frame"
	Value    string   // e.g. "complete", "mario", "5"
	MaxValue string   // Used only for OpRange
	Operator Operator // e.g. "=", ">="
}

// Query represents the parsed search query.
type Query struct {
	Filters  []Filter
	FreeText []string
}

// Parse parses a search query string into a structured Query.
// Tokens are separated by spaces unless quoted. A token of the form key:value
// becomes a filter, where value may carry a comparison prefix or a lo..hi
// range. Anything else is free text.
func Parse(input string) Query {
	q := Query{
		Filters:  make([]Filter, 0),
		FreeText: make([]string, 0),
	}

	for _, token := range tokenize(input) {
		key, val, ok := strings.Cut(token, ":")
		if !ok {
			q.FreeText = append(q.FreeText, removeQuotes(token))
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		// An unquoted second colon is ambiguous, e.g. "time:12:00".
		quoted := strings.HasPrefix(val, "\"") || strings.HasPrefix(val, "'")
		if key == "" || val == "" || (strings.Contains(val, ":") && !quoted) {
			q.FreeText = append(q.FreeText, token)
			continue
		}

		if lo, hi, ok := strings.Cut(val, ".."); ok && !quoted {
			q.Filters = append(q.Filters, Filter{Key: key, Value: lo, MaxValue: hi, Operator: OpRange})
			continue
		}

		f := Filter{Key: key, Value: removeQuotes(val), Operator: OpEqual}
		for _, op := range prefixOperators {
			if rest, ok := strings.CutPrefix(val, string(op)); ok {
				f.Value = removeQuotes(rest)
				f.Operator = op
				break
			}
		}
		q.Filters = append(q.Filters, f)
	}
	return q
}

// MatchInt compares n against the filter's value as an integer. Filters with
// non-numeric values match nothing.
func (f Filter) MatchInt(n int) bool {
	v, err := strconv.Atoi(f.Value)
	if err != nil {
		return false
	}
	switch f.Operator {
	case OpEqual:
		return n == v
	case OpGreater:
		return n > v
	case OpGreaterOrEqual:
		return n >= v
	case OpLess:
		return n < v
	case OpLessOrEqual:
		return n <= v
	case OpRange:
		hi, err := strconv.Atoi(f.MaxValue)
		if err != nil {
			return false
		}
		return n >= v && n <= hi
	}
	return false
}

// MatchText reports whether s contains the filter value, ignoring case.
func (f Filter) MatchText(s string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(f.Value))
}

// tokenize splits the string by spaces, respecting quotes.
func tokenize(input string) []string {
	var tokens []string
	var current strings.Builder
	quoteChar := rune(0)

	for _, r := range input {
		switch {
		case quoteChar != 0:
			if r == quoteChar {
				quoteChar = 0
			}
			current.WriteRune(r)
		case unicode.IsSpace(r):
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		case r == '"' || r == '\'':
			quoteChar = r
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func removeQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
