// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// RefMode selects the reference notation formulas are written in.
type RefMode uint8

const (
	// RefModeA1 is the default column-letter row-number notation.
	RefModeA1 RefMode = iota
	// RefModeR1C1 is the row/column offset notation.
	RefModeR1C1
)

// LocaleConfig carries the locale-dependent punctuation of formula text and
// the language used for text ordering and case mapping.
type LocaleConfig struct {
	Name                 string
	DecimalSeparator     rune
	ArgumentSeparator    rune
	ArrayColumnSeparator rune
	ArrayRowSeparator    rune
	Language             language.Tag
}

var (
	// LocaleEnUS is the en-US formula locale.
	LocaleEnUS = LocaleConfig{
		Name:                 "en-US",
		DecimalSeparator:     '.',
		ArgumentSeparator:    ',',
		ArrayColumnSeparator: ',',
		ArrayRowSeparator:    ';',
		Language:             language.AmericanEnglish,
	}
	// LocaleDeDE is the de-DE formula locale.
	LocaleDeDE = LocaleConfig{
		Name:                 "de-DE",
		DecimalSeparator:     ',',
		ArgumentSeparator:    ';',
		ArrayColumnSeparator: '\\',
		ArrayRowSeparator:    ';',
		Language:             language.German,
	}
)

// LocaleByName returns a preset locale by its BCP 47 name. Unknown names
// fall back to en-US punctuation with the requested language for text
// ordering.
func LocaleByName(name string) LocaleConfig {
	switch strings.ToLower(name) {
	case "", "en-us", "en":
		return LocaleEnUS
	case "de-de", "de":
		return LocaleDeDE
	}
	loc := LocaleEnUS
	loc.Name = name
	if tag, err := language.Parse(name); err == nil {
		loc.Language = tag
	}
	return loc
}

// textRules holds the text comparison and case mapping machinery of one
// engine. Collators keep internal buffers, so each goroutine borrows its own
// from the pool.
type textRules struct {
	lang language.Tag
	pool sync.Pool
}

func newTextRules(lang language.Tag) *textRules {
	t := &textRules{lang: lang}
	t.pool.New = func() any {
		return collate.New(lang, collate.IgnoreCase)
	}
	return t
}

// compare orders two strings case-insensitively under the locale's
// collation, returning -1, 0 or 1.
func (t *textRules) compare(a, b string) int {
	if a == b {
		return 0
	}
	c := t.pool.Get().(*collate.Collator)
	defer t.pool.Put(c)
	return c.CompareString(a, b)
}

// equal reports whether two strings match case-insensitively.
func (t *textRules) equal(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	return t.compare(a, b) == 0
}

func (t *textRules) upper(s string) string { return cases.Upper(t.lang).String(s) }

func (t *textRules) lower(s string) string { return cases.Lower(t.lang).String(s) }
