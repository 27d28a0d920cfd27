// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"strings"

	"github.com/xuri/efp"
)

// ScanReferences lists the cell and range references of formula text with
// a fast token scan, without parsing it into a tree or resolving names.
// Operands that do not read as A1 references, such as defined names, are
// skipped. It accepts formulas that the engine would reject, which makes
// it suitable for ordering and inspecting bulk loads.
func ScanReferences(formula string) []Ref {
	ps := efp.ExcelParser()
	tokens := ps.Parse(strings.TrimPrefix(formula, "="))
	var out []Ref
	for _, token := range tokens {
		if token.TType != efp.TokenTypeOperand || token.TSubType != efp.TokenSubTypeRange {
			continue
		}
		ref := splitScannedRef(token.TValue)
		if ref.Range == "" {
			continue
		}
		if _, err := parseAreaRef(0, ref.Range); err != nil {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// splitScannedRef splits "'[Book.xlsx]My Sheet'!$A$1:B2" into its
// workbook, sheet and range parts.
func splitScannedRef(text string) Ref {
	i := strings.LastIndex(text, "!")
	if i < 0 {
		return Ref{Range: text}
	}
	prefix, ref := text[:i], Ref{Range: text[i+1:]}
	if len(prefix) > 1 && strings.HasPrefix(prefix, "'") && strings.HasSuffix(prefix, "'") {
		prefix = strings.ReplaceAll(prefix[1:len(prefix)-1], "''", "'")
	}
	if open := strings.Index(prefix, "["); open >= 0 {
		if end := strings.Index(prefix, "]"); end > open {
			ref.Workbook = prefix[:open] + prefix[open+1:end]
			prefix = prefix[end+1:]
		}
	}
	ref.Sheet = prefix
	return ref
}
