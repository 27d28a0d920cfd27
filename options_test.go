// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestGetOptions(t *testing.T) {
	opts := getOptions()
	assert.Equal(t, LocaleEnUS, opts.Locale)
	assert.True(t, opts.DynamicArrays)
	assert.True(t, opts.MergeRanges)
	assert.Equal(t, runtime.NumCPU(), opts.Workers)
	assert.Equal(t, DefaultProgramCacheSize, opts.ProgramCacheSize)
	assert.Equal(t, DefaultMaxSpillPasses, opts.MaxSpillPasses)
	assert.Equal(t, DefaultSlowFormulaThreshold, opts.SlowFormulaThreshold)
	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Clock)
	assert.NotNil(t, opts.Rand)

	opts = getOptions(Options{Workers: 3, Locale: LocaleConfig{Name: "de"}})
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, LocaleDeDE, opts.Locale)
	assert.False(t, opts.DynamicArrays)

	r := opts.Rand.Float64()
	assert.GreaterOrEqual(t, r, 0.0)
	assert.Less(t, r, 1.0)
	assert.WithinDuration(t, time.Now(), opts.Clock.Now(), time.Minute)
}

func TestLocaleByName(t *testing.T) {
	assert.Equal(t, LocaleEnUS, LocaleByName(""))
	assert.Equal(t, LocaleDeDE, LocaleByName("DE-de"))
	fr := LocaleByName("fr-FR")
	assert.Equal(t, "fr-FR", fr.Name)
	assert.Equal(t, ',', fr.ArgumentSeparator)
	assert.Equal(t, language.MustParse("fr-FR"), fr.Language)
}

func TestDecodeOptions(t *testing.T) {
	opts, err := DecodeOptions(map[string]any{
		"locale":                 "de-DE",
		"workers":                "4",
		"slow_formula_threshold": "250ms",
		"ref_mode":               "r1c1",
		"dynamic_arrays":         "false",
	})
	require.NoError(t, err)
	assert.Equal(t, LocaleDeDE, opts.Locale)
	assert.Equal(t, 4, opts.Workers)
	assert.Equal(t, 250*time.Millisecond, opts.SlowFormulaThreshold)
	assert.Equal(t, RefModeR1C1, opts.RefMode)
	assert.False(t, opts.DynamicArrays)
	assert.True(t, opts.MergeRanges)
	assert.Equal(t, DefaultMaxSpillPasses, opts.MaxSpillPasses)

	t.Run("empty settings keep the defaults", func(t *testing.T) {
		opts, err := DecodeOptions(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultOptions(), opts)
	})
	t.Run("unknown key", func(t *testing.T) {
		_, err := DecodeOptions(map[string]any{"threads": 2})
		assert.ErrorContains(t, err, "decode engine options")
	})
	t.Run("bad reference mode", func(t *testing.T) {
		_, err := DecodeOptions(map[string]any{"ref_mode": "XY"})
		assert.Error(t, err)
	})
	t.Run("bad duration", func(t *testing.T) {
		_, err := DecodeOptions(map[string]any{"slow_formula_threshold": "soon"})
		assert.Error(t, err)
	})
}

func TestEngineUsesDecodedOptions(t *testing.T) {
	opts, err := DecodeOptions(map[string]any{"locale": "de-DE"})
	require.NoError(t, err)
	e := NewEngine(opts)
	require.NoError(t, e.SetCellFormula("Sheet1", "A1", "=ROUND(2,345;1)"))
	recalc(t, e)
	assert.Equal(t, "=ROUND(2,345;1)", formulaOf(t, e, "Sheet1", "A1"))
	assert.Equal(t, 2.3, valueOf(t, e, "Sheet1", "A1").Number)
}
