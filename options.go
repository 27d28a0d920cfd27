// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"fmt"
	"math/rand/v2"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultProgramCacheSize is the number of compiled formula shapes an
	// engine keeps by default.
	DefaultProgramCacheSize = 4096
	// DefaultMaxSpillPasses bounds how many times one recalculation re-runs
	// readers of cells whose spilled values moved.
	DefaultMaxSpillPasses = 8
	// DefaultSlowFormulaThreshold is the evaluation time above which a
	// formula is reported as slow.
	DefaultSlowFormulaThreshold = 500 * time.Millisecond
)

// Options define the options for an engine. Interface-valued fields are
// supplied by the host and are not decoded by DecodeOptions.
//
// Locale selects the punctuation formulas are written with and the
// language used to order and case-map text.
//
// RefMode selects A1 or R1C1 notation for formula text.
//
// Workers is the size of the recalculation worker pool. Zero uses one
// worker per CPU.
//
// DynamicArrays lets array results spill into neighbouring cells. Without
// it, array results collapse to their top-left value.
//
// ProgramCacheSize bounds the cache of compiled formula shapes.
//
// MaxSpillPasses bounds the extra passes a recalculation runs when spilled
// blocks move.
//
// SlowFormulaThreshold is the evaluation time above which a formula is
// logged as slow. A negative value disables the report.
//
// MergeRanges enables the decomposition of growing ranges such as
// A$1:A1, A$1:A2, ... into shared range nodes.
type Options struct {
	Locale               LocaleConfig          `mapstructure:"locale"`
	RefMode              RefMode               `mapstructure:"ref_mode"`
	Workers              int                   `mapstructure:"workers"`
	DynamicArrays        bool                  `mapstructure:"dynamic_arrays"`
	ProgramCacheSize     int                   `mapstructure:"program_cache_size"`
	MaxSpillPasses       int                   `mapstructure:"max_spill_passes"`
	SlowFormulaThreshold time.Duration         `mapstructure:"slow_formula_threshold"`
	MergeRanges          bool                  `mapstructure:"merge_ranges"`
	Logger               hclog.Logger          `mapstructure:"-"`
	Clock                Clock                 `mapstructure:"-"`
	Rand                 RandSource            `mapstructure:"-"`
	Provider             ExternalValueProvider `mapstructure:"-"`
	RTD                  RTDServer             `mapstructure:"-"`
}

// RTDServer answers RTD calls. It is only ever called from the serial
// worker, so implementations need not be safe for concurrent use.
type RTDServer interface {
	RealTimeData(progID, server string, topics []string) (Value, error)
}

// DefaultOptions returns the options an engine uses when none are given.
func DefaultOptions() Options {
	return Options{
		Locale:               LocaleEnUS,
		DynamicArrays:        true,
		MergeRanges:          true,
		ProgramCacheSize:     DefaultProgramCacheSize,
		MaxSpillPasses:       DefaultMaxSpillPasses,
		SlowFormulaThreshold: DefaultSlowFormulaThreshold,
	}
}

// getOptions provides a function to parse the optional settings for the
// engine, filling whatever was left zero.
func getOptions(opts ...Options) Options {
	options := DefaultOptions()
	for _, opt := range opts {
		options = opt
	}
	if options.Locale.ArgumentSeparator == 0 {
		options.Locale = LocaleByName(options.Locale.Name)
	}
	if options.Workers <= 0 {
		options.Workers = runtime.NumCPU()
	}
	if options.ProgramCacheSize == 0 {
		options.ProgramCacheSize = DefaultProgramCacheSize
	}
	if options.MaxSpillPasses <= 0 {
		options.MaxSpillPasses = DefaultMaxSpillPasses
	}
	if options.SlowFormulaThreshold == 0 {
		options.SlowFormulaThreshold = DefaultSlowFormulaThreshold
	}
	if options.Logger == nil {
		options.Logger = hclog.NewNullLogger()
	}
	if options.Clock == nil {
		options.Clock = systemClock{}
	}
	if options.Rand == nil {
		options.Rand = globalRand{}
	}
	return options
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// globalRand draws from the runtime's shared generator, which is safe for
// concurrent use.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// DecodeOptions builds options from loosely typed host settings, such as a
// parsed configuration file. Fields not present keep their defaults;
// unknown keys are an error.
//
//	opts, err := xlcalc.DecodeOptions(map[string]any{
//	    "locale":                 "de-DE",
//	    "workers":                "4",
//	    "slow_formula_threshold": "250ms",
//	})
func DecodeOptions(settings map[string]any) (Options, error) {
	opts := DefaultOptions()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			localeHook,
			refModeHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &opts,
	})
	if err != nil {
		return opts, err
	}
	if err := dec.Decode(settings); err != nil {
		return opts, fmt.Errorf("decode engine options: %w", err)
	}
	return opts, nil
}

var (
	localeType  = reflect.TypeOf(LocaleConfig{})
	refModeType = reflect.TypeOf(RefMode(0))
)

// localeHook maps a locale name onto its preset.
func localeHook(from, to reflect.Type, data any) (any, error) {
	if to != localeType || from.Kind() != reflect.String {
		return data, nil
	}
	return LocaleByName(reflect.ValueOf(data).String()), nil
}

// refModeHook accepts "A1" and "R1C1".
func refModeHook(from, to reflect.Type, data any) (any, error) {
	if to != refModeType || from.Kind() != reflect.String {
		return data, nil
	}
	switch strings.ToUpper(reflect.ValueOf(data).String()) {
	case "", "A1":
		return RefModeA1, nil
	case "R1C1":
		return RefModeR1C1, nil
	}
	return nil, fmt.Errorf("unknown reference mode %q", data)
}
