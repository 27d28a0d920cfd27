// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"math"
	"strings"
	"time"
)

// Serial dates count days from 1900-01-00. Serial 60 is 1900-02-29, a day
// that never existed but that the 1900 date system keeps for
// compatibility, so serials from 61 on are offset from 1899-12-30.
var (
	excelEpoch     = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	excelEpochLeap = time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)
)

const (
	secondsPerDay = 86400
	maxSerialDate = 2958465 // 9999-12-31
)

var dateFunctions = []FunctionDescriptor{
	{Name: "DATE", MinArgs: 3, MaxArgs: 3, ArgTypes: []ArgType{ArgNumber, ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: fnDATE},
	{Name: "TIME", MinArgs: 3, MaxArgs: 3, ArgTypes: []ArgType{ArgNumber, ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: fnTIME},
	{Name: "NOW", MinArgs: 0, MaxArgs: 0, Returns: ReturnNumber, Volatile: true, Handler: func(ctx *CallContext, _ []Arg) Value {
		return NewNumberValue(timeToSerial(wallClock(ctx.Now())))
	}},
	{Name: "TODAY", MinArgs: 0, MaxArgs: 0, Returns: ReturnNumber, Volatile: true, Handler: func(ctx *CallContext, _ []Arg) Value {
		return NewNumberValue(math.Floor(timeToSerial(wallClock(ctx.Now()))))
	}},
	{Name: "YEAR", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnNumber, Handler: datePart(func(y, _, _ int) int { return y })},
	{Name: "MONTH", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnNumber, Handler: datePart(func(_, m, _ int) int { return m })},
	{Name: "DAY", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnNumber, Handler: datePart(func(_, _, d int) int { return d })},
	{Name: "HOUR", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnNumber, Handler: timePart(func(s int) int { return s / 3600 })},
	{Name: "MINUTE", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnNumber, Handler: timePart(func(s int) int { return s / 60 % 60 })},
	{Name: "SECOND", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnNumber, Handler: timePart(func(s int) int { return s % 60 })},
	{Name: "WEEKDAY", MinArgs: 1, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: fnWEEKDAY},
	{Name: "EDATE", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: monthShift(false)},
	{Name: "EOMONTH", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: monthShift(true)},
	{Name: "DATEVALUE", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgText}, Returns: ReturnNumber, Handler: fnDATEVALUE},
	{Name: "TIMEVALUE", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgText}, Returns: ReturnNumber, Handler: fnTIMEVALUE},
	{Name: "DAYS", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: func(_ *CallContext, args []Arg) Value {
		return NewNumberValue(math.Floor(args[0].Value.Number) - math.Floor(args[1].Value.Number))
	}},
	{Name: "DATEDIF", MinArgs: 3, MaxArgs: 3, ArgTypes: []ArgType{ArgNumber, ArgNumber, ArgText}, Returns: ReturnNumber, Handler: fnDATEDIF},
}

// wallClock keeps the clock reading of t and drops its zone, since serials
// carry no zone.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// timeToSerial converts a UTC time to a serial date-time.
func timeToSerial(t time.Time) float64 {
	secs := float64(t.Unix()-excelEpoch.Unix()) + float64(t.Nanosecond())/1e9
	serial := secs / secondsPerDay
	if serial < 61 {
		serial--
	}
	return serial
}

// serialToTime converts a serial date-time to a UTC time, rounded to the
// millisecond. Serial 60 maps to 1900-03-01; use dateParts where the
// phantom leap day matters.
func serialToTime(serial float64) time.Time {
	epoch := excelEpoch
	if serial < 61 {
		epoch = excelEpochLeap
	}
	days := math.Floor(serial)
	ms := math.Round((serial - days) * secondsPerDay * 1000)
	return epoch.AddDate(0, 0, int(days)).Add(time.Duration(ms) * time.Millisecond)
}

// dateParts returns the year, month and day of a serial.
func dateParts(serial float64) (int, int, int) {
	switch day := int(serial); day {
	case 0:
		return 1900, 1, 0
	case 60:
		return 1900, 2, 29
	}
	t := serialToTime(math.Floor(serial))
	return t.Year(), int(t.Month()), t.Day()
}

// dateSerial builds a serial from a year, month and day, rolling excess
// months and days into the next unit. Years below 1900 are offsets from
// 1900.
func dateSerial(y, m, d int) (float64, bool) {
	if y >= 0 && y < 1900 {
		y += 1900
	}
	if y < 0 || y > 9999 {
		return 0, false
	}
	serial := timeToSerial(time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC))
	if serial < 0 || serial > maxSerialDate {
		return 0, false
	}
	return serial, true
}

func fnDATE(_ *CallContext, args []Arg) Value {
	serial, ok := dateSerial(int(args[0].Value.Number), int(args[1].Value.Number), int(args[2].Value.Number))
	if !ok {
		return NewErrorValue(ErrorNUM, "date out of range")
	}
	return NewNumberValue(serial)
}

// fnTIME returns the fraction of a day; whole days wrap away.
func fnTIME(_ *CallContext, args []Arg) Value {
	secs := math.Trunc(args[0].Value.Number)*3600 + math.Trunc(args[1].Value.Number)*60 + math.Trunc(args[2].Value.Number)
	if secs < 0 {
		return NewErrorValue(ErrorNUM)
	}
	return NewNumberValue(math.Mod(secs, secondsPerDay) / secondsPerDay)
}

func datePart(pick func(y, m, d int) int) func(*CallContext, []Arg) Value {
	return func(_ *CallContext, args []Arg) Value {
		serial := args[0].Value.Number
		if serial < 0 || serial > maxSerialDate+1 {
			return NewErrorValue(ErrorNUM)
		}
		return NewNumberValue(float64(pick(dateParts(serial))))
	}
}

func timePart(pick func(secs int) int) func(*CallContext, []Arg) Value {
	return func(_ *CallContext, args []Arg) Value {
		serial := args[0].Value.Number
		if serial < 0 {
			return NewErrorValue(ErrorNUM)
		}
		secs := int(math.Round((serial - math.Floor(serial)) * secondsPerDay))
		return NewNumberValue(float64(pick(secs % secondsPerDay)))
	}
}

// fnWEEKDAY numbers the day of the week. Serial 1 is a Sunday in the 1900
// date system.
func fnWEEKDAY(_ *CallContext, args []Arg) Value {
	serial := args[0].Value.Number
	if serial < 0 {
		return NewErrorValue(ErrorNUM)
	}
	sunday0 := (int(serial) + 6) % 7
	switch kind := int(num(args, 1, 1)); kind {
	case 1, 17:
		return NewNumberValue(float64(sunday0 + 1))
	case 2, 11:
		return NewNumberValue(float64((sunday0+6)%7 + 1))
	case 3:
		return NewNumberValue(float64((sunday0 + 6) % 7))
	case 12, 13, 14, 15, 16:
		first := kind - 10
		return NewNumberValue(float64((sunday0-first+7)%7 + 1))
	}
	return NewErrorValue(ErrorNUM)
}

// monthShift builds EDATE and EOMONTH. EDATE clamps the day to the end of
// the target month.
func monthShift(endOfMonth bool) func(*CallContext, []Arg) Value {
	return func(_ *CallContext, args []Arg) Value {
		serial := args[0].Value.Number
		if serial < 0 {
			return NewErrorValue(ErrorNUM)
		}
		y, m, d := dateParts(serial)
		m += int(args[1].Value.Number)
		last := time.Date(y, time.Month(m)+1, 0, 0, 0, 0, 0, time.UTC).Day()
		if endOfMonth || d > last {
			d = last
		}
		out, ok := dateSerial(y, m, d)
		if !ok {
			return NewErrorValue(ErrorNUM)
		}
		return NewNumberValue(out)
	}
}

func fnDATEVALUE(_ *CallContext, args []Arg) Value {
	serial, ok := parseDateText(args[0].Value.Text)
	if !ok {
		return NewErrorValue(ErrorVALUE, "not a date")
	}
	return NewNumberValue(math.Floor(serial))
}

func fnTIMEVALUE(_ *CallContext, args []Arg) Value {
	serial, ok := parseDateText(args[0].Value.Text)
	if !ok {
		return NewErrorValue(ErrorVALUE, "not a time")
	}
	return NewNumberValue(serial - math.Floor(serial))
}

// fnDATEDIF counts complete years, months or days between two dates.
func fnDATEDIF(_ *CallContext, args []Arg) Value {
	start, end := math.Floor(args[0].Value.Number), math.Floor(args[1].Value.Number)
	if start < 0 || end < start {
		return NewErrorValue(ErrorNUM)
	}
	y1, m1, d1 := dateParts(start)
	y2, m2, d2 := dateParts(end)
	months := (y2-y1)*12 + m2 - m1
	if d2 < d1 {
		months--
	}
	switch strings.ToUpper(args[2].Value.Text) {
	case "Y":
		return NewNumberValue(float64(months / 12))
	case "M":
		return NewNumberValue(float64(months))
	case "D":
		return NewNumberValue(end - start)
	case "YM":
		return NewNumberValue(float64(months % 12))
	case "MD":
		if d2 >= d1 {
			return NewNumberValue(float64(d2 - d1))
		}
		prev := time.Date(y2, time.Month(m2), 0, 0, 0, 0, 0, time.UTC).Day()
		return NewNumberValue(float64(prev - d1 + d2))
	case "YD":
		y := y2
		if m2 < m1 || (m2 == m1 && d2 < d1) {
			y--
		}
		anniversary, _ := dateSerial(y, m1, d1)
		return NewNumberValue(end - anniversary)
	}
	return NewErrorValue(ErrorNUM)
}

var (
	dateLayouts = []string{
		"2006-1-2", "2006/1/2", "1/2/2006", "1-2-2006", "1/2/06",
		"2-Jan-2006", "2 Jan 2006", "2-January-2006", "2 January 2006",
		"Jan 2, 2006", "January 2, 2006", "Jan 2 2006", "January 2 2006",
	}
	timeLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04:05 PM", "3 PM", "15:04:05.999"}
)

// parseDateText reads a date, a time or both from text and returns the
// serial. Dates before 1900 are not representable.
func parseDateText(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !strings.ContainsAny(s, "-/: ") && !strings.ContainsAny(s, "JFMASONDjfmasond") {
		return 0, false
	}
	upper := strings.ToUpper(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, upper); err == nil {
			return float64(t.Hour()*3600+t.Minute()*60+t.Second()) / secondsPerDay, true
		}
	}
	for _, dl := range dateLayouts {
		if t, err := time.Parse(dl, upper); err == nil {
			return dateTimeSerial(t)
		}
		for _, tl := range timeLayouts {
			if t, err := time.Parse(dl+" "+tl, upper); err == nil {
				return dateTimeSerial(t)
			}
		}
	}
	return 0, false
}

func dateTimeSerial(t time.Time) (float64, bool) {
	if t.Year() < 1900 {
		return 0, false
	}
	return timeToSerial(t), true
}
