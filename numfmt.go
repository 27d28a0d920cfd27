// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"math"
	"strconv"
	"strings"

	"github.com/xuri/nfp"
)

// numberFormat renders values with an Excel number format code, as the
// TEXT function does.
type numberFormat struct {
	sections []nfp.Section
}

func parseNumberFormat(code string) numberFormat {
	ps := nfp.NumberFormatParser()
	return numberFormat{sections: ps.Parse(code)}
}

func (nf numberFormat) section(typ string) (nfp.Section, bool) {
	for _, s := range nf.sections {
		if s.Type == typ {
			return s, true
		}
	}
	return nfp.Section{}, false
}

// formatText applies the text section of a format to a string, or returns
// it unchanged when there is none.
func (nf numberFormat) formatText(s string) string {
	sec, ok := nf.section(nfp.TokenSectionText)
	if !ok {
		return s
	}
	var b strings.Builder
	for _, tk := range sec.Items {
		switch tk.TType {
		case nfp.TokenTypeTextPlaceHolder:
			b.WriteString(s)
		case nfp.TokenTypeLiteral:
			b.WriteString(tk.TValue)
		case nfp.TokenTypeAlignment:
			b.WriteString(" ")
		}
	}
	return b.String()
}

// formatNumber picks the section for a number and renders it.
func (nf numberFormat) formatNumber(x float64) string {
	if len(nf.sections) == 0 {
		return formatNumber(x)
	}
	sec, signed := nf.sections[0], true
	if sec.Type == nfp.TokenSectionText {
		return formatNumber(x)
	}
	if x < 0 {
		if neg, ok := nf.section(nfp.TokenSectionNegative); ok {
			sec, signed = neg, false
			x = -x
		}
	} else if x == 0 {
		if zero, ok := nf.section(nfp.TokenSectionZero); ok {
			sec = zero
		}
	}
	for _, tk := range sec.Items {
		if tk.TType == nfp.TokenTypeDateTimes || tk.TType == nfp.TokenTypeElapsedDateTimes {
			return formatDateSection(sec, x)
		}
	}
	out := formatNumberSection(sec, math.Abs(x))
	if signed && x < 0 && strings.ContainsAny(out, "123456789") {
		return "-" + out
	}
	return out
}

// formatNumberSection renders a non-negative number with digit
// placeholders, grouping, a decimal point, percent signs and an optional
// exponent.
func formatNumberSection(sec nfp.Section, x float64) string {
	var (
		intZeros, fracZeros, fracDigits, expDigits int
		grouping, seenPoint, seenExp, general        bool
	)
	for _, tk := range sec.Items {
		switch tk.TType {
		case nfp.TokenTypeDecimalPoint:
			seenPoint = true
		case nfp.TokenTypeExponential:
			seenExp = true
		case nfp.TokenTypeThousandsSeparator:
			if !seenPoint {
				grouping = true
			}
		case nfp.TokenTypePercent:
			x *= 100
		case nfp.TokenTypeGeneral:
			general = true
		case nfp.TokenTypeZeroPlaceHolder, nfp.TokenTypeHashPlaceHolder, nfp.TokenTypeDigitalPlaceHolder:
			n := len(tk.TValue)
			zeros := strings.Count(tk.TValue, "0")
			switch {
			case seenExp:
				expDigits += n
			case seenPoint:
				fracDigits += n
				fracZeros += zeros
			default:
				intZeros += zeros
			}
		}
	}
	exponent := 0
	if seenExp && x != 0 {
		exponent = int(math.Floor(math.Log10(x)))
		x /= math.Pow(10, float64(exponent))
	}
	digits := strconv.FormatFloat(sig15(x), 'f', fracDigits, 64)
	intPart, fracPart, _ := strings.Cut(digits, ".")
	if seenExp && strings.HasPrefix(intPart, "10") {
		exponent++
		digits = strconv.FormatFloat(x/10, 'f', fracDigits, 64)
		intPart, fracPart, _ = strings.Cut(digits, ".")
	}
	if intPart == "0" && intZeros == 0 {
		intPart = ""
	}
	for len(intPart) < intZeros {
		intPart = "0" + intPart
	}
	if grouping {
		intPart = groupThousands(intPart)
	}
	for len(fracPart) > fracZeros && strings.HasSuffix(fracPart, "0") {
		fracPart = fracPart[:len(fracPart)-1]
	}
	var b strings.Builder
	intDone, fracDone, expDone := false, false, false
	seenPoint, seenExp = false, false
	for _, tk := range sec.Items {
		switch tk.TType {
		case nfp.TokenTypeZeroPlaceHolder, nfp.TokenTypeHashPlaceHolder, nfp.TokenTypeDigitalPlaceHolder:
			switch {
			case seenExp && !expDone:
				e := strconv.Itoa(abs(exponent))
				for len(e) < expDigits {
					e = "0" + e
				}
				b.WriteString(e)
				expDone = true
			case seenPoint && !seenExp && !fracDone:
				b.WriteString(fracPart)
				fracDone = true
			case !seenPoint && !seenExp && !intDone:
				b.WriteString(intPart)
				intDone = true
			}
		case nfp.TokenTypeDecimalPoint:
			seenPoint = true
			b.WriteString(".")
		case nfp.TokenTypeExponential:
			seenExp = true
			sign := "+"
			if exponent < 0 {
				sign = "-"
			} else if !strings.Contains(tk.TValue, "+") {
				sign = ""
			}
			b.WriteString(tk.TValue[:1] + sign)
		case nfp.TokenTypePercent:
			b.WriteString("%")
		case nfp.TokenTypeLiteral:
			b.WriteString(tk.TValue)
		case nfp.TokenTypeAlignment:
			b.WriteString(" ")
		case nfp.TokenTypeGeneral:
			if general {
				b.WriteString(formatNumber(x))
			}
		case nfp.TokenTypeCurrencyLanguage:
			for _, part := range tk.Parts {
				if part.Token.TType == nfp.TokenSubTypeCurrencyString {
					b.WriteString(part.Token.TValue)
				}
			}
		}
	}
	return b.String()
}

func groupThousands(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var (
	monthNames = []string{"January", "February", "March", "April", "May", "June", "July",
		"August", "September", "October", "November", "December"}
	dayNames = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
)

// formatDateSection renders a serial date-time with date and time codes.
// "m" and "mm" mean minutes next to hours or seconds, months otherwise.
func formatDateSection(sec nfp.Section, serial float64) string {
	if serial < 0 {
		return strings.Repeat("#", 8)
	}
	t := serialToTime(serial)
	ampm := false
	for _, tk := range sec.Items {
		if tk.TType == nfp.TokenTypeDateTimes {
			if l := strings.ToLower(tk.TValue); l == "am/pm" || l == "a/p" {
				ampm = true
			}
		}
	}
	items := sec.Items
	var b strings.Builder
	for i, tk := range items {
		switch tk.TType {
		case nfp.TokenTypeLiteral:
			b.WriteString(tk.TValue)
		case nfp.TokenTypeAlignment:
			b.WriteString(" ")
		case nfp.TokenTypeDecimalPoint:
			b.WriteString(".")
		case nfp.TokenTypeZeroPlaceHolder:
			frac := serial*86400 - math.Floor(serial*86400)
			s := strconv.FormatFloat(frac, 'f', len(tk.TValue), 64)
			if _, digits, ok := strings.Cut(s, "."); ok {
				b.WriteString(digits)
			}
		case nfp.TokenTypeElapsedDateTimes:
			switch strings.ToLower(tk.TValue[:1]) {
			case "h":
				b.WriteString(strconv.Itoa(int(serial * 24)))
			case "m":
				b.WriteString(strconv.Itoa(int(serial * 1440)))
			case "s":
				b.WriteString(strconv.Itoa(int(math.Round(serial * 86400))))
			}
		case nfp.TokenTypeDateTimes:
			code := strings.ToLower(tk.TValue)
			switch {
			case code == "am/pm":
				if t.Hour() < 12 {
					b.WriteString("AM")
				} else {
					b.WriteString("PM")
				}
			case code == "a/p":
				if t.Hour() < 12 {
					b.WriteString("A")
				} else {
					b.WriteString("P")
				}
			case strings.HasPrefix(code, "y"):
				if len(code) <= 2 {
					b.WriteString(pad2(t.Year() % 100))
				} else {
					b.WriteString(strconv.Itoa(t.Year()))
				}
			case strings.HasPrefix(code, "d"):
				switch len(code) {
				case 1:
					b.WriteString(strconv.Itoa(t.Day()))
				case 2:
					b.WriteString(pad2(t.Day()))
				case 3:
					b.WriteString(dayNames[t.Weekday()][:3])
				default:
					b.WriteString(dayNames[t.Weekday()])
				}
			case strings.HasPrefix(code, "h"):
				h := t.Hour()
				if ampm {
					h %= 12
					if h == 0 {
						h = 12
					}
				}
				if len(code) == 1 {
					b.WriteString(strconv.Itoa(h))
				} else {
					b.WriteString(pad2(h))
				}
			case strings.HasPrefix(code, "s"):
				if len(code) == 1 {
					b.WriteString(strconv.Itoa(t.Second()))
				} else {
					b.WriteString(pad2(t.Second()))
				}
			case strings.HasPrefix(code, "m"):
				if len(code) <= 2 && minuteContext(items, i) {
					if len(code) == 1 {
						b.WriteString(strconv.Itoa(t.Minute()))
					} else {
						b.WriteString(pad2(t.Minute()))
					}
					continue
				}
				month := monthNames[t.Month()-1]
				switch len(code) {
				case 1:
					b.WriteString(strconv.Itoa(int(t.Month())))
				case 2:
					b.WriteString(pad2(int(t.Month())))
				case 3:
					b.WriteString(month[:3])
				case 5:
					b.WriteString(month[:1])
				default:
					b.WriteString(month)
				}
			}
		}
	}
	return b.String()
}

// minuteContext reports whether the m code at i sits after an hour code
// or before a seconds code.
func minuteContext(items []nfp.Token, i int) bool {
	for j := i - 1; j >= 0; j-- {
		if items[j].TType == nfp.TokenTypeDateTimes || items[j].TType == nfp.TokenTypeElapsedDateTimes {
			return strings.HasPrefix(strings.ToLower(items[j].TValue), "h")
		}
	}
	for j := i + 1; j < len(items); j++ {
		if items[j].TType == nfp.TokenTypeDateTimes {
			return strings.HasPrefix(strings.ToLower(items[j].TValue), "s")
		}
	}
	return false
}

func pad2(n int) string {
	if n < 10 && n >= 0 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
