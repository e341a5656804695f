// Package timeexpr resolves natural-language time expressions in a user
// utterance to an absolute timestamp.
//
// Resolution runs three independent steps in a fixed order, each taking the
// first matching phrase: a day offset ("昨天", "3 days ago"), a part of the day
// ("下午" sets 15:00), and an explicit clock hour ("3点"), which overrides the
// hour and moves to the afternoon when a PM marker is present. Steps that do
// not match leave the timestamp alone, so an utterance with no time words
// resolves to now.
package timeexpr

import (
	"strconv"
	"strings"
	"time"
)

// Match describes which steps matched during a resolution.
type Match struct {
	DayOffset   int  `json:"day_offset"`
	DayMatched  bool `json:"day_matched"`
	Hour        int  `json:"hour"`
	HourMatched bool `json:"hour_matched"`
}

// Resolver resolves utterances against an ordered list of locales.
type Resolver struct {
	locales []Locale
}

// New returns a resolver that consults the locales in order.
func New(locales ...Locale) *Resolver {
	return &Resolver{locales: locales}
}

// Default resolves Chinese and English phrases.
var Default = New(Chinese, English)

// Resolve returns the absolute time the utterance refers to, relative to now.
func Resolve(utterance string, now time.Time) time.Time {
	return Default.Resolve(utterance, now)
}

// Resolve returns the absolute time the utterance refers to, relative to now.
func (r *Resolver) Resolve(utterance string, now time.Time) time.Time {
	t, _ := r.ResolveMatch(utterance, now)
	return t
}

// ResolveMatch is Resolve that also reports which steps matched.
func (r *Resolver) ResolveMatch(utterance string, now time.Time) (time.Time, Match) {
	msg := strings.ToLower(utterance)
	var m Match
	result := now

	if days, ok := r.dayOffset(msg); ok {
		m.DayOffset, m.DayMatched = days, true
		result = result.AddDate(0, 0, days)
	}

	hour, hourSet := r.partOfDay(msg)
	if h, ok := r.clockHour(msg); ok {
		hour, hourSet = h, true
	}
	if hourSet {
		m.Hour, m.HourMatched = hour, true
		result = time.Date(result.Year(), result.Month(), result.Day(), hour, 0, 0, 0, result.Location())
	}

	return result, m
}

func (r *Resolver) dayOffset(msg string) (int, bool) {
	for _, loc := range r.locales {
		for _, off := range loc.DayOffsets {
			if containsAny(msg, off.Phrases) {
				return off.Days, true
			}
		}
	}
	for _, loc := range r.locales {
		if loc.DaysAgo == nil {
			continue
		}
		sub := loc.DaysAgo.FindStringSubmatch(msg)
		if sub == nil {
			continue
		}
		if n, ok := parseCount(sub[1], loc.Numbers); ok {
			return -n, true
		}
	}
	return 0, false
}

func (r *Resolver) partOfDay(msg string) (int, bool) {
	for _, loc := range r.locales {
		for _, p := range loc.PartsOfDay {
			if containsAny(msg, p.Phrases) {
				return p.Hour, true
			}
		}
	}
	return 0, false
}

func (r *Resolver) clockHour(msg string) (int, bool) {
	for _, loc := range r.locales {
		if loc.ClockHour == nil {
			continue
		}
		sub := loc.ClockHour.FindStringSubmatch(msg)
		if sub == nil {
			continue
		}
		hour, err := strconv.Atoi(sub[1])
		if err != nil || hour > 23 {
			continue
		}
		switch {
		case len(sub) > 2 && isAny(sub[2], loc.AMSuffixes):
			if hour == 12 {
				hour = 0
			}
		case hour < 12 && containsAny(msg, loc.PMMarkers):
			hour += 12
		}
		return hour, true
	}
	return 0, false
}

func isAny(s string, words []string) bool {
	for _, w := range words {
		if s == w {
			return true
		}
	}
	return false
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// parseCount reads digits, a table word ("three", "五"), or a Chinese
// numeral built around 十 ("十五", "二十").
func parseCount(s string, words map[string]int) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if n, ok := words[s]; ok {
		return n, true
	}
	tens, units, found := strings.Cut(s, "十")
	if !found {
		return 0, false
	}
	t, u := 1, 0
	if tens != "" {
		v, ok := words[tens]
		if !ok {
			return 0, false
		}
		t = v
	}
	if units != "" {
		v, ok := words[units]
		if !ok {
			return 0, false
		}
		u = v
	}
	return t*10 + u, true
}
