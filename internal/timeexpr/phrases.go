package timeexpr

import "regexp"

// DayOffset maps phrases to a whole-day shift from now.
type DayOffset struct {
	Phrases []string
	Days    int
}

// PartOfDay maps phrases to a fixed hour of the day.
type PartOfDay struct {
	Phrases []string
	Hour    int
}

// Locale is a phrase table. Order within each list matters: the first entry
// whose phrase occurs in the utterance wins, so longer phrases that contain
// shorter ones ("day before yesterday" / "yesterday") must come first.
type Locale struct {
	Name string

	DayOffsets []DayOffset
	// DaysAgo captures a count in group 1, as digits or a spelled-out number.
	DaysAgo *regexp.Regexp
	Numbers map[string]int

	PartsOfDay []PartOfDay

	// ClockHour captures an explicit hour in group 1 and what follows it in
	// group 2, which must not start with a digit ("8点5" is a decimal, not
	// eight o'clock).
	ClockHour  *regexp.Regexp
	// PMMarkers move an hour below 12 into the afternoon.
	PMMarkers  []string
	// AMSuffixes are group 2 captures that pin the hour to the morning:
	// PM markers are ignored and 12 means midnight.
	AMSuffixes []string
}

// Chinese is the phrase table for Simplified Chinese utterances.
var Chinese = Locale{
	Name: "zh",
	DayOffsets: []DayOffset{
		{Phrases: []string{"大前天"}, Days: -3},
		{Phrases: []string{"昨天", "昨日", "昨晚"}, Days: -1},
		{Phrases: []string{"前天", "前日"}, Days: -2},
		{Phrases: []string{"大后天"}, Days: 3},
		{Phrases: []string{"明天", "明日"}, Days: 1},
		{Phrases: []string{"后天"}, Days: 2},
	},
	DaysAgo: regexp.MustCompile(`(\d+|[一二两三四五六七八九十]+)\s*天(?:之|以)?前`),
	Numbers: map[string]int{
		"一": 1, "二": 2, "两": 2, "三": 3, "四": 4, "五": 5,
		"六": 6, "七": 7, "八": 8, "九": 9, "十": 10,
	},
	PartsOfDay: []PartOfDay{
		{Phrases: []string{"今天早上", "今天上午", "今早", "早上", "早晨", "上午"}, Hour: 8},
		{Phrases: []string{"今天中午", "中午"}, Hour: 12},
		{Phrases: []string{"今天下午", "下午"}, Hour: 15},
		{Phrases: []string{"今天晚上", "晚上", "今晚", "昨晚", "傍晚"}, Hour: 19},
	},
	ClockHour: regexp.MustCompile(`(\d{1,2})\s*[点時时]([^\d]|$)`),
	PMMarkers: []string{"下午", "晚上", "今晚", "昨晚", "傍晚"},
}

// English is the phrase table for English utterances.
var English = Locale{
	Name: "en",
	DayOffsets: []DayOffset{
		{Phrases: []string{"day before yesterday"}, Days: -2},
		{Phrases: []string{"yesterday", "last night"}, Days: -1},
		{Phrases: []string{"day after tomorrow"}, Days: 2},
		{Phrases: []string{"tomorrow"}, Days: 1},
	},
	DaysAgo: regexp.MustCompile(`\b(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\s+days?\s+ago\b`),
	Numbers: map[string]int{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
		"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	},
	PartsOfDay: []PartOfDay{
		{Phrases: []string{"this morning", "morning"}, Hour: 8},
		// "afternoon" contains "noon" and must be checked before it.
		{Phrases: []string{"this afternoon", "afternoon"}, Hour: 15},
		{Phrases: []string{"noon", "lunchtime"}, Hour: 12},
		{Phrases: []string{"this evening", "evening", "tonight", "last night"}, Hour: 19},
	},
	ClockHour:  regexp.MustCompile(`\b(\d{1,2})\s*(o'?clock|pm|am)\b`),
	PMMarkers:  []string{"afternoon", "evening", "tonight", "last night", "pm"},
	AMSuffixes: []string{"am"},
}
