// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed 5-field cron expression. Create one with Parse,
// then call Next to find the next matching time.
type Schedule struct {
	minute     fieldSet
	hour       fieldSet
	dayOfMonth fieldSet
	month      fieldSet
	dayOfWeek  fieldSet

	// Restricted day fields (ones not written starting with *) switch
	// the day match from AND to OR when both are restricted, the
	// standard cron rule.
	domRestricted bool
	dowRestricted bool
}

// fieldSet is a compact set of the integers 0-63, one bit per value.
// Every cron field fits: minutes are the widest at 0-59.
type fieldSet uint64

func (f fieldSet) has(v int) bool { return f&(1<<uint(v)) != 0 }
func (f *fieldSet) add(v int)     { *f |= 1 << uint(v) }

// fieldSpec describes the valid range of one cron field.
type fieldSpec struct {
	name     string
	min, max int
}

var fieldSpecs = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// Parse parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week). Each field accepts
// comma-separated terms of the forms *, N, N-M, */S, and N-M/S.
//
// The day fields follow the standard cron rule: when both day-of-month
// and day-of-week are restricted (written without a leading *), a day
// matches if either field matches; otherwise both must match.
func Parse(expression string) (Schedule, error) {
	fields := strings.Fields(expression)
	if len(fields) != len(fieldSpecs) {
		return Schedule{}, fmt.Errorf("cron: expected %d fields, got %d in %q",
			len(fieldSpecs), len(fields), expression)
	}

	var sets [5]fieldSet
	for i, spec := range fieldSpecs {
		set, err := parseField(fields[i], spec)
		if err != nil {
			return Schedule{}, fmt.Errorf("cron: %s field: %w", spec.name, err)
		}
		sets[i] = set
	}

	return Schedule{
		minute:     sets[0],
		hour:       sets[1],
		dayOfMonth: sets[2],
		month:      sets[3],
		dayOfWeek:  sets[4],

		domRestricted: !strings.HasPrefix(fields[2], "*"),
		dowRestricted: !strings.HasPrefix(fields[4], "*"),
	}, nil
}

// Next returns the earliest time strictly after t that matches the
// schedule. Computation is in t's location.
//
// The search is bounded at 4 years past t (covering every leap-year
// cycle) so that impossible schedules like Feb 31 return an error
// instead of looping forever.
func (s Schedule) Next(t time.Time) (time.Time, error) {
	location := t.Location()
	t = t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		if !s.month.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, location)
			continue
		}

		if !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, location)
			continue
		}

		if !s.hour.has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, location)
			continue
		}

		if !s.minute.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}

		return t, nil
	}

	return time.Time{}, fmt.Errorf("cron: no matching time within 4 years of %s", t.Format(time.RFC3339))
}

// dayMatches applies the standard cron day rule: both day fields must
// match, except that two restricted fields are ORed — "0 0 13 * 5"
// fires on the 13th and on every Friday, not only on Friday the 13th.
func (s Schedule) dayMatches(t time.Time) bool {
	dom := s.dayOfMonth.has(t.Day())
	dow := s.dayOfWeek.has(int(t.Weekday()))
	if s.domRestricted && s.dowRestricted {
		return dom || dow
	}
	return dom && dow
}

func parseField(field string, spec fieldSpec) (fieldSet, error) {
	var result fieldSet
	for _, term := range strings.Split(field, ",") {
		set, err := parseTerm(term, spec)
		if err != nil {
			return 0, err
		}
		result |= set
	}
	if result == 0 {
		return 0, fmt.Errorf("%q produces an empty set", field)
	}
	return result, nil
}

// parseTerm parses one comma-separated term: *, */S, N, N-M, or N-M/S.
func parseTerm(term string, spec fieldSpec) (fieldSet, error) {
	rangePart, stepPart, hasStep := strings.Cut(term, "/")

	step := 1
	if hasStep {
		parsed, err := strconv.Atoi(stepPart)
		if err != nil {
			return 0, fmt.Errorf("invalid step %q: %w", stepPart, err)
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", parsed)
		}
		step = parsed
	}

	var first, last int
	switch {
	case rangePart == "*":
		first, last = spec.min, spec.max

	case strings.ContainsRune(rangePart, '-'):
		startText, endText, _ := strings.Cut(rangePart, "-")
		var err error
		first, err = strconv.Atoi(startText)
		if err != nil {
			return 0, fmt.Errorf("invalid range start %q: %w", startText, err)
		}
		last, err = strconv.Atoi(endText)
		if err != nil {
			return 0, fmt.Errorf("invalid range end %q: %w", endText, err)
		}
		if first > last {
			return 0, fmt.Errorf("range start %d > end %d", first, last)
		}

	default:
		value, err := strconv.Atoi(rangePart)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q: %w", rangePart, err)
		}
		first, last = value, value
	}

	if first < spec.min || last > spec.max {
		return 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", spec.min, spec.max, first, last)
	}

	var result fieldSet
	for v := first; v <= last; v += step {
		result.add(v)
	}
	return result, nil
}
