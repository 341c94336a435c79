package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	subredditRe = regexp.MustCompile(`^\S+`)
	limitRe     = regexp.MustCompile(`\blimit=(\S*)`)
	timeRe      = regexp.MustCompile(`\btime=(\w+)\b`)
	filterRe    = regexp.MustCompile(`\bfilter=(\w+)\b`)
)

// ParseSubscriptionArgs parses "<subreddit> [limit=N] [time=T] [filter=K]".
// The subreddit may be given with an r/ or /r/ prefix.
func ParseSubscriptionArgs(input string) (SubscriptionArgs, error) {
	input = strings.TrimSpace(input)

	loc := subredditRe.FindStringIndex(input)
	if loc == nil {
		return SubscriptionArgs{}, fmt.Errorf("%w: no subreddit given", ErrInvalidArgs)
	}

	args := SubscriptionArgs{
		Subreddit: NormalizeSubreddit(input[loc[0]:loc[1]]),
	}
	rest := input[loc[1]:]

	if m := limitRe.FindStringSubmatch(rest); m != nil {
		limit, err := strconv.Atoi(m[1])
		if err != nil || limit < 1 {
			return SubscriptionArgs{}, fmt.Errorf("%w: bad limit %q", ErrInvalidArgs, m[1])
		}
		args.Limit = &limit
	}

	if m := timeRe.FindStringSubmatch(rest); m != nil {
		period, err := ParseTimePeriod(m[1])
		if err != nil {
			return SubscriptionArgs{}, err
		}
		args.Time = &period
	}

	if m := filterRe.FindStringSubmatch(rest); m != nil {
		kind, err := ParseFilter(m[1])
		if err != nil {
			return SubscriptionArgs{}, err
		}
		args.Filter = &kind
	}

	return args, nil
}

// NormalizeSubreddit strips the r/ prefixes users tend to type.
func NormalizeSubreddit(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/")
	s = strings.TrimPrefix(s, "r/")

	return s
}

// FormatArgs renders the overrides as "time=week, limit=1, filter=video".
func FormatArgs(limit *int, period *TimePeriod, filter *MediaKind) string {
	var parts []string
	if period != nil {
		parts = append(parts, "time="+period.String())
	}
	if limit != nil {
		parts = append(parts, "limit="+strconv.Itoa(*limit))
	}
	if filter != nil {
		parts = append(parts, "filter="+filter.String())
	}

	return strings.Join(parts, ", ")
}
