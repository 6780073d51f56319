package registry

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// RuleKind tags the recurrence variants. New kinds are additive: each kind
// has exactly one matcher in Rule.Due.
type RuleKind int

const (
	// RuleHourly is due at the top of every hour.
	RuleHourly RuleKind = iota
	// RuleDaily is due once per day at a fixed hour (and minute).
	RuleDaily
	// RuleEveryN is due every N minutes, anchored to the top of the hour.
	RuleEveryN
	// RuleCron is due whenever a 5-field cron expression matches the
	// evaluation minute.
	RuleCron
)

// cronParser accepts standard 5-field expressions (min hour dom mon dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Rule is one task's recurrence rule. The zero value is not valid; build
// rules via ParseRule or the constructors.
type Rule struct {
	Kind   RuleKind
	Hour   int // RuleDaily
	Minute int // RuleDaily
	EveryN int // RuleEveryN, in minutes

	spec  string // RuleCron source text
	sched cron.Schedule
}

func Hourly() Rule               { return Rule{Kind: RuleHourly} }
func DailyAt(hour, min int) Rule { return Rule{Kind: RuleDaily, Hour: hour, Minute: min} }
func EveryNMinutes(n int) Rule   { return Rule{Kind: RuleEveryN, EveryN: n} }

// ParseRule parses the textual schedule forms used in configuration:
//
//   - "hourly"
//   - "daily:HH" or "daily:HH:MM"
//   - "every:Nm" (N minutes, 1..59)
//   - "cron:SPEC" (5-field cron)
//
// A bare 5-field expression is also accepted as cron for convenience.
func ParseRule(raw string) (Rule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Rule{}, fmt.Errorf("empty schedule")
	}

	switch {
	case strings.EqualFold(s, "hourly"):
		return Hourly(), nil

	case strings.HasPrefix(strings.ToLower(s), "daily:"):
		h, m, err := parseHHMM(s[len("daily:"):])
		if err != nil {
			return Rule{}, fmt.Errorf("schedule %q: %w", raw, err)
		}
		return DailyAt(h, m), nil

	case strings.HasPrefix(strings.ToLower(s), "every:"):
		d, err := time.ParseDuration(strings.TrimSpace(s[len("every:"):]))
		if err != nil {
			return Rule{}, fmt.Errorf("schedule %q: %w", raw, err)
		}
		if d < time.Minute || d >= time.Hour || d%time.Minute != 0 {
			return Rule{}, fmt.Errorf("schedule %q: interval must be whole minutes in [1m, 59m]", raw)
		}
		return EveryNMinutes(int(d / time.Minute)), nil

	case strings.HasPrefix(strings.ToLower(s), "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))

	case len(strings.Fields(s)) == 5:
		return parseCron(s)
	}

	return Rule{}, fmt.Errorf("unrecognized schedule %q", raw)
}

func parseCron(spec string) (Rule, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return Rule{}, fmt.Errorf("cron %q: %w", spec, err)
	}
	return Rule{Kind: RuleCron, spec: spec, sched: sched}, nil
}

// Due reports whether the rule matches the evaluation time. Matching is
// minute-granular: the external trigger is expected to fire at most once
// per minute, and duplicate due results within one period are accepted
// (at-least-once, idempotent downstream).
func (r Rule) Due(now time.Time) bool {
	switch r.Kind {
	case RuleHourly:
		return now.Minute() == 0
	case RuleDaily:
		return now.Hour() == r.Hour && now.Minute() == r.Minute
	case RuleEveryN:
		if r.EveryN <= 0 {
			return false
		}
		return now.Minute()%r.EveryN == 0
	case RuleCron:
		if r.sched == nil {
			return false
		}
		min := now.Truncate(time.Minute)
		return r.sched.Next(min.Add(-time.Second)).Equal(min)
	default:
		return false
	}
}

func (r Rule) String() string {
	switch r.Kind {
	case RuleHourly:
		return "hourly"
	case RuleDaily:
		return fmt.Sprintf("daily:%02d:%02d", r.Hour, r.Minute)
	case RuleEveryN:
		return fmt.Sprintf("every:%dm", r.EveryN)
	case RuleCron:
		return "cron:" + r.spec
	default:
		return "invalid"
	}
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 1 && len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH or HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m := 0
	if len(parts) == 2 {
		m, err = strconv.Atoi(parts[1])
		if err != nil || m < 0 || m > 59 {
			return 0, 0, fmt.Errorf("invalid minute in %q", s)
		}
	}
	return h, m, nil
}
