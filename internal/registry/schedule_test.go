package registry

import (
	"testing"
	"time"
)

func TestParseRuleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		raw    string
		kind   RuleKind
		hour   int
		minute int
		everyN int
	}{
		{name: "hourly", raw: "hourly", kind: RuleHourly},
		{name: "hourly mixed case", raw: "Hourly", kind: RuleHourly},
		{name: "daily hour only", raw: "daily:02", kind: RuleDaily, hour: 2},
		{name: "daily hh:mm", raw: "daily:14:30", kind: RuleDaily, hour: 14, minute: 30},
		{name: "every 15m", raw: "every:15m", kind: RuleEveryN, everyN: 15},
		{name: "prefixed cron", raw: "cron:*/10 * * * *", kind: RuleCron},
		{name: "bare cron", raw: "0 3 * * 1", kind: RuleCron},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRule(tt.raw)
			if err != nil {
				t.Fatalf("ParseRule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if tt.kind == RuleDaily && (got.Hour != tt.hour || got.Minute != tt.minute) {
				t.Fatalf("DailyAt = %02d:%02d, want %02d:%02d", got.Hour, got.Minute, tt.hour, tt.minute)
			}
			if tt.kind == RuleEveryN && got.EveryN != tt.everyN {
				t.Fatalf("EveryN = %d, want %d", got.EveryN, tt.everyN)
			}
		})
	}
}

func TestParseRuleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"", "sometimes", "daily:25", "daily:12:61", "every:90m", "every:30s",
		"cron:not a cron", "cron:* * *",
	} {
		if _, err := ParseRule(raw); err == nil {
			t.Fatalf("ParseRule(%q): expected error", raw)
		}
	}
}

func TestRuleDue(t *testing.T) {
	t.Parallel()
	at := func(hour, min int) time.Time {
		return time.Date(2026, 3, 14, hour, min, 0, 0, time.UTC)
	}

	tests := []struct {
		name string
		rule Rule
		now  time.Time
		want bool
	}{
		{name: "hourly on the hour", rule: Hourly(), now: at(3, 0), want: true},
		{name: "hourly mid hour", rule: Hourly(), now: at(3, 30), want: false},
		{name: "daily at match", rule: DailyAt(2, 0), now: at(2, 0), want: true},
		{name: "daily wrong hour", rule: DailyAt(2, 0), now: at(3, 0), want: false},
		{name: "daily wrong minute", rule: DailyAt(2, 0), now: at(2, 5), want: false},
		{name: "every 15 at :30", rule: EveryNMinutes(15), now: at(9, 30), want: true},
		{name: "every 15 at :07", rule: EveryNMinutes(15), now: at(9, 7), want: false},
		{name: "every 15 at :00", rule: EveryNMinutes(15), now: at(9, 0), want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Due(tt.now); got != tt.want {
				t.Fatalf("Due(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestCronRuleDue(t *testing.T) {
	t.Parallel()
	rule, err := ParseRule("cron:*/15 * * * *")
	if err != nil {
		t.Fatalf("ParseRule: %v", err)
	}
	at := func(min int) time.Time {
		return time.Date(2026, 3, 14, 9, min, 0, 0, time.UTC)
	}
	for _, min := range []int{0, 15, 30, 45} {
		if !rule.Due(at(min)) {
			t.Fatalf("cron */15 not due at :%02d", min)
		}
	}
	if rule.Due(at(7)) {
		t.Fatal("cron */15 due at :07")
	}

	// Seconds within the minute don't change the verdict.
	if !rule.Due(time.Date(2026, 3, 14, 9, 15, 42, 0, time.UTC)) {
		t.Fatal("cron */15 not due at :15:42")
	}
}

func TestRuleString(t *testing.T) {
	t.Parallel()
	if s := DailyAt(2, 0).String(); s != "daily:02:00" {
		t.Fatalf("String = %q", s)
	}
	if s := EveryNMinutes(5).String(); s != "every:5m" {
		t.Fatalf("String = %q", s)
	}
}
