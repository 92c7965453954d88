package config

import (
	"encoding/json"
	"testing"
	"time"

	"chime/pkg/trigger"
)

func TestDurationCoercion(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want time.Duration
		err  bool
	}{
		{name: "seconds int", raw: `120`, want: 2 * time.Minute},
		{name: "seconds float", raw: `1.5`, want: 1500 * time.Millisecond},
		{name: "duration string", raw: `"2h30m"`, want: 2*time.Hour + 30*time.Minute},
		{name: "negative seconds", raw: `-5`, err: true},
		{name: "negative duration", raw: `"-1m"`, err: true},
		{name: "garbage", raw: `"soon"`, err: true},
		{name: "wrong type", raw: `true`, err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.raw), &d)
			if tt.err {
				if err == nil {
					t.Fatalf("Unmarshal(%s): expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.raw, err)
			}
			if d.Std() != tt.want {
				t.Fatalf("Unmarshal(%s) = %v, want %v", tt.raw, d.Std(), tt.want)
			}
		})
	}
}

const sampleYAML = `
logging:
  level: debug
scheduler:
  workers: 2
  default_timeout: 30s
storage:
  driver: sqlite
  path: /tmp/chime-test.db
jobs:
  - name: nightly-sync
    command: "/usr/local/bin/sync.sh"
    timeout: 10m
    trigger:
      kind: and
      threshold: 120
      triggers:
        - kind: cron
          spec: "0 3 * * *"
        - kind: interval
          every: 90m
  - name: pings
    command: "ping -c1 example.org"
    trigger:
      kind: interval
      every: 15s
`

func TestParseYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Parse("chime.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Scheduler.Workers != 2 {
		t.Fatalf("workers = %d, want 2", cfg.Scheduler.Workers)
	}
	if cfg.Scheduler.DefaultTimeout.Std() != 30*time.Second {
		t.Fatalf("default timeout = %v", cfg.Scheduler.DefaultTimeout.Std())
	}
	if len(cfg.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(cfg.Jobs))
	}
	spec := cfg.Jobs[0].Trigger
	if spec.Kind != trigger.KindAnd || len(spec.Triggers) != 2 {
		t.Fatalf("unexpected trigger spec: %+v", spec)
	}
	if spec.Threshold == nil || spec.Threshold.Std() != 2*time.Minute {
		t.Fatalf("threshold = %v, want 2m", spec.Threshold)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	if _, err := Parse("chime.yaml", []byte("bogus_key: 1\n")); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing command", yaml: `
jobs:
  - name: x
    trigger: {kind: interval, every: 5s}
`},
		{name: "missing trigger kind", yaml: `
jobs:
  - name: x
    command: "true"
    trigger: {}
`},
		{name: "unknown trigger kind", yaml: `
jobs:
  - name: x
    command: "true"
    trigger: {kind: lunar}
`},
		{name: "empty combinator", yaml: `
jobs:
  - name: x
    command: "true"
    trigger: {kind: or}
`},
		{name: "duplicate job names", yaml: `
jobs:
  - name: x
    command: "true"
    trigger: {kind: interval, every: 5s}
  - name: x
    command: "true"
    trigger: {kind: interval, every: 5s}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse("chime.yaml", []byte(tt.yaml)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestTriggerSpecBuild(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	at := time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
	threshold := Duration(time.Minute)
	spec := TriggerSpec{
		Kind: trigger.KindOr,
		Triggers: []TriggerSpec{
			{Kind: trigger.KindDate, At: &at},
			{
				Kind:      trigger.KindAnd,
				Threshold: &threshold,
				Triggers: []TriggerSpec{
					{Kind: trigger.KindInterval, Every: Duration(time.Hour)},
					{Kind: trigger.KindCron, Spec: "0 * * * *", Location: "UTC"},
				},
			},
		},
	}
	tr, err := spec.Build(now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := tr.(*trigger.OrTrigger); !ok {
		t.Fatalf("Build returned %T, want *trigger.OrTrigger", tr)
	}

	// The whole tree must be serializable.
	if _, err := trigger.Marshal(tr); err != nil {
		t.Fatalf("Marshal built tree: %v", err)
	}
}

func TestTriggerSpecBuildErrors(t *testing.T) {
	t.Parallel()
	now := time.Now()
	if _, err := (TriggerSpec{Kind: trigger.KindCron, Spec: "nope"}).Build(now); err == nil {
		t.Fatal("expected cron parse error")
	}
	if _, err := (TriggerSpec{Kind: trigger.KindCron, Spec: "* * * * *", Location: "Mars/Olympus"}).Build(now); err == nil {
		t.Fatal("expected location error")
	}
	if _, err := (TriggerSpec{Kind: trigger.KindInterval}).Build(now); err == nil {
		t.Fatal("expected interval error")
	}
}
