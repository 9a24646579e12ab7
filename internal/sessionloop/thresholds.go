package sessionloop

import (
	"fmt"

	"github.com/iondrive-co/chad/internal/eventlog"
)

// belowAnyThreshold seeds a rule's "previous reading" so the very first
// usage check can still fire if it already lands at or above the rule's
// threshold.
const belowAnyThreshold = -1

// checkThresholds evaluates every rule against reading, firing (emitting a
// milestone and recording a PendingAction) exactly on the prev<T<=curr
// edge. Rules are tracked by index so two rules on the same event with
// different thresholds fire independently.
func (l *Loop) checkThresholds(reading UsageReading) error {
	values := map[ThresholdEvent]float64{
		EventSessionUsage: reading.SessionPercent,
		EventWeeklyUsage:  reading.WeeklyPercent,
		EventContextUsage: reading.ContextPercent,
	}

	for i, rule := range l.cfg.Rules {
		curr, ok := values[rule.Event]
		if !ok {
			continue
		}

		l.mu.Lock()
		prev := l.lastThresholds[i]
		l.lastThresholds[i] = curr
		l.mu.Unlock()

		if !(curr >= rule.Threshold && prev < rule.Threshold) {
			continue
		}

		details := map[string]any{
			"event":     string(rule.Event),
			"threshold": rule.Threshold,
			"value":     curr,
			"action":    string(rule.Action),
		}
		if rule.TargetAccount != "" {
			details["target_account"] = rule.TargetAccount
		}
		if err := l.emitMilestone(eventlog.MilestoneUsageThreshold, fmt.Sprintf("%s crossed %.0f%%", rule.Event, rule.Threshold), details); err != nil {
			return err
		}

		if rule.Action == ActionSwitchProvider || rule.Action == ActionAwaitReset {
			l.setPendingAction(&PendingAction{
				Action:        rule.Action,
				TargetAccount: rule.TargetAccount,
				Reason:        fmt.Sprintf("%s threshold %.0f%% reached", rule.Event, rule.Threshold),
			})
			if sid, ok := l.CurrentStream(); ok {
				_ = l.cfg.Streams.Terminate(sid)
			}
		}
	}
	return nil
}
