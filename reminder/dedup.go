package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DedupMode selects how a scan decides that a deadline was already notified.
type DedupMode string

const (
	// DedupScoped keys notifications by user, task and urgency tier.
	DedupScoped DedupMode = "scoped"
	// DedupLegacy matches on message text across every user: the task title
	// followed by the reminder phrase. Two tasks sharing a title suppress
	// each other.
	DedupLegacy DedupMode = "legacy"
)

func ParseDedupMode(s string) (DedupMode, error) {
	switch DedupMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DedupScoped:
		return DedupScoped, nil
	case DedupLegacy:
		return DedupLegacy, nil
	}
	return "", fmt.Errorf("unknown dedup mode %q", s)
}

const dayBucketLayout = "2006-01-02"

// dedupKey pins a scope to the calendar day of the scan. The store keeps
// these unique, which stops concurrent runs from inserting the same event.
func dedupKey(scope string, now time.Time) string {
	return scope + ":" + now.UTC().Format(dayBucketLayout)
}

// alreadyNotified runs before every insert.
func (e *Engine) alreadyNotified(ctx context.Context, title string, n notice, now time.Time) (bool, error) {
	since := now.Add(-e.lookback)
	if e.mode == DedupLegacy {
		return e.notifications.ExistsMatchingSince(ctx, title, n.phrase, since)
	}
	return e.notifications.ExistsScopeSince(ctx, n.scope, since)
}
