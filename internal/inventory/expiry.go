package inventory

import (
	"log/slog"
	"sort"
	"time"

	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/store"
)

type ExpiryStatus string

const (
	ExpiryExpired  ExpiryStatus = "expired"
	ExpiryToday    ExpiryStatus = "today"
	ExpiryTomorrow ExpiryStatus = "tomorrow"
	ExpiryCritical ExpiryStatus = "critical"
	ExpiryWarning  ExpiryStatus = "warning"
)

// expiryHorizon is how many days ahead an item counts as expiring.
const expiryHorizon = 7

type ExpiringItem struct {
	model.Item
	DaysLeft int          `json:"days_left"`
	Status   ExpiryStatus `json:"status"`
}

// ClassifyExpiry returns the status of an item expiring daysLeft days after
// today. ok is false past the horizon.
func ClassifyExpiry(daysLeft int) (status ExpiryStatus, ok bool) {
	switch {
	case daysLeft < 0:
		return ExpiryExpired, true
	case daysLeft == 0:
		return ExpiryToday, true
	case daysLeft == 1:
		return ExpiryTomorrow, true
	case daysLeft <= 3:
		return ExpiryCritical, true
	case daysLeft <= expiryHorizon:
		return ExpiryWarning, true
	default:
		return "", false
	}
}

// Expiring picks the items that expire within the horizon of today, soonest
// first. Items without a date, or with one that does not parse, are skipped.
func Expiring(items []model.Item, today time.Time, logger *slog.Logger) []ExpiringItem {
	today = startOfDay(today)

	var out []ExpiringItem
	for _, it := range items {
		if it.ExpiryDate == "" {
			continue
		}
		expiry, err := time.ParseInLocation(store.DateFormat, it.ExpiryDate, today.Location())
		if err != nil {
			logger.Warn("skipping unparseable expiry date", "item_id", it.ID, "expiry_date", it.ExpiryDate)
			continue
		}
		days := daysBetween(today, expiry)
		status, ok := ClassifyExpiry(days)
		if !ok {
			continue
		}
		out = append(out, ExpiringItem{Item: it, DaysLeft: days, Status: status})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DaysLeft < out[j].DaysLeft
	})
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days, so a DST shift does not move the result.
func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
