package schedule

import (
	"slices"

	"registro/internal/core"
)

// UpcomingDay groups the definitions due on one date.
type UpcomingDay struct {
	Date        core.Date
	Definitions []core.RecurringDefinition
}

// Upcoming lists the due dates of the enabled definitions in
// [from, from+days], grouped by date and sorted ascending. Within a day the
// definitions keep their input order.
func Upcoming(defs []core.RecurringDefinition, from core.Date, days int) []UpcomingDay {
	if days < 0 {
		return nil
	}
	to := from.AddDays(days)

	byDate := make(map[core.Date][]core.RecurringDefinition)
	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		for d := range DueDatesInRange(def, from, to) {
			byDate[d] = append(byDate[d], def)
		}
	}

	out := make([]UpcomingDay, 0, len(byDate))
	for d, ds := range byDate {
		out = append(out, UpcomingDay{Date: d, Definitions: ds})
	}
	slices.SortFunc(out, func(a, b UpcomingDay) int {
		return a.Date.Compare(b.Date.Time)
	})
	return out
}
