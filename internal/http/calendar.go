package http

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/emersion/go-ical"

	"registro/internal/core"
	"registro/internal/log"
	"registro/internal/schedule"
)

const (
	calendarProductID   = "-//registro//Recurring Transactions//EN"
	calendarContentType = "text/calendar; charset=utf-8"
)

// handleUpcomingCalendar exports upcoming due dates as one all-day event per
// definition and date.
func (s *Server) handleUpcomingCalendar(w http.ResponseWriter, r *http.Request) {
	userID, from, days, err := s.upcomingParams(r)
	if err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}
	upcoming, err := s.recurring.Upcoming(r.Context(), userID, from, days)
	if err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}
	s.writeCalendar(w, r, upcomingCalendar(upcoming, s.now()))
}

// handleRecurringCalendar exports each enabled definition as a single
// repeating event starting at its next due date.
func (s *Server) handleRecurringCalendar(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}
	defs, err := s.recurring.List(r.Context(), userID, true)
	if err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}

	cal, skipped := recurringCalendar(defs, s.today(), s.now())
	if skipped > 0 {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Definitions left out of calendar",
			log.FieldUserID, userID, "count", skipped)
	}
	s.writeCalendar(w, r, cal)
}

func (s *Server) writeCalendar(w http.ResponseWriter, r *http.Request, cal *ical.Calendar) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		s.writeError(w, r, log.OpExport, fmt.Errorf("encode calendar: %w", err))
		return
	}
	NewResponse().
		Header("Content-Disposition", `attachment; filename="registro.ics"`).
		Body(calendarContentType, buf.Bytes()).
		Write(w)
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, calendarProductID)
	return cal
}

func upcomingCalendar(days []schedule.UpcomingDay, now time.Time) *ical.Calendar {
	cal := newCalendar()
	for _, day := range days {
		for _, def := range day.Definitions {
			event := newEvent(def, day.Date, now)
			event.Props.SetText(ical.PropUID, fmt.Sprintf("%s-%s@registro", def.ID, day.Date))
			cal.Children = append(cal.Children, event.Component)
		}
	}
	return cal
}

// recurringCalendar returns the calendar and the number of definitions
// with no remaining due date or no RRULE form.
func recurringCalendar(defs []core.RecurringDefinition, today core.Date, now time.Time) (*ical.Calendar, int) {
	cal := newCalendar()
	skipped := 0
	for _, def := range defs {
		next, ok := schedule.NextDueDate(def, today.AddDays(-1))
		if !ok {
			skipped++
			continue
		}
		rule, err := schedule.RRule(def)
		if err != nil {
			skipped++
			continue
		}
		event := newEvent(def, next, now)
		event.Props.SetText(ical.PropUID, def.ID+"@registro")
		prop := ical.NewProp(ical.PropRecurrenceRule)
		prop.Value = rule
		event.Props.Set(prop)
		cal.Children = append(cal.Children, event.Component)
	}
	return cal, skipped
}

func newEvent(def core.RecurringDefinition, date core.Date, now time.Time) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropSummary, fmt.Sprintf("%s (%s %s)", def.Name, def.Kind, def.Amount))
	event.Props.SetText(ical.PropDescription, def.Category)
	event.Props.SetDate(ical.PropDateTimeStart, date.Time)
	event.Props.SetDate(ical.PropDateTimeEnd, date.AddDays(1).Time)
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	return event
}
