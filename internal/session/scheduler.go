// Package session implements the market-hours scheduler (spec §4.A): a pure
// function of the IST wall clock and the holiday table that drives Ingest
// open/close commands. It deliberately holds no goroutines or blocking I/O of
// its own — the caller (the serve command's runScheduler loop) drives Tick on a
// 60-second cadence, grounded on the teacher's internal/scheduler ticker loop
// in internal/scheduler/scheduler.go, generalized into a pure state machine.
package session

import (
	"time"

	"github.com/sawpanic/indexpulse/internal/domain"
)

// Command is what the scheduler tells the Ingest Supervisor to do.
type Command string

const (
	CmdNoop  Command = "NOOP"
	CmdOpen  Command = "OPEN"
	CmdClose Command = "CLOSE"
)

// HolidayTable is the narrow seam the scheduler needs from internal/holidays.
type HolidayTable interface {
	IsHoliday(day time.Time) bool
}

// Scheduler computes the canonical session state on an IST clock. Fixed
// timings: pre-open 09:00, regular trading 09:15-15:30, auto-start 08:50,
// auto-stop 15:35.
type Scheduler struct {
	loc       *time.Location
	holidays  HolidayTable
	state     domain.SessionState
	lastTrans time.Time

	// forced pins the session to MARKET_OPEN, used when ENABLE_SCHEDULER=false
	// for local development (spec §6).
	forced bool

	ingestOpen bool
}

// New creates a Scheduler. If forced is true, Tick always reports MARKET_OPEN
// and issues CmdOpen once, matching ENABLE_SCHEDULER=false.
func New(loc *time.Location, holidays HolidayTable, forced bool) *Scheduler {
	return &Scheduler{loc: loc, holidays: holidays, state: domain.SessionClosed, forced: forced}
}

const (
	autoStartHour, autoStartMin = 8, 50
	preOpenHour, preOpenMin     = 9, 0
	openHour, openMin           = 9, 15
	closeHour, closeMin         = 15, 30
	autoStopHour, autoStopMin   = 15, 35
)

func atClock(now time.Time, h, m int) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
}

// desiredState is pure: a function of `now` (already in IST) and the holiday
// table only (spec §8 testable property).
func (s *Scheduler) desiredState(now time.Time) domain.SessionState {
	if s.forced {
		return domain.SessionMarketOpen
	}

	wd := now.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return domain.SessionClosed
	}
	if s.holidays != nil && s.holidays.IsHoliday(now) {
		return domain.SessionHoliday
	}

	preOpen := atClock(now, preOpenHour, preOpenMin)
	open := atClock(now, openHour, openMin)
	closeT := atClock(now, closeHour, closeMin)
	autoStop := atClock(now, autoStopHour, autoStopMin)

	switch {
	case now.Before(preOpen):
		return domain.SessionClosed
	case now.Before(open):
		return domain.SessionPreOpen
	case !now.After(closeT):
		return domain.SessionMarketOpen
	case now.Before(autoStop):
		return domain.SessionAfterHours
	default:
		return domain.SessionClosed
	}
}

// desiredIngestOpen reports whether Ingest should be live at `now`: from
// auto-start (08:50) through auto-stop (15:35).
func (s *Scheduler) desiredIngestOpen(now time.Time) bool {
	if s.forced {
		return true
	}
	wd := now.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if s.holidays != nil && s.holidays.IsHoliday(now) {
		return false
	}
	autoStart := atClock(now, autoStartHour, autoStartMin)
	autoStop := atClock(now, autoStopHour, autoStopMin)
	return !now.Before(autoStart) && now.Before(autoStop)
}

// Tick computes the current state for `wallClock` (converted to IST) and
// returns the state plus any command the Ingest Supervisor must obey. Tick
// carries no side effects beyond updating the scheduler's own last-transition
// bookkeeping — it issues commands, it never calls Ingest directly.
func (s *Scheduler) Tick(wallClock time.Time) (domain.SessionState, Command) {
	now := wallClock.In(s.loc)

	newState := s.desiredState(now)
	wantOpen := s.desiredIngestOpen(now)

	cmd := CmdNoop
	if wantOpen != s.ingestOpen {
		if wantOpen {
			cmd = CmdOpen
		} else {
			cmd = CmdClose
		}
		s.ingestOpen = wantOpen
	}

	if newState != s.state {
		s.state = newState
		s.lastTrans = now
	}

	return s.state, cmd
}

// NextTransition returns the next wall-clock instant (in the scheduler's
// location) at which the session state would change, given `now`. It is pure.
func (s *Scheduler) NextTransition(now time.Time) time.Time {
	now = now.In(s.loc)
	candidates := []time.Time{
		atClock(now, preOpenHour, preOpenMin),
		atClock(now, openHour, openMin),
		atClock(now, closeHour, closeMin).Add(time.Second),
		atClock(now, autoStopHour, autoStopMin),
	}
	var next time.Time
	for _, c := range candidates {
		if c.After(now) && (next.IsZero() || c.Before(next)) {
			next = c
		}
	}
	if next.IsZero() {
		// Past every boundary today: next transition is tomorrow's pre-open.
		next = atClock(now.AddDate(0, 0, 1), preOpenHour, preOpenMin)
	}
	return next
}

// State returns the last computed session state without advancing the clock.
func (s *Scheduler) State() domain.SessionState {
	return s.state
}
