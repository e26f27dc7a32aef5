package compose

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Slots are plain cron specs evaluated in the location of the instant passed
// to Next.
var (
	eveningSlot = mustSlot("0 20 * * *")
	morningSlot = mustSlot("0 8 * * *")
	mailingSlot = mustSlot("0 6 * * 3")
)

func mustSlot(spec string) cron.Schedule {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		panic(err)
	}
	return s
}

// NextPostSlot returns today at 20:00 when now is before 20:00, otherwise
// tomorrow at 08:00, both in now's location.
func NextPostSlot(now time.Time) time.Time {
	evening := eveningSlot.Next(now)
	if sameDay(evening, now) {
		return evening
	}
	return morningSlot.Next(now)
}

// NextMailingSlot returns the next Wednesday 06:00 in loc that is strictly
// after now, expressed in UTC.
func NextMailingSlot(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return mailingSlot.Next(now.In(loc)).UTC()
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
