package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidSlot = errors.New("invalid slot")

// Slot is a time-of-day label on the booking grid, such as 09:30.
type Slot struct {
	Hour   int
	Minute int
}

// ParseSlot accepts exactly HH:MM on a 24-hour clock.
func ParseSlot(label string) (Slot, error) {
	if len(label) != 5 || label[2] != ':' {
		return Slot{}, ErrInvalidSlot
	}
	t, err := time.Parse("15:04", label)
	if err != nil {
		return Slot{}, ErrInvalidSlot
	}
	return Slot{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (s Slot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

func (s Slot) offset() time.Duration {
	return time.Duration(s.Hour)*time.Hour + time.Duration(s.Minute)*time.Minute
}

// Policy describes the bookable grid: slots start every Step from Open
// until Close (exclusive), Monday to Friday, in Location.
type Policy struct {
	Open     Slot
	Close    Slot
	Step     time.Duration
	Location *time.Location
}

func DefaultPolicy() Policy {
	return Policy{
		Open:     Slot{Hour: 9},
		Close:    Slot{Hour: 17},
		Step:     30 * time.Minute,
		Location: time.Local,
	}
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// BusinessSlots returns every slot of the grid in ascending order.
func (p Policy) BusinessSlots() []Slot {
	if p.Step <= 0 {
		return nil
	}
	var out []Slot
	for off := p.Open.offset(); off < p.Close.offset(); off += p.Step {
		out = append(out, Slot{Hour: int(off / time.Hour), Minute: int(off % time.Hour / time.Minute)})
	}
	return out
}

func (p Policy) IsBusinessSlot(s Slot) bool {
	for _, b := range p.BusinessSlots() {
		if b == s {
			return true
		}
	}
	return false
}

func (p Policy) IsBookableWeekday(d Date) bool {
	wd := d.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// Instant combines d and s in the policy location.
func (p Policy) Instant(d Date, s Slot) time.Time {
	return time.Date(d.Year, d.Month, d.Day, s.Hour, s.Minute, 0, 0, p.location())
}

// IsPast reports whether the slot starts strictly before now.
func (p Policy) IsPast(d Date, s Slot, now time.Time) bool {
	return p.Instant(d, s).Before(now)
}

// Today is the calendar day of now in the policy location.
func (p Policy) Today(now time.Time) Date {
	return DateOf(now.In(p.location()))
}

// AvailableSlots lists the grid slots on d that are neither booked nor
// already started relative to now. Weekends and days before today have none.
func (p Policy) AvailableSlots(d Date, booked map[Slot]struct{}, now time.Time) []Slot {
	if !p.IsBookableWeekday(d) {
		return []Slot{}
	}
	today := p.Today(now)
	if d.Before(today) {
		return []Slot{}
	}
	isToday := d == today

	out := []Slot{}
	for _, s := range p.BusinessSlots() {
		if _, ok := booked[s]; ok {
			continue
		}
		if isToday && p.IsPast(d, s, now) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func SlotLabels(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	return out
}
