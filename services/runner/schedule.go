package runner

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Schedule is a sorted set of HH:MM wall-clock trigger points.
type Schedule struct {
	minutes []int // minute-of-day, sorted ascending
}

// ParseSchedule validates and sorts HH:MM entries. Invalid entries are logged
// and skipped rather than failing the whole schedule.
func ParseSchedule(times []string) Schedule {
	var minutes []int
	seen := make(map[int]bool)
	for _, raw := range times {
		m, err := parseClock(raw)
		if err != nil {
			log.Printf("[runner] invalid schedule entry %q: %v", raw, err)
			continue
		}
		if !seen[m] {
			seen[m] = true
			minutes = append(minutes, m)
		}
	}
	sort.Ints(minutes)
	return Schedule{minutes: minutes}
}

func parseClock(raw string) (int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM")
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("hour out of range")
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("minute out of range")
	}
	return hours*60 + minutes, nil
}

// Empty reports whether any valid trigger points exist.
func (s Schedule) Empty() bool { return len(s.minutes) == 0 }

// Next returns the next trigger after now, rolling into tomorrow when every
// point today has passed.
func (s Schedule) Next(now time.Time) (time.Time, bool) {
	if s.Empty() {
		return time.Time{}, false
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, m := range s.minutes {
		candidate := midnight.Add(time.Duration(m) * time.Minute)
		if candidate.After(now) {
			return candidate, true
		}
	}
	return midnight.AddDate(0, 0, 1).Add(time.Duration(s.minutes[0]) * time.Minute), true
}

// Due reports whether a trigger point falls inside (last, now].
func (s Schedule) Due(last, now time.Time) bool {
	if s.Empty() || !now.After(last) {
		return false
	}
	next, ok := s.Next(last)
	return ok && !next.After(now)
}
