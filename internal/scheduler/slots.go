package scheduler

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"
)

// GenerateTimeSlots spreads count send times over the anchor hours of a
// stage. Each anchor takes up to ceil(count/len(anchors)) messages, in
// anchor order, at a random minute inside the anchor's hour. A slot that is
// not after now moves to the same time tomorrow. The result is sorted.
// Slots are built in now's location.
func GenerateTimeSlots(anchors []string, count int, now time.Time, rng *rand.Rand) ([]time.Time, error) {
	if count <= 0 || len(anchors) == 0 {
		return nil, nil
	}
	hours := make([]int, len(anchors))
	for i, a := range anchors {
		h, err := anchorHour(a)
		if err != nil {
			return nil, err
		}
		hours[i] = h
	}

	perAnchor := (count + len(hours) - 1) / len(hours)
	slots := make([]time.Time, 0, count)
	for _, h := range hours {
		for j := 0; j < perAnchor && len(slots) < count; j++ {
			t := time.Date(now.Year(), now.Month(), now.Day(), h, rng.Intn(60), 0, 0, now.Location())
			if !t.After(now) {
				t = t.AddDate(0, 0, 1)
			}
			slots = append(slots, t)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots, nil
}

// anchorHour parses "HH:MM" and returns the hour.
func anchorHour(anchor string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(anchor), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time anchor %q", anchor)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time anchor %q", anchor)
	}
	if m, err := strconv.Atoi(parts[1]); err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time anchor %q", anchor)
	}
	return h, nil
}
