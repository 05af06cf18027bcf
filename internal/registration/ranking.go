package registration

import (
	"sort"

	"ms-registration/internal/models"
)

// SortWaiting orders entries front of queue first: earliest joinedAt, then id.
// Ids are time-ordered, so the second key is insertion order.
func SortWaiting(entries []models.WaitlistEntry) []models.WaitlistEntry {
	out := make([]models.WaitlistEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return before(&out[i], &out[j])
	})
	return out
}

// RankOf returns the 1-based queue position of entryID among the waiting
// entries, or 0 when the entry is not waiting.
func RankOf(entries []models.WaitlistEntry, entryID string) int {
	rank := 0
	for _, e := range SortWaiting(entries) {
		if e.Status != models.WaitlistWaiting {
			continue
		}
		rank++
		if e.ID == entryID {
			return rank
		}
	}
	return 0
}

// SortForOrganizer puts waiting entries first in queue order, then every other
// entry by joinedAt.
func SortForOrganizer(entries []models.WaitlistEntry) []models.WaitlistEntry {
	out := make([]models.WaitlistEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		wi := out[i].Status == models.WaitlistWaiting
		wj := out[j].Status == models.WaitlistWaiting
		if wi != wj {
			return wi
		}
		return before(&out[i], &out[j])
	})
	return out
}

func before(a, b *models.WaitlistEntry) bool {
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.ID < b.ID
}
