package registration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-registration/internal/models"
)

func entry(id string, status models.WaitlistStatus, joined time.Time) models.WaitlistEntry {
	return models.WaitlistEntry{ID: id, Status: status, JoinedAt: joined}
}

func TestSortWaitingBreaksTiesByID(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []models.WaitlistEntry{
		entry("c", models.WaitlistWaiting, t0.Add(time.Second)),
		entry("b", models.WaitlistWaiting, t0),
		entry("a", models.WaitlistWaiting, t0),
	}
	out := SortWaiting(in)
	assert.Equal(t, []string{"a", "b", "c"}, []string{out[0].ID, out[1].ID, out[2].ID})
	assert.Equal(t, "c", in[0].ID, "input is not mutated")
}

func TestRankOf(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []models.WaitlistEntry{
		entry("late", models.WaitlistWaiting, t0.Add(2*time.Minute)),
		entry("gone", models.WaitlistCancelled, t0),
		entry("early", models.WaitlistWaiting, t0.Add(time.Minute)),
	}
	assert.Equal(t, 1, RankOf(in, "early"))
	assert.Equal(t, 2, RankOf(in, "late"))
	assert.Equal(t, 0, RankOf(in, "gone"))
	assert.Equal(t, 0, RankOf(in, "missing"))
}

func TestSortForOrganizer(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []models.WaitlistEntry{
		entry("promoted", models.WaitlistPromoted, t0),
		entry("w2", models.WaitlistWaiting, t0.Add(2*time.Minute)),
		entry("offered", models.WaitlistOffered, t0.Add(time.Minute)),
		entry("w1", models.WaitlistWaiting, t0.Add(time.Minute)),
	}
	out := SortForOrganizer(in)
	ids := make([]string, len(out))
	for i, e := range out {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"w1", "w2", "promoted", "offered"}, ids)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "go-meetup-2026", slugify("  Go Meetup: 2026! "))
}
