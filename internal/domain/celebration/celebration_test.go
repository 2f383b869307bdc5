package celebration

import (
	"testing"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(ms []Milestone) []int {
	out := make([]int, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Value)
	}
	return out
}

func TestDetector_SingleCrossing(t *testing.T) {
	ms := NewDetector().Check(102, 92)

	require.Len(t, ms, 1)
	assert.Equal(t, 100, ms[0].Value)
	assert.True(t, ms[0].CertificateEligible)
	assert.Equal(t, AnimationFireworks, ms[0].AnimationTier)
}

func TestDetector_MultipleCrossings(t *testing.T) {
	assert.Equal(t, []int{25, 50}, values(NewDetector().Check(70, 10)))
	assert.Equal(t, []int{10, 25, 50}, values(NewDetector().Check(60, 0)))
}

func TestDetector_BatchingIndependence(t *testing.T) {
	d := NewDetector()

	oneBig := values(d.Check(80, 20))

	var twoSmall []int
	twoSmall = append(twoSmall, values(d.Check(50, 20))...)
	twoSmall = append(twoSmall, values(d.Check(80, 50))...)

	assert.Equal(t, []int{25, 50}, oneBig)
	assert.Equal(t, oneBig, twoSmall)
}

func TestDetector_ExactlyLadderOverSequence(t *testing.T) {
	d := NewDetector()
	total := 0
	var got []int
	for _, delta := range []int{3, 7, 1, 30, 0, 59, 200, 1, 700} {
		prev := total
		total += delta
		got = append(got, values(d.Check(total, prev))...)
	}

	var want []int
	for _, th := range Thresholds {
		if th <= total {
			want = append(want, th)
		}
	}
	assert.Equal(t, want, got)
}

func TestDetector_NoCrossing(t *testing.T) {
	d := NewDetector()
	assert.Empty(t, d.Check(10, 10))
	assert.Empty(t, d.Check(9, 0))
	assert.Empty(t, d.Check(5, 12))
	assert.Empty(t, d.Check(2000, 1000))
}

func TestMilestoneFlags(t *testing.T) {
	assert.False(t, milestoneFor(25).CertificateEligible)
	assert.True(t, milestoneFor(50).CertificateEligible)
	assert.Equal(t, AnimationCelebrate, milestoneFor(50).AnimationTier)
	assert.Equal(t, AnimationFireworks, milestoneFor(100).AnimationTier)
}

func TestNew_Message(t *testing.T) {
	c := New("c1", shared.Scope{TenantID: "t", SchoolID: "s", ClassroomID: "cl"}, "st", "Ava", milestoneFor(50), time.Now())

	assert.Equal(t, "50 Explorer Points!", c.Title)
	assert.Contains(t, c.Message, "Ava has reached 50")
	assert.Contains(t, c.Message, "certificate")
	assert.Equal(t, MilestonePointsThreshold, c.Type)
	assert.Equal(t, "cl", c.Scope().ClassroomID)
}
