package certificate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/cheti/core/course"
	"github.com/trezcool/cheti/core/user"
)

func testSnapshot() Snapshot {
	cert := Certificate{
		Holder:     &user.User{Name: "Jane Doe", Username: "jane", Email: "jane@test.local"},
		Credential: &course.Course{ID: "c-1", Title: "Forklift Safety"},
		IssuedDate: NewDate(2020, 5, 15),
		ExpiryDate: NewDate(2021, 5, 15),
	}
	return cert.Snapshot("https://training.ryzolve.com")
}

func TestRenderHolderEmail(t *testing.T) {
	snap := testSnapshot()

	tests := []struct {
		milestone   Milestone
		wantSubject string
		wantInBody  []string
	}{
		{
			milestone:   MilestoneThirtyDay,
			wantSubject: "30-day reminder: Renew your Forklift Safety certificate",
			wantInBody:  []string{"2021-05-15", "Renew now (recommended)"},
		},
		{
			milestone:   MilestoneSevenDay,
			wantSubject: "Urgent: Your Forklift Safety certificate expires in 7 days",
			wantInBody:  []string{"7 days away", "Act now"},
		},
		{
			milestone:   MilestoneOneDay,
			wantSubject: "Final notice: Your Forklift Safety certificate expires tomorrow",
			wantInBody:  []string{"expires <strong>tomorrow</strong>", "last chance"},
		},
		{
			milestone:   MilestoneExpired,
			wantSubject: "Your Forklift Safety certificate has expired",
			wantInBody:  []string{"expired on <strong>2021-05-15</strong>", "Re-enroll Now"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.milestone.String(), func(t *testing.T) {
			email, err := RenderHolderEmail(tt.milestone, snap)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubject, email.Subject)
			assert.Contains(t, email.HTML, "Hi Jane Doe,")
			assert.Contains(t, email.HTML, "https://training.ryzolve.com/renewal?course=c-1")
			for _, want := range tt.wantInBody {
				assert.Contains(t, email.HTML, want)
			}

			// identical input renders identical output
			again, err := RenderHolderEmail(tt.milestone, snap)
			require.NoError(t, err)
			assert.Equal(t, email, again)
		})
	}
}

func TestRenderAdminEmail(t *testing.T) {
	snap := testSnapshot()

	email, err := RenderAdminEmail(MilestoneExpired, snap)
	require.NoError(t, err)
	assert.Equal(t, "Certificate Has Expired - Access Revoked: jane - Forklift Safety", email.Subject)
	assert.Contains(t, email.HTML, "jane@test.local")
	assert.Contains(t, email.HTML, "access has been revoked")

	email, err = RenderAdminEmail(MilestoneSevenDay, snap)
	require.NoError(t, err)
	assert.Equal(t, "Certificate Expiring in 7 Days: jane - Forklift Safety", email.Subject)
	assert.NotContains(t, email.HTML, "revoked")
}

func TestRenderUnknownMilestone(t *testing.T) {
	snap := testSnapshot()

	for _, m := range []Milestone{0, Milestone(99)} {
		_, err := RenderHolderEmail(m, snap)
		assert.Equal(t, ErrUnsupportedMilestone, err)

		_, err = RenderAdminEmail(m, snap)
		assert.Equal(t, ErrUnsupportedMilestone, err)
	}
}

func TestSnapshotFallbacks(t *testing.T) {
	cert := Certificate{
		IssuedDate: NewDate(2020, 5, 15),
		ExpiryDate: NewDate(2021, 5, 15),
	}
	snap := cert.Snapshot("https://training.ryzolve.com")
	assert.Equal(t, "Student", snap.HolderName)
	assert.Equal(t, "your course", snap.CourseTitle)
	assert.Empty(t, snap.RenewalURL)

	email, err := RenderHolderEmail(MilestoneThirtyDay, snap)
	require.NoError(t, err)
	assert.Contains(t, email.HTML, "Hi Student,")
	assert.NotContains(t, email.HTML, "href")
}
