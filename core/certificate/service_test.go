package certificate_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/core/course"
	"github.com/trezcool/cheti/core/user"
	emailsvc "github.com/trezcool/cheti/services/email"
	inmemdb "github.com/trezcool/cheti/storage/database/inmem"
	testutil "github.com/trezcool/cheti/tests"
)

var now = time.Date(2021, 5, 15, 10, 0, 0, 0, time.UTC)

type serviceFixture struct {
	svc        *certificate.Service
	certRepo   certificate.Repository
	courseRepo course.Repository
	usrRepo    user.Repository
	mailSvc    *emailsvc.ConsoleServiceMock

	holder user.User
	crs    course.Course
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db, err := inmemdb.Open()
	require.NoError(t, err)

	conf := testutil.NewConfig()
	f := &serviceFixture{
		certRepo:   inmemdb.NewCertificateRepository(db),
		courseRepo: inmemdb.NewCourseRepository(db),
		usrRepo:    inmemdb.NewUserRepository(db),
		mailSvc:    emailsvc.NewConsoleServiceMock(conf),
	}
	f.svc = certificate.NewService(f.certRepo, f.courseRepo, f.mailSvc, testutil.NewLogger(), conf)

	f.holder = testutil.CreateUser(t, f.usrRepo, "Jane Doe", "jane", "jane@test.local", "", true)
	f.crs = testutil.CreateCourse(t, f.courseRepo, "Forklift Safety")
	testutil.Enroll(t, f.courseRepo, f.crs.ID, f.holder.ID)
	return f
}

func (f *serviceFixture) expiringIn(t *testing.T, days int, status certificate.Status, notified ...string) certificate.Certificate {
	t.Helper()
	expiry := certificate.DateOf(now).AddDays(days)
	return testutil.CreateCertificate(t, f.certRepo, &f.holder, &f.crs, expiry.AddYears(-1), expiry, status, notified...)
}

func (f *serviceFixture) reload(t *testing.T, id string) certificate.Certificate {
	t.Helper()
	cert, err := f.certRepo.GetCertificateByID(context.Background(), id)
	require.NoError(t, err)
	return cert
}

func TestServiceRunPass(t *testing.T) {
	ctx := context.Background()

	t.Run("sends each reminder once", func(t *testing.T) {
		f := newServiceFixture(t)
		cert := f.expiringIn(t, 30, certificate.StatusActive)

		report, err := f.svc.RunPass(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Notified)
		assert.Empty(t, report.Errors)
		assert.Len(t, f.mailSvc.SentMessages, 2) // holder + admin

		got := f.reload(t, cert.ID)
		assert.Equal(t, []string{"30-day"}, got.NotificationsSent)
		assert.Equal(t, certificate.StatusActive, got.Status)

		// re-running must not resend
		report, err = f.svc.RunPass(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, report.Notified)
		assert.Len(t, f.mailSvc.SentMessages, 2)
	})

	t.Run("short reminders set expiring_soon", func(t *testing.T) {
		for _, days := range []int{7, 1} {
			f := newServiceFixture(t)
			cert := f.expiringIn(t, days, certificate.StatusActive)

			_, err := f.svc.RunPass(ctx, now)
			require.NoError(t, err)

			got := f.reload(t, cert.ID)
			assert.Equal(t, certificate.StatusExpiringSoon, got.Status)
			assert.Equal(t, []string{fmt.Sprintf("%d-day", days)}, got.NotificationsSent)
		}
	})

	t.Run("send failure leaves no tag and retries next pass", func(t *testing.T) {
		f := newServiceFixture(t)
		cert := f.expiringIn(t, 7, certificate.StatusActive)

		f.mailSvc.Err = assert.AnError
		report, err := f.svc.RunPass(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, report.Notified)
		assert.Len(t, report.Errors, 1)
		assert.Empty(t, f.reload(t, cert.ID).NotificationsSent)

		f.mailSvc.Err = nil
		report, err = f.svc.RunPass(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Notified)
		assert.Equal(t, []string{"7-day"}, f.reload(t, cert.ID).NotificationsSent)
	})

	t.Run("overdue certificate is revoked and expired", func(t *testing.T) {
		f := newServiceFixture(t)
		cert := f.expiringIn(t, -1, certificate.StatusExpiringSoon)

		report, err := f.svc.RunPass(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Expired)

		got := f.reload(t, cert.ID)
		assert.Equal(t, certificate.StatusExpired, got.Status)
		assert.Equal(t, []string{"expired"}, got.NotificationsSent)

		connected, err := f.courseRepo.IsConnected(ctx, f.crs.ID, f.holder.ID)
		require.NoError(t, err)
		assert.False(t, connected)
	})

	t.Run("expiry survives notification failure", func(t *testing.T) {
		f := newServiceFixture(t)
		cert := f.expiringIn(t, -3, certificate.StatusActive)

		f.mailSvc.Err = assert.AnError
		_, err := f.svc.RunPass(ctx, now)
		require.NoError(t, err)

		got := f.reload(t, cert.ID)
		assert.Equal(t, certificate.StatusExpired, got.Status)
		assert.Empty(t, got.NotificationsSent) // delivery still owed

		// next healthy pass completes the notice
		f.mailSvc.Err = nil
		report, err := f.svc.RunPass(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Backfilled)
		assert.Equal(t, []string{"expired"}, f.reload(t, cert.ID).NotificationsSent)
	})

	t.Run("already expired certificate without notice is completed", func(t *testing.T) {
		f := newServiceFixture(t)
		cert := f.expiringIn(t, -40, certificate.StatusExpired)

		report, err := f.svc.RunPass(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Backfilled)
		assert.Len(t, f.mailSvc.SentMessages, 2)
		assert.Equal(t, []string{"expired"}, f.reload(t, cert.ID).NotificationsSent)

		connected, err := f.courseRepo.IsConnected(ctx, f.crs.ID, f.holder.ID)
		require.NoError(t, err)
		assert.False(t, connected)

		// settled record is ignored afterwards
		report, err = f.svc.RunPass(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, report.Backfilled)
		assert.Len(t, f.mailSvc.SentMessages, 2)
	})

	t.Run("missing holder or credential is reported and skipped", func(t *testing.T) {
		f := newServiceFixture(t)
		expiry := certificate.DateOf(now).AddDays(30)
		cert := testutil.CreateCertificate(t, f.certRepo, nil, &f.crs, expiry.AddYears(-1), expiry, certificate.StatusActive)

		report, err := f.svc.RunPass(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, report.Notified)
		require.Len(t, report.Errors, 1)
		assert.Equal(t, cert.ID, report.Errors[0].CertificateID)
		assert.Empty(t, f.mailSvc.SentMessages)
	})

	t.Run("renewal link points at the credential", func(t *testing.T) {
		f := newServiceFixture(t)
		f.expiringIn(t, 7, certificate.StatusActive)

		_, err := f.svc.RunPass(ctx, now)
		require.NoError(t, err)
		require.Len(t, f.mailSvc.SentMessages, 2)
		assert.Contains(t, f.mailSvc.SentMessages[0].HTMLContent, "https://training.ryzolve.com/renewal?course="+f.crs.ID)
		assert.Equal(t, "pas@ryzolve.com", f.mailSvc.SentMessages[1].To[0].Address)
	})
}

func TestServiceCheckHolder(t *testing.T) {
	ctx := context.Background()

	t.Run("reports and sends due milestones", func(t *testing.T) {
		f := newServiceFixture(t)
		due := f.expiringIn(t, 7, certificate.StatusActive)
		notDue := f.expiringIn(t, 100, certificate.StatusActive)

		report, err := f.svc.CheckHolder(ctx, strings.ToUpper(f.holder.Email), now)
		require.NoError(t, err)
		require.Len(t, report.Certificates, 2)

		byID := make(map[string]certificate.HolderCheck, 2)
		for _, c := range report.Certificates {
			byID[c.CertificateID] = c
		}
		assert.True(t, byID[due.ID].Sent)
		assert.Equal(t, certificate.StatusExpiringSoon, byID[due.ID].Status)
		assert.False(t, byID[notDue.ID].Sent)
		assert.Equal(t, "no milestone due", byID[notDue.ID].Reason)
		assert.Len(t, f.mailSvc.SentMessages, 2)
	})

	t.Run("already notified milestones are not resent", func(t *testing.T) {
		f := newServiceFixture(t)
		f.expiringIn(t, 1, certificate.StatusExpiringSoon, "1-day")

		report, err := f.svc.CheckHolder(ctx, f.holder.Email, now)
		require.NoError(t, err)
		require.Len(t, report.Certificates, 1)
		assert.False(t, report.Certificates[0].Sent)
		assert.Contains(t, report.Certificates[0].Reason, "already sent")
		assert.Empty(t, f.mailSvc.SentMessages)
	})

	t.Run("overdue certificate is expired on the spot", func(t *testing.T) {
		f := newServiceFixture(t)
		cert := f.expiringIn(t, -2, certificate.StatusActive)

		report, err := f.svc.CheckHolder(ctx, f.holder.Email, now)
		require.NoError(t, err)
		require.Len(t, report.Certificates, 1)
		assert.True(t, report.Certificates[0].Sent)

		got := f.reload(t, cert.ID)
		assert.Equal(t, certificate.StatusExpired, got.Status)
		assert.Equal(t, []string{"expired"}, got.NotificationsSent)
	})

	t.Run("unknown email yields an empty report", func(t *testing.T) {
		f := newServiceFixture(t)

		report, err := f.svc.CheckHolder(ctx, "nobody@test.local", now)
		require.NoError(t, err)
		assert.Empty(t, report.Certificates)
	})
}
