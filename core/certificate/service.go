package certificate

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/course"
)

type (
	// RecordError captures a per-certificate failure without aborting
	// the pass.
	RecordError struct {
		CertificateID string `json:"certificateId"`
		Reason        string `json:"reason"`
	}

	// PassReport summarizes a single lifecycle pass.
	PassReport struct {
		RunAt      time.Time     `json:"runAt"`
		Examined   int           `json:"examined"`
		Notified   int           `json:"notified"`
		Expired    int           `json:"expired"`
		Backfilled int           `json:"backfilled"`
		Errors     []RecordError `json:"errors"`
	}

	// HolderCheck reports the outcome for one certificate during a
	// per-holder check.
	HolderCheck struct {
		CertificateID   string `json:"certificateId"`
		CourseTitle     string `json:"courseTitle"`
		ExpiryDate      Date   `json:"expiryDate"`
		Status          Status `json:"status"`
		DaysUntilExpiry int    `json:"daysUntilExpiry"`
		Sent            bool   `json:"sent"`
		Reason          string `json:"reason,omitempty"`
	}

	HolderReport struct {
		Email        string        `json:"email"`
		Certificates []HolderCheck `json:"certificates"`
	}

	Service struct {
		repo       Repository
		courseRepo course.Repository
		mailSvc    core.EmailService
		logger     core.Logger
		conf       *core.Config
	}
)

func NewService(
	repo Repository,
	courseRepo course.Repository,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		repo:       repo,
		courseRepo: courseRepo,
		mailSvc:    mailSvc,
		logger:     logger,
		conf:       conf,
	}
}

func (svc *Service) Query(ctx context.Context) ([]Certificate, error) {
	return svc.repo.QueryAllCertificates(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Certificate, error) {
	return svc.repo.GetCertificateByID(ctx, id)
}

// RunPass executes one full lifecycle pass: upcoming-expiry reminders,
// expiry processing, and completion of expired certificates that were
// never notified. Per-certificate failures are collected in the report;
// only repository query failures abort the pass.
func (svc *Service) RunPass(ctx context.Context, now time.Time) (*PassReport, error) {
	report := &PassReport{RunAt: now.UTC()}
	today := DateOf(now)

	if err := svc.remindUpcoming(ctx, today, report); err != nil {
		return report, err
	}
	if err := svc.processOverdue(ctx, today, report); err != nil {
		return report, err
	}
	if err := svc.completeExpired(ctx, report); err != nil {
		return report, err
	}

	svc.logger.Info("lifecycle pass complete", map[string]interface{}{
		"examined":   report.Examined,
		"notified":   report.Notified,
		"expired":    report.Expired,
		"backfilled": report.Backfilled,
		"errors":     len(report.Errors),
	})
	return report, nil
}

// remindUpcoming handles certificates expiring exactly 30, 7 or 1 days
// from today. Each milestone is delivered at most once: the tag check
// gates the send and the tag is recorded only after a successful send.
func (svc *Service) remindUpcoming(ctx context.Context, today Date, report *PassReport) error {
	for _, m := range ReminderMilestones {
		target := today.AddDays(m.Days())
		certs, err := svc.repo.FilterCertificates(ctx, Filter{
			ExpiresOn:     &target,
			ExcludeStatus: StatusExpired,
		})
		if err != nil {
			return errors.Wrapf(err, "querying certificates expiring on %s", target)
		}

		for i := range certs {
			cert := &certs[i]
			report.Examined++

			if cert.HasNotification(m.Tag()) {
				continue
			}
			if !cert.HasRefs() {
				svc.logger.Warn(fmt.Sprintf("certificate %s missing holder or credential", cert.ID))
				report.fail(cert.ID, "missing holder or credential")
				continue
			}

			if err = svc.sendPair(ctx, m, cert); err != nil {
				svc.logger.Error(fmt.Sprintf("sending %s reminder for certificate %s: %v", m.Tag(), cert.ID, err), err)
				report.fail(cert.ID, fmt.Sprintf("sending %s reminder: %v", m.Tag(), err))
				continue
			}

			patch := Patch{AddNotification: m.Tag()}
			if m.Days() <= 7 && StatusExpiringSoon.After(cert.Status) {
				patch.Status = StatusExpiringSoon
			}
			if err = svc.repo.UpdateCertificate(ctx, cert.ID, patch); err != nil {
				svc.logger.Error(fmt.Sprintf("recording %s reminder for certificate %s: %v", m.Tag(), cert.ID, err), err)
				report.fail(cert.ID, fmt.Sprintf("recording %s reminder: %v", m.Tag(), err))
				continue
			}
			report.Notified++
		}
	}
	return nil
}

// processOverdue expires certificates whose expiry date has passed.
// Revocation and status change are decoupled from delivery: the status
// always becomes expired, but the tag is recorded only on successful
// delivery so a later pass retries the notification.
func (svc *Service) processOverdue(ctx context.Context, today Date, report *PassReport) error {
	certs, err := svc.repo.FilterCertificates(ctx, Filter{
		ExpiresBefore: &today,
		ExcludeStatus: StatusExpired,
	})
	if err != nil {
		return errors.Wrap(err, "querying overdue certificates")
	}

	for i := range certs {
		cert := &certs[i]
		report.Examined++

		if err = svc.revokeAccess(ctx, cert); err != nil {
			svc.logger.Error(fmt.Sprintf("revoking access for certificate %s: %v", cert.ID, err), err)
			report.fail(cert.ID, fmt.Sprintf("revoking access: %v", err))
			continue
		}

		patch := Patch{Status: StatusExpired}
		sent := false
		if cert.HasRefs() {
			if err = svc.sendPair(ctx, MilestoneExpired, cert); err != nil {
				svc.logger.Error(fmt.Sprintf("sending expiry notice for certificate %s: %v", cert.ID, err), err)
				report.fail(cert.ID, fmt.Sprintf("sending expiry notice: %v", err))
			} else {
				sent = true
			}
		} else {
			svc.logger.Warn(fmt.Sprintf("certificate %s missing holder or credential", cert.ID))
			report.fail(cert.ID, "missing holder or credential")
		}
		if sent {
			patch.AddNotification = MilestoneExpired.Tag()
		}

		if err = svc.repo.UpdateCertificate(ctx, cert.ID, patch); err != nil {
			svc.logger.Error(fmt.Sprintf("marking certificate %s expired: %v", cert.ID, err), err)
			report.fail(cert.ID, fmt.Sprintf("marking expired: %v", err))
			continue
		}
		report.Expired++
	}
	return nil
}

// completeExpired picks up certificates that reached the expired status
// without the expired tag (crashed pass, external correction, migrated
// data) and finishes the job.
func (svc *Service) completeExpired(ctx context.Context, report *PassReport) error {
	certs, err := svc.repo.FilterCertificates(ctx, Filter{Status: StatusExpired})
	if err != nil {
		return errors.Wrap(err, "querying expired certificates")
	}

	for i := range certs {
		cert := &certs[i]
		if cert.HasNotification(MilestoneExpired.Tag()) {
			continue
		}
		report.Examined++

		if !cert.HasRefs() {
			svc.logger.Warn(fmt.Sprintf("certificate %s missing holder or credential", cert.ID))
			report.fail(cert.ID, "missing holder or credential")
			continue
		}
		if err = svc.revokeAccess(ctx, cert); err != nil {
			svc.logger.Error(fmt.Sprintf("revoking access for certificate %s: %v", cert.ID, err), err)
			report.fail(cert.ID, fmt.Sprintf("revoking access: %v", err))
			continue
		}
		if err = svc.sendPair(ctx, MilestoneExpired, cert); err != nil {
			svc.logger.Error(fmt.Sprintf("sending expiry notice for certificate %s: %v", cert.ID, err), err)
			report.fail(cert.ID, fmt.Sprintf("sending expiry notice: %v", err))
			continue
		}
		if err = svc.repo.UpdateCertificate(ctx, cert.ID, Patch{AddNotification: MilestoneExpired.Tag()}); err != nil {
			svc.logger.Error(fmt.Sprintf("recording expiry notice for certificate %s: %v", cert.ID, err), err)
			report.fail(cert.ID, fmt.Sprintf("recording expiry notice: %v", err))
			continue
		}
		report.Backfilled++
	}
	return nil
}

// CheckHolder runs the milestone decision synchronously for every
// certificate belonging to the given email and reports, per certificate,
// whether a notification went out and why not otherwise.
func (svc *Service) CheckHolder(ctx context.Context, email string, now time.Time) (*HolderReport, error) {
	certs, err := svc.repo.FilterCertificates(ctx, Filter{HolderEmail: email})
	if err != nil {
		return nil, errors.Wrapf(err, "querying certificates for %s", email)
	}

	today := DateOf(now)
	report := &HolderReport{Email: email, Certificates: make([]HolderCheck, 0, len(certs))}

	for i := range certs {
		cert := &certs[i]
		check := HolderCheck{
			CertificateID:   cert.ID,
			ExpiryDate:      cert.ExpiryDate,
			Status:          cert.Status,
			DaysUntilExpiry: today.DaysUntil(cert.ExpiryDate),
		}
		if cert.Credential != nil {
			check.CourseTitle = cert.Credential.Title
		}

		m, due := milestoneFor(cert, check.DaysUntilExpiry)
		switch {
		case !due:
			check.Reason = "no milestone due"
		case cert.HasNotification(m.Tag()):
			check.Reason = fmt.Sprintf("%s notification already sent", m.Tag())
		case !cert.HasRefs():
			check.Reason = "missing holder or credential"
		default:
			check.Sent, check.Reason = svc.deliverMilestone(ctx, m, cert)
		}
		check.Status = cert.Status

		report.Certificates = append(report.Certificates, check)
	}
	return report, nil
}

// milestoneFor maps a certificate's position in its lifecycle to the
// milestone due today, if any.
func milestoneFor(cert *Certificate, daysUntil int) (Milestone, bool) {
	if cert.Status == StatusExpired || daysUntil < 0 {
		return MilestoneExpired, true
	}
	for _, m := range ReminderMilestones {
		if m.Days() == daysUntil {
			return m, true
		}
	}
	return 0, false
}

// deliverMilestone performs the full send-and-record sequence for one
// certificate, including revocation and status change when the milestone
// is the expiry itself. cert is mutated to reflect the new state.
func (svc *Service) deliverMilestone(ctx context.Context, m Milestone, cert *Certificate) (bool, string) {
	if m == MilestoneExpired {
		if err := svc.revokeAccess(ctx, cert); err != nil {
			return false, fmt.Sprintf("revoking access: %v", err)
		}
	}

	if err := svc.sendPair(ctx, m, cert); err != nil {
		if m == MilestoneExpired && StatusExpired.After(cert.Status) {
			if uerr := svc.repo.UpdateCertificate(ctx, cert.ID, Patch{Status: StatusExpired}); uerr == nil {
				cert.Status = StatusExpired
			}
		}
		return false, fmt.Sprintf("sending %s notification: %v", m.Tag(), err)
	}

	patch := Patch{AddNotification: m.Tag()}
	switch {
	case m == MilestoneExpired && StatusExpired.After(cert.Status):
		patch.Status = StatusExpired
	case m.Days() <= 7 && m != MilestoneExpired && StatusExpiringSoon.After(cert.Status):
		patch.Status = StatusExpiringSoon
	}
	if err := svc.repo.UpdateCertificate(ctx, cert.ID, patch); err != nil {
		return false, fmt.Sprintf("recording %s notification: %v", m.Tag(), err)
	}

	cert.NotificationsSent = append(cert.NotificationsSent, m.Tag())
	if patch.Status != "" {
		cert.Status = patch.Status
	}
	return true, ""
}

// revokeAccess removes the holder's enrollment on the credential.
// A missing grant is not an error, so repeated calls are safe.
func (svc *Service) revokeAccess(ctx context.Context, cert *Certificate) error {
	if !cert.HasRefs() {
		return nil
	}
	return svc.courseRepo.DisconnectUser(ctx, cert.Credential.ID, cert.Holder.ID)
}

// sendPair renders and delivers the holder notification followed by the
// admin alert. The first failure is returned; the tag must not be
// recorded when either delivery fails.
func (svc *Service) sendPair(ctx context.Context, m Milestone, cert *Certificate) error {
	snap := cert.Snapshot(svc.conf.RenewalBaseURL)

	holderEmail, err := RenderHolderEmail(m, snap)
	if err != nil {
		return err
	}
	adminEmail, err := RenderAdminEmail(m, snap)
	if err != nil {
		return err
	}

	holderMsg := &core.EmailMessage{
		To:          []mail.Address{cert.Holder.Contact()},
		Subject:     holderEmail.Subject,
		HTMLContent: holderEmail.HTML,
	}
	if err = svc.mailSvc.SendMessage(ctx, holderMsg); err != nil {
		return errors.Wrap(err, "sending holder email")
	}

	adminMsg := &core.EmailMessage{
		To:          []mail.Address{svc.conf.AdminContact()},
		Subject:     adminEmail.Subject,
		HTMLContent: adminEmail.HTML,
	}
	if err = svc.mailSvc.SendMessage(ctx, adminMsg); err != nil {
		return errors.Wrap(err, "sending admin email")
	}
	return nil
}

func (r *PassReport) fail(id, reason string) {
	r.Errors = append(r.Errors, RecordError{CertificateID: id, Reason: reason})
}
