package certificate

import (
	"errors"
	"fmt"
)

// ErrUnsupportedMilestone is returned when a milestone outside the closed
// set reaches the renderer. There is no fallback copy; an unknown
// milestone is a programming error and must surface as one.
var ErrUnsupportedMilestone = errors.New("unsupported notification milestone")

type (
	// Snapshot is the render input: every value pre-formatted, no clock
	// reads, so rendering is deterministic and trivially testable.
	Snapshot struct {
		HolderName     string
		HolderUsername string
		HolderEmail    string
		CourseTitle    string
		IssuedDate     string
		ExpiryDate     string
		RenewalURL     string
	}

	Email struct {
		Subject string
		HTML    string
	}
)

// Snapshot captures the certificate fields the renderer needs, applying
// the holder/course display fallbacks.
func (c *Certificate) Snapshot(renewalBaseURL string) Snapshot {
	snap := Snapshot{
		HolderName:  "Student",
		CourseTitle: "your course",
		IssuedDate:  c.IssuedDate.String(),
		ExpiryDate:  c.ExpiryDate.String(),
	}
	if c.Holder != nil {
		snap.HolderName = c.Holder.DisplayName()
		snap.HolderUsername = c.Holder.Username
		snap.HolderEmail = c.Holder.Email
	}
	if c.Credential != nil {
		snap.CourseTitle = c.Credential.DisplayTitle()
		snap.RenewalURL = fmt.Sprintf("%s/renewal?course=%s", renewalBaseURL, c.Credential.ID)
	}
	return snap
}

type holderCopy struct {
	subject  string
	heading  string
	message  string
	urgency  string
	ctaText  string
	ctaColor string
}

func holderCopyFor(m Milestone, snap Snapshot) (holderCopy, error) {
	switch m {
	case MilestoneThirtyDay:
		return holderCopy{
			subject:  fmt.Sprintf("30-day reminder: Renew your %s certificate", snap.CourseTitle),
			heading:  "Certificate Expiry Reminder",
			message:  fmt.Sprintf("Just a quick reminder—your <strong>%s</strong> certificate will expire on <strong>%s</strong>. Renewing early helps you stay compliant and keeps your training history continuous.", snap.CourseTitle, snap.ExpiryDate),
			ctaText:  "Renew now (recommended)",
			ctaColor: "#FF774B",
		}, nil
	case MilestoneSevenDay:
		return holderCopy{
			subject:  fmt.Sprintf("Urgent: Your %s certificate expires in 7 days", snap.CourseTitle),
			heading:  "Urgent: Certificate Expiring Soon",
			message:  fmt.Sprintf("Your <strong>%s</strong> certificate expires on <strong>%s</strong>—that's just <strong>7 days away</strong>. Once expired, you'll lose access to your course materials and will need to re-enroll.", snap.CourseTitle, snap.ExpiryDate),
			urgency:  "Act now to avoid losing your certification and course access.",
			ctaText:  "Renew now — 7 days left",
			ctaColor: "#FF5722",
		}, nil
	case MilestoneOneDay:
		return holderCopy{
			subject:  fmt.Sprintf("Final notice: Your %s certificate expires tomorrow", snap.CourseTitle),
			heading:  "Final Warning: Certificate Expires Tomorrow",
			message:  fmt.Sprintf("Your <strong>%s</strong> certificate expires <strong>tomorrow</strong> (%s)! After expiry, you will lose access to the course and must re-enroll.", snap.CourseTitle, snap.ExpiryDate),
			urgency:  "This is your last chance to renew before losing access!",
			ctaText:  "Renew now — expires tomorrow",
			ctaColor: "#d32f2f",
		}, nil
	case MilestoneExpired:
		return holderCopy{
			subject:  fmt.Sprintf("Your %s certificate has expired", snap.CourseTitle),
			heading:  "Certificate Expired",
			message:  fmt.Sprintf("Your <strong>%s</strong> certificate expired on <strong>%s</strong>. You no longer have access to this course. To regain access and renew your certification, please re-enroll.", snap.CourseTitle, snap.ExpiryDate),
			ctaText:  "Re-enroll Now",
			ctaColor: "#d32f2f",
		}, nil
	}
	return holderCopy{}, ErrUnsupportedMilestone
}

// RenderHolderEmail produces the holder-facing notification for the given
// milestone. Identical inputs yield byte-identical output.
func RenderHolderEmail(m Milestone, snap Snapshot) (Email, error) {
	c, err := holderCopyFor(m, snap)
	if err != nil {
		return Email{}, err
	}

	urgency := ""
	if c.urgency != "" {
		urgency = fmt.Sprintf(`<p style="font-size: 14px; color: #d32f2f; font-weight: bold;">%s</p>`, c.urgency)
	}
	cta := ""
	if snap.RenewalURL != "" {
		cta = fmt.Sprintf(
			`<div style="text-align: center; margin: 30px 0;"><a href="%s" style="display: inline-block; padding: 15px 30px; background-color: %s; color: white; text-decoration: none; border-radius: 5px; font-weight: bold;">%s</a></div>`,
			snap.RenewalURL, c.ctaColor, c.ctaText,
		)
	}

	html := fmt.Sprintf(
		`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
<h2 style="color: #333; text-align: center;">%s</h2>
<p style="font-size: 14px; color: #555;">Hi %s,</p>
<p style="font-size: 14px; color: #555;">%s</p>
%s%s
<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
<tr><td style="padding: 10px; border: 1px solid #ddd;"><strong>Course</strong></td><td style="padding: 10px; border: 1px solid #ddd;">%s</td></tr>
<tr><td style="padding: 10px; border: 1px solid #ddd;"><strong>Issued Date</strong></td><td style="padding: 10px; border: 1px solid #ddd;">%s</td></tr>
<tr><td style="padding: 10px; border: 1px solid #ddd;"><strong>Expiry Date</strong></td><td style="padding: 10px; border: 1px solid #ddd;">%s</td></tr>
</table>
<p style="font-size: 14px; color: #555;">If you have any questions, please contact our support team.</p>
<p style="font-size: 14px; color: #555;">Best regards,<br />The Ryzolve Team</p>
</div>`,
		c.heading, snap.HolderName, c.message, urgency, cta,
		snap.CourseTitle, snap.IssuedDate, snap.ExpiryDate,
	)

	return Email{Subject: c.subject, HTML: html}, nil
}

// RenderAdminEmail produces the operational alert counterpart for the
// administrator contact.
func RenderAdminEmail(m Milestone, snap Snapshot) (Email, error) {
	var heading string
	switch m {
	case MilestoneThirtyDay:
		heading = "Certificate Expiring in 30 Days"
	case MilestoneSevenDay:
		heading = "Certificate Expiring in 7 Days"
	case MilestoneOneDay:
		heading = "Certificate Expires Tomorrow"
	case MilestoneExpired:
		heading = "Certificate Has Expired - Access Revoked"
	default:
		return Email{}, ErrUnsupportedMilestone
	}

	username := snap.HolderUsername
	if username == "" {
		username = "Unknown"
	}
	email := snap.HolderEmail
	if email == "" {
		email = "Unknown"
	}

	revokedRow := ""
	if m == MilestoneExpired {
		revokedRow = `<tr><td style="padding: 10px; border: 1px solid #ddd;"><strong>Status</strong></td><td style="padding: 10px; border: 1px solid #ddd; color: #d32f2f;"><strong>Course access has been revoked</strong></td></tr>`
	}

	html := fmt.Sprintf(
		`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
<h2 style="color: #333;">%s</h2>
<table style="width: 100%%; border-collapse: collapse; margin-top: 10px;">
<tr><td style="padding: 10px; border: 1px solid #ddd;"><strong>User</strong></td><td style="padding: 10px; border: 1px solid #ddd;">%s</td></tr>
<tr><td style="padding: 10px; border: 1px solid #ddd;"><strong>Email</strong></td><td style="padding: 10px; border: 1px solid #ddd;">%s</td></tr>
<tr><td style="padding: 10px; border: 1px solid #ddd;"><strong>Course</strong></td><td style="padding: 10px; border: 1px solid #ddd;">%s</td></tr>
<tr><td style="padding: 10px; border: 1px solid #ddd;"><strong>Issued Date</strong></td><td style="padding: 10px; border: 1px solid #ddd;">%s</td></tr>
<tr><td style="padding: 10px; border: 1px solid #ddd;"><strong>Expiry Date</strong></td><td style="padding: 10px; border: 1px solid #ddd;">%s</td></tr>
%s</table>
</div>`,
		heading, username, email, snap.CourseTitle, snap.IssuedDate, snap.ExpiryDate, revokedRow,
	)

	return Email{
		Subject: fmt.Sprintf("%s: %s - %s", heading, username, snap.CourseTitle),
		HTML:    html,
	}, nil
}
