package certificate

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/trezcool/cheti/core/course"
	"github.com/trezcool/cheti/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("certificate not found")
)

// DateLayout is the wire and storage format of all certificate dates.
const DateLayout = "2006-01-02"

// Date is a calendar date with no time-of-day component, held at midnight UTC.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) AddDays(n int) Date  { return Date{d.Time.AddDate(0, 0, n)} }
func (d Date) AddYears(n int) Date { return Date{d.Time.AddDate(n, 0, 0)} }
func (d Date) Equal(o Date) bool   { return d.Time.Equal(o.Time) }

// DaysUntil returns the number of whole days from d to o; negative when
// o is in the past.
func (d Date) DaysUntil(o Date) int { return int(o.Sub(d.Time) / (24 * time.Hour)) }
func (d Date) String() string      { return d.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", d.String())), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		return nil
	}
	t, err := time.Parse(`"`+DateLayout+`"`, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d Date) Value() (driver.Value, error) {
	return d.Time, nil
}

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case []byte:
		parsed, err := ParseDate(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

// Status is the derived lifecycle state of a certificate. It only ever
// moves forward: active -> expiring_soon -> expired.
type Status string

const (
	StatusActive       Status = "active"
	StatusExpiringSoon Status = "expiring_soon"
	StatusExpired      Status = "expired"
)

var statusRank = map[Status]int{
	StatusActive:       1,
	StatusExpiringSoon: 2,
	StatusExpired:      3,
}

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// After reports whether s is further along the lifecycle than o.
func (s Status) After(o Status) bool {
	return statusRank[s] > statusRank[o]
}

// StatusForDates derives the status a certificate should carry given its
// expiry date and the current time.
func StatusForDates(expiry Date, now time.Time) Status {
	today := DateOf(now)
	if expiry.Before(today.Time) {
		return StatusExpired
	}
	if !expiry.After(today.AddDays(30).Time) {
		return StatusExpiringSoon
	}
	return StatusActive
}

// Milestone identifies a notification point in a certificate's lifecycle.
// The set is closed; there is deliberately no way to construct another one.
type Milestone int

const (
	MilestoneThirtyDay Milestone = iota + 1
	MilestoneSevenDay
	MilestoneOneDay
	MilestoneExpired
)

// ReminderMilestones are the upcoming-expiry milestones, processed most
// distant first. The order has no correctness effect; it is fixed for
// reproducibility.
var ReminderMilestones = []Milestone{MilestoneThirtyDay, MilestoneSevenDay, MilestoneOneDay}

// Days returns the number of days before expiry the milestone fires at;
// zero for MilestoneExpired.
func (m Milestone) Days() int {
	switch m {
	case MilestoneThirtyDay:
		return 30
	case MilestoneSevenDay:
		return 7
	case MilestoneOneDay:
		return 1
	}
	return 0
}

// Tag is the milestone's persisted identifier in notificationsSent.
func (m Milestone) Tag() string {
	switch m {
	case MilestoneThirtyDay:
		return "30-day"
	case MilestoneSevenDay:
		return "7-day"
	case MilestoneOneDay:
		return "1-day"
	case MilestoneExpired:
		return "expired"
	}
	return ""
}

func (m Milestone) String() string { return m.Tag() }

// Certificate records the issuance of a credential to a holder.
// Dates are only ever changed by external correction tooling; the
// lifecycle engine mutates status and notificationsSent alone.
type Certificate struct {
	ID          string         `json:"id"`
	Holder      *user.User     `json:"holder,omitempty"`
	Credential  *course.Course `json:"credential,omitempty"`
	QuizScoreID string         `json:"quiz_score_id,omitempty"`
	IssuedDate  Date           `json:"issued_date"`
	ExpiryDate  Date           `json:"expiry_date"`
	Status      Status         `json:"status"`

	// NotificationsSent grows monotonically; tags are never removed.
	NotificationsSent []string `json:"notifications_sent"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// HasNotification reports whether the milestone tag has already been
// recorded as delivered.
func (c *Certificate) HasNotification(tag string) bool {
	for _, t := range c.NotificationsSent {
		if t == tag {
			return true
		}
	}
	return false
}

// HasRefs reports whether both the holder and credential references are
// present. Records missing either are skipped by the engine until the
// data is corrected externally.
func (c *Certificate) HasRefs() bool {
	return c.Holder != nil && c.Credential != nil
}

type (
	// Filter selects certificates; set fields are ANDed together.
	Filter struct {
		ExpiresOn     *Date  // equality on expiry date
		ExpiresBefore *Date  // strictly before
		Status        Status // exact match; empty matches any
		ExcludeStatus Status
		HolderEmail   string // case-insensitive
	}

	// Patch is the only mutation the lifecycle engine may apply. The tag
	// append is conditioned on a fresh membership read inside the store,
	// which is what keeps re-run and concurrent passes from double-marking.
	Patch struct {
		Status          Status // empty = unchanged
		AddNotification string // empty = none; appended only if absent
	}

	Repository interface {
		CreateCertificate(ctx context.Context, cert Certificate) (Certificate, error)
		QueryAllCertificates(ctx context.Context) ([]Certificate, error)
		GetCertificateByID(ctx context.Context, id string) (Certificate, error)
		FilterCertificates(ctx context.Context, filter Filter) ([]Certificate, error)
		// UpdateCertificate applies the patch atomically to the single record;
		// status and the tag append land together or not at all.
		UpdateCertificate(ctx context.Context, id string, patch Patch) error
		// ResetCertificateDates is reserved for external correction tooling.
		ResetCertificateDates(ctx context.Context, id string, issued, expiry Date, status Status) error
	}
)
