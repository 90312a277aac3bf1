package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/core/course"
	"github.com/trezcool/cheti/core/user"
)

type certificateRow struct {
	ID                string           `db:"id"`
	QuizScoreID       null.String      `db:"quiz_score_id"`
	IssuedDate        certificate.Date `db:"issued_date"`
	ExpiryDate        certificate.Date `db:"expiry_date"`
	Status            string           `db:"status"`
	NotificationsSent pq.StringArray   `db:"notifications_sent"`
	CreatedAt         time.Time        `db:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at"`

	HolderID       null.String `db:"holder_id"`
	HolderName     null.String `db:"holder_name"`
	HolderUsername null.String `db:"holder_username"`
	HolderEmail    null.String `db:"holder_email"`
	HolderAgency   null.String `db:"holder_agency"`

	CourseID    null.String `db:"credential_id"`
	CourseTitle null.String `db:"credential_title"`
}

func (r certificateRow) toCertificate() certificate.Certificate {
	cert := certificate.Certificate{
		ID:                r.ID,
		QuizScoreID:       r.QuizScoreID.String,
		IssuedDate:        r.IssuedDate,
		ExpiryDate:        r.ExpiryDate,
		Status:            certificate.Status(r.Status),
		NotificationsSent: []string(r.NotificationsSent),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if r.HolderID.Valid {
		cert.Holder = &user.User{
			ID:       r.HolderID.String,
			Name:     r.HolderName.String,
			Username: r.HolderUsername.String,
			Email:    r.HolderEmail.String,
			Agency:   r.HolderAgency.String,
		}
	}
	if r.CourseID.Valid {
		cert.Credential = &course.Course{
			ID:    r.CourseID.String,
			Title: r.CourseTitle.String,
		}
	}
	return cert
}

type certificateRepository struct {
	db *sqlx.DB
}

var _ certificate.Repository = (*certificateRepository)(nil) // interface compliance check

func NewCertificateRepository(db *sqlx.DB) certificate.Repository {
	return &certificateRepository{db: db}
}

const selectCertificate = `
SELECT c.id,
       c.quiz_score_id,
       c.issued_date,
       c.expiry_date,
       c.status,
       c.notifications_sent,
       c.created_at,
       c.updated_at,
       u.id       AS holder_id,
       u.name     AS holder_name,
       u.username AS holder_username,
       u.email    AS holder_email,
       u.agency   AS holder_agency,
       crs.id     AS credential_id,
       crs.title  AS credential_title
FROM certificate c
         LEFT JOIN "user" u ON u.id = c.user_id
         LEFT JOIN course crs ON crs.id = c.course_id`

func (repo *certificateRepository) CreateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	var userID, courseID null.String
	if cert.Holder != nil {
		userID = null.StringFrom(cert.Holder.ID)
	}
	if cert.Credential != nil {
		courseID = null.StringFrom(cert.Credential.ID)
	}
	if cert.NotificationsSent == nil {
		cert.NotificationsSent = []string{}
	}

	q := `
INSERT INTO certificate (id, user_id, course_id, quiz_score_id, issued_date, expiry_date, status, notifications_sent)
VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8)
RETURNING created_at, updated_at`
	err := repo.db.QueryRowxContext(
		ctx, q,
		cert.ID, userID, courseID, cert.QuizScoreID,
		cert.IssuedDate, cert.ExpiryDate, string(cert.Status), pq.StringArray(cert.NotificationsSent),
	).Scan(&cert.CreatedAt, &cert.UpdatedAt)
	if err != nil {
		return certificate.Certificate{}, errors.Wrap(err, "inserting certificate")
	}
	return cert, nil
}

func (repo *certificateRepository) QueryAllCertificates(ctx context.Context) ([]certificate.Certificate, error) {
	return repo.selectMany(ctx, selectCertificate)
}

func (repo *certificateRepository) GetCertificateByID(ctx context.Context, id string) (certificate.Certificate, error) {
	var row certificateRow
	if err := repo.db.GetContext(ctx, &row, selectCertificate+` WHERE c.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return certificate.Certificate{}, certificate.ErrNotFound
		}
		return certificate.Certificate{}, errors.Wrap(err, "querying certificate")
	}
	return row.toCertificate(), nil
}

func (repo *certificateRepository) FilterCertificates(ctx context.Context, filter certificate.Filter) ([]certificate.Certificate, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ExpiresOn != nil {
		conds = append(conds, "c.expiry_date = "+arg(*filter.ExpiresOn))
	}
	if filter.ExpiresBefore != nil {
		conds = append(conds, "c.expiry_date < "+arg(*filter.ExpiresBefore))
	}
	if filter.Status != "" {
		conds = append(conds, "c.status = "+arg(string(filter.Status)))
	}
	if filter.ExcludeStatus != "" {
		conds = append(conds, "c.status <> "+arg(string(filter.ExcludeStatus)))
	}
	if filter.HolderEmail != "" {
		conds = append(conds, "lower(u.email) = lower("+arg(filter.HolderEmail)+")")
	}

	q := selectCertificate
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	return repo.selectMany(ctx, q, args...)
}

func (repo *certificateRepository) selectMany(ctx context.Context, q string, args ...interface{}) ([]certificate.Certificate, error) {
	var rows []certificateRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying certificates")
	}
	certs := make([]certificate.Certificate, 0, len(rows))
	for _, r := range rows {
		certs = append(certs, r.toCertificate())
	}
	return certs, nil
}

// UpdateCertificate applies the patch in a single statement; the tag is
// appended only when the live row does not already hold it, so re-run
// and concurrent passes cannot double-mark a milestone.
func (repo *certificateRepository) UpdateCertificate(ctx context.Context, id string, patch certificate.Patch) error {
	q := `
UPDATE certificate
SET status             = COALESCE(NULLIF($2, ''), status),
    notifications_sent = CASE
                             WHEN $3 = '' OR $3 = ANY (notifications_sent) THEN notifications_sent
                             ELSE array_append(notifications_sent, $3)
        END,
    updated_at         = now()
WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, q, id, string(patch.Status), patch.AddNotification)
	if err != nil {
		return errors.Wrap(err, "updating certificate")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return certificate.ErrNotFound
	}
	return nil
}

func (repo *certificateRepository) ResetCertificateDates(ctx context.Context, id string, issued, expiry certificate.Date, status certificate.Status) error {
	q := `
UPDATE certificate
SET issued_date = $2,
    expiry_date = $3,
    status      = $4,
    updated_at  = now()
WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, q, id, issued, expiry, string(status))
	if err != nil {
		return errors.Wrap(err, "resetting certificate dates")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return certificate.ErrNotFound
	}
	return nil
}
