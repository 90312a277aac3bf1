package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/cheti/core/certificate"
)

type certificateRepository struct {
	db *certificateTable
}

var _ certificate.Repository = (*certificateRepository)(nil) // interface compliance check

func NewCertificateRepository(db *DB) certificate.Repository {
	return &certificateRepository{db: db.certificate}
}

func (repo *certificateRepository) query() []certificate.Certificate {
	certs := make([]certificate.Certificate, 0, len(repo.db.table))
	for _, c := range repo.db.table {
		certs = append(certs, repo.clone(c))
	}
	return certs
}

// clone copies the record so callers cannot mutate the table through
// the returned slice header.
func (repo *certificateRepository) clone(c *certificate.Certificate) certificate.Certificate {
	cp := *c
	cp.NotificationsSent = append([]string(nil), c.NotificationsSent...)
	return cp
}

func (repo *certificateRepository) CreateCertificate(_ context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = now
	}
	cert.UpdatedAt = now
	if cert.Status == "" {
		cert.Status = certificate.StatusActive
	}
	repo.db.table[cert.ID] = &cert
	return repo.clone(&cert), nil
}

func (repo *certificateRepository) QueryAllCertificates(_ context.Context) ([]certificate.Certificate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *certificateRepository) GetCertificateByID(_ context.Context, id string) (certificate.Certificate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if cert, ok := repo.db.table[id]; ok {
		return repo.clone(cert), nil
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (repo *certificateRepository) FilterCertificates(_ context.Context, filter certificate.Filter) ([]certificate.Certificate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var certs []certificate.Certificate
	for _, c := range repo.db.table {
		if filter.ExpiresOn != nil && !c.ExpiryDate.Equal(*filter.ExpiresOn) {
			continue
		}
		if filter.ExpiresBefore != nil && !c.ExpiryDate.Before(filter.ExpiresBefore.Time) {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.ExcludeStatus != "" && c.Status == filter.ExcludeStatus {
			continue
		}
		if filter.HolderEmail != "" {
			if c.Holder == nil || !strings.EqualFold(c.Holder.Email, filter.HolderEmail) {
				continue
			}
		}
		certs = append(certs, repo.clone(c))
	}
	return certs, nil
}

func (repo *certificateRepository) UpdateCertificate(_ context.Context, id string, patch certificate.Patch) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	cert, ok := repo.db.table[id]
	if !ok {
		return certificate.ErrNotFound
	}
	if patch.Status != "" {
		cert.Status = patch.Status
	}
	// membership is re-checked on the live record so concurrent passes
	// cannot double-append a tag
	if patch.AddNotification != "" && !cert.HasNotification(patch.AddNotification) {
		cert.NotificationsSent = append(cert.NotificationsSent, patch.AddNotification)
	}
	cert.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *certificateRepository) ResetCertificateDates(_ context.Context, id string, issued, expiry certificate.Date, status certificate.Status) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	cert, ok := repo.db.table[id]
	if !ok {
		return certificate.ErrNotFound
	}
	cert.IssuedDate = issued
	cert.ExpiryDate = expiry
	cert.Status = status
	cert.UpdatedAt = time.Now().UTC()
	return nil
}
