package certificate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/course"
	"github.com/trezcool/cheti/core/quiz"
	"github.com/trezcool/cheti/core/user"
)

// Course title match strategies, in lookup order. The strategy used for
// each created certificate is surfaced in the report so operators can
// audit the fuzzy matches.
const (
	matchRelation       = "relation"
	matchExactTitle     = "exact-title"
	matchFoldedTitle    = "case-insensitive-title"
	matchSubstringTitle = "substring-title"
	matchEmail          = "email"
	matchUsername       = "username"
)

type (
	// MigrationReport summarizes a quiz-score backfill run.
	MigrationReport struct {
		RunAt               time.Time      `json:"runAt"`
		Examined            int            `json:"examined"`
		Created             int            `json:"created"`
		SkippedExisting     int            `json:"skippedExisting"`
		SkippedNotPassing   int            `json:"skippedNotPassing"`
		SkippedNoHolder     int            `json:"skippedNoHolder"`
		SkippedNoCredential int            `json:"skippedNoCredential"`
		HolderMatches       map[string]int `json:"holderMatches"`
		CourseMatches       map[string]int `json:"courseMatches"`
		Errors              []RecordError  `json:"errors"`
	}

	// FixReport summarizes a date-correction run.
	FixReport struct {
		RunAt          time.Time     `json:"runAt"`
		Examined       int           `json:"examined"`
		Updated        int           `json:"updated"`
		SkippedNoScore int           `json:"skippedNoScore"`
		SkippedSame    int           `json:"skippedSame"`
		Errors         []RecordError `json:"errors"`
	}

	// Migrator backfills certificates from historical quiz scores and
	// repairs records the original data entry got wrong.
	Migrator struct {
		certRepo   Repository
		usrRepo    user.Repository
		courseRepo course.Repository
		quizRepo   quiz.Repository
		logger     core.Logger
		conf       *core.Config
	}
)

func NewMigrator(
	certRepo Repository,
	usrRepo user.Repository,
	courseRepo course.Repository,
	quizRepo quiz.Repository,
	logger core.Logger,
	conf *core.Config,
) *Migrator {
	return &Migrator{
		certRepo:   certRepo,
		usrRepo:    usrRepo,
		courseRepo: courseRepo,
		quizRepo:   quizRepo,
		logger:     logger,
		conf:       conf,
	}
}

// Migrate scans every quiz score and creates certificates for passing
// attempts that do not have one yet. Safe to re-run: existing
// (holder, credential) pairs are skipped, and only the highest passing
// score per pair is considered.
func (mig *Migrator) Migrate(ctx context.Context, now time.Time) (*MigrationReport, error) {
	report := &MigrationReport{
		RunAt:         now.UTC(),
		HolderMatches: make(map[string]int),
		CourseMatches: make(map[string]int),
	}

	scores, err := mig.quizRepo.QueryAllScores(ctx)
	if err != nil {
		return report, errors.Wrap(err, "querying quiz scores")
	}
	existing, err := mig.existingPairs(ctx)
	if err != nil {
		return report, err
	}
	courses, err := mig.courseRepo.QueryAllCourses(ctx)
	if err != nil {
		return report, errors.Wrap(err, "querying courses")
	}

	type resolved struct {
		score  quiz.Score
		holder user.User
		crs    course.Course
		hmatch string
		cmatch string
	}
	best := make(map[string]resolved) // holderID|courseID -> highest score

	for _, score := range scores {
		report.Examined++

		if score.Percentage() < float64(mig.conf.PassThreshold) {
			report.SkippedNotPassing++
			continue
		}

		holder, hmatch, err := mig.resolveHolder(ctx, &score)
		if err != nil {
			mig.logger.Warn(fmt.Sprintf("quiz score %s: holder %q unresolved", score.ID, score.Username))
			report.SkippedNoHolder++
			continue
		}
		crs, cmatch, err := mig.resolveCourse(ctx, &score, courses)
		if err != nil {
			mig.logger.Warn(fmt.Sprintf("quiz score %s: course %q unresolved", score.ID, score.CourseTitle))
			report.SkippedNoCredential++
			continue
		}

		key := holder.ID + "|" + crs.ID
		if prev, ok := best[key]; ok && prev.score.Percentage() >= score.Percentage() {
			continue
		}
		best[key] = resolved{score: score, holder: holder, crs: crs, hmatch: hmatch, cmatch: cmatch}
	}

	for key, r := range best {
		if existing[key] {
			report.SkippedExisting++
			continue
		}

		issued := DateOf(r.score.CreatedAt)
		expiry := issued.AddYears(1)
		holder, crs := r.holder, r.crs
		cert := Certificate{
			ID:          uuid.NewString(),
			Holder:      &holder,
			Credential:  &crs,
			QuizScoreID: r.score.ID,
			IssuedDate:  issued,
			ExpiryDate:  expiry,
			Status:      StatusForDates(expiry, now),
		}
		if _, err = mig.certRepo.CreateCertificate(ctx, cert); err != nil {
			mig.logger.Error(fmt.Sprintf("creating certificate for quiz score %s: %v", r.score.ID, err), err)
			report.Errors = append(report.Errors, RecordError{
				CertificateID: r.score.ID,
				Reason:        fmt.Sprintf("creating certificate: %v", err),
			})
			continue
		}
		report.Created++
		report.HolderMatches[r.hmatch]++
		report.CourseMatches[r.cmatch]++

		mig.repairRelations(ctx, &r.score, r.holder.ID, r.crs.ID)
	}

	mig.logger.Info("migration complete", map[string]interface{}{
		"examined":            report.Examined,
		"created":             report.Created,
		"skippedExisting":     report.SkippedExisting,
		"skippedNotPassing":   report.SkippedNotPassing,
		"skippedNoHolder":     report.SkippedNoHolder,
		"skippedNoCredential": report.SkippedNoCredential,
		"errors":              len(report.Errors),
	})
	return report, nil
}

// FixDates recomputes each certificate's issued/expiry dates from its
// linked quiz score and re-derives the status. Certificates created
// before the issue-date bug was found carry the migration run date
// instead of the score date.
func (mig *Migrator) FixDates(ctx context.Context, now time.Time) (*FixReport, error) {
	report := &FixReport{RunAt: now.UTC()}

	certs, err := mig.certRepo.QueryAllCertificates(ctx)
	if err != nil {
		return report, errors.Wrap(err, "querying certificates")
	}

	for i := range certs {
		cert := &certs[i]
		report.Examined++

		if cert.QuizScoreID == "" {
			report.SkippedNoScore++
			continue
		}
		score, err := mig.quizRepo.GetScoreByID(ctx, cert.QuizScoreID)
		if err != nil {
			if errors.Cause(err) == quiz.ErrNotFound {
				report.SkippedNoScore++
				continue
			}
			report.Errors = append(report.Errors, RecordError{
				CertificateID: cert.ID,
				Reason:        fmt.Sprintf("loading quiz score: %v", err),
			})
			continue
		}

		issued := DateOf(score.UpdatedAt)
		expiry := issued.AddYears(1)
		if cert.IssuedDate.Equal(issued) && cert.ExpiryDate.Equal(expiry) {
			report.SkippedSame++
			continue
		}

		status := StatusForDates(expiry, now)
		if cert.Status.After(status) {
			status = cert.Status // never move a status backward
		}
		if err = mig.certRepo.ResetCertificateDates(ctx, cert.ID, issued, expiry, status); err != nil {
			mig.logger.Error(fmt.Sprintf("resetting dates for certificate %s: %v", cert.ID, err), err)
			report.Errors = append(report.Errors, RecordError{
				CertificateID: cert.ID,
				Reason:        fmt.Sprintf("resetting dates: %v", err),
			})
			continue
		}
		report.Updated++
	}

	mig.logger.Info("date fix complete", map[string]interface{}{
		"examined":       report.Examined,
		"updated":        report.Updated,
		"skippedNoScore": report.SkippedNoScore,
		"skippedSame":    report.SkippedSame,
		"errors":         len(report.Errors),
	})
	return report, nil
}

func (mig *Migrator) existingPairs(ctx context.Context) (map[string]bool, error) {
	certs, err := mig.certRepo.QueryAllCertificates(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying certificates")
	}
	pairs := make(map[string]bool, len(certs))
	for i := range certs {
		if certs[i].HasRefs() {
			pairs[certs[i].Holder.ID+"|"+certs[i].Credential.ID] = true
		}
	}
	return pairs, nil
}

// resolveHolder finds the user a score belongs to: the saved relation
// first, then the denormalized email, then the username.
func (mig *Migrator) resolveHolder(ctx context.Context, score *quiz.Score) (user.User, string, error) {
	if score.UserID != "" {
		usr, err := mig.usrRepo.GetUserByID(ctx, score.UserID)
		if err == nil {
			return usr, matchRelation, nil
		}
	}
	if score.Email != "" {
		usr, err := mig.usrRepo.GetUserByEmail(ctx, core.CleanString(score.Email, true))
		if err == nil {
			return usr, matchEmail, nil
		}
	}
	if score.Username != "" {
		usr, err := mig.usrRepo.GetUserByUsername(ctx, core.CleanString(score.Username))
		if err == nil {
			return usr, matchUsername, nil
		}
	}
	return user.User{}, "", user.ErrNotFound
}

// resolveCourse finds the course a score belongs to: relation, exact
// title, case-insensitive title, then substring either way.
func (mig *Migrator) resolveCourse(ctx context.Context, score *quiz.Score, courses []course.Course) (course.Course, string, error) {
	if score.CourseID != "" {
		crs, err := mig.courseRepo.GetCourseByID(ctx, score.CourseID)
		if err == nil {
			return crs, matchRelation, nil
		}
	}

	title := core.CleanString(score.CourseTitle)
	if title == "" {
		return course.Course{}, "", course.ErrNotFound
	}
	if crs, err := mig.courseRepo.GetCourseByTitle(ctx, title); err == nil {
		return crs, matchExactTitle, nil
	}

	folded := strings.ToLower(title)
	for _, crs := range courses {
		if strings.ToLower(crs.Title) == folded {
			return crs, matchFoldedTitle, nil
		}
	}
	for _, crs := range courses {
		have := strings.ToLower(crs.Title)
		if strings.Contains(have, folded) || strings.Contains(folded, have) {
			return crs, matchSubstringTitle, nil
		}
	}
	return course.Course{}, "", course.ErrNotFound
}

// repairRelations writes resolved relations back onto legacy quiz scores
// so later runs hit the relation path directly. Failures only log; the
// certificate is already created.
func (mig *Migrator) repairRelations(ctx context.Context, score *quiz.Score, userID, courseID string) {
	patch := quiz.Patch{}
	if score.UserID == "" {
		patch.UserID = userID
	}
	if score.CourseID == "" {
		patch.CourseID = courseID
	}
	if !score.IsPassing {
		passing := true
		patch.IsPassing = &passing
	}
	if patch == (quiz.Patch{}) {
		return
	}
	if err := mig.quizRepo.UpdateScore(ctx, score.ID, patch); err != nil {
		mig.logger.Warn(fmt.Sprintf("repairing relations on quiz score %s: %v", score.ID, err))
	}
}
