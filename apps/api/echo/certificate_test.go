package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/cheti/apps/api/echo"
	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/core/course"
	"github.com/trezcool/cheti/core/quiz"
	"github.com/trezcool/cheti/core/user"
	emailsvc "github.com/trezcool/cheti/services/email"
	inmemdb "github.com/trezcool/cheti/storage/database/inmem"
	testutil "github.com/trezcool/cheti/tests"
)

type apiFixture struct {
	server   *echoapi.Server
	certRepo certificate.Repository
	usrRepo  user.Repository
	crsRepo  course.Repository
	quizRepo quiz.Repository
	mailSvc  *emailsvc.ConsoleServiceMock

	holder user.User
	crs    course.Course
}

func setup(t *testing.T) *apiFixture {
	t.Helper()

	db, err := inmemdb.Open()
	require.NoError(t, err)

	conf := testutil.NewConfig()
	conf.Debug = false // exercise the production error bodies

	f := &apiFixture{
		certRepo: inmemdb.NewCertificateRepository(db),
		usrRepo:  inmemdb.NewUserRepository(db),
		crsRepo:  inmemdb.NewCourseRepository(db),
		quizRepo: inmemdb.NewQuizRepository(db),
		mailSvc:  emailsvc.NewConsoleServiceMock(conf),
	}

	logger := testutil.NewLogger()
	certSvc := certificate.NewService(f.certRepo, f.crsRepo, f.mailSvc, logger, conf)
	mig := certificate.NewMigrator(f.certRepo, f.usrRepo, f.crsRepo, f.quizRepo, logger, conf)
	usrSvc := user.NewService(f.usrRepo, f.mailSvc, logger, conf)

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)

	f.server = echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		CertSvc:    certSvc,
		Migrator:   mig,
		UserSvc:    usrSvc,
		Validate:   validate,
		Translator: translator,
	})

	f.holder = testutil.CreateUser(t, f.usrRepo, "Jane Doe", "jane", "jane@test.local", "", true)
	f.crs = testutil.CreateCourse(t, f.crsRepo, "Forklift Safety")
	testutil.Enroll(t, f.crsRepo, f.crs.ID, f.holder.ID)
	return f
}

func (f *apiFixture) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestHome(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Cheti API!", rec.Body.String())
}

func TestCheckExpiryEndpoint(t *testing.T) {
	f := setup(t)
	expiry := certificate.DateOf(time.Now().UTC()).AddDays(7)
	testutil.CreateCertificate(t, f.certRepo, &f.holder, &f.crs, expiry.AddYears(-1), expiry, certificate.StatusActive)

	rec := f.do(http.MethodGet, "/v1/certificates/check-expiry", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report certificate.PassReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Notified)
	assert.Empty(t, report.Errors)
	assert.Len(t, f.mailSvc.SentMessages, 2)
}

func TestCheckUserEndpoint(t *testing.T) {
	t.Run("returns a per-certificate report", func(t *testing.T) {
		f := setup(t)
		expiry := certificate.DateOf(time.Now().UTC()).AddDays(30)
		testutil.CreateCertificate(t, f.certRepo, &f.holder, &f.crs, expiry.AddYears(-1), expiry, certificate.StatusActive)

		body := []byte(`{"email": "Jane@test.local"}`)
		rec := f.do(http.MethodPost, "/v1/certificates/check-user", body)
		require.Equal(t, http.StatusOK, rec.Code)

		var report certificate.HolderReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, "jane@test.local", report.Email)
		require.Len(t, report.Certificates, 1)
		assert.True(t, report.Certificates[0].Sent)
	})

	t.Run("rejects a missing or malformed email", func(t *testing.T) {
		f := setup(t)

		for body, wantErr := range map[string]string{
			`{}`:                     "this field is required",
			`{"email": "not-an-em"}`: "email must be a valid email address",
		} {
			rec := f.do(http.MethodPost, "/v1/certificates/check-user", []byte(body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var fldErrs map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fldErrs))
			assert.Equal(t, wantErr, fldErrs["email"])
		}
	})
}

func TestMigrateEndpoint(t *testing.T) {
	f := setup(t)
	testutil.CreateQuizScore(t, f.quizRepo, quiz.Score{
		Score: 8, TotalQuestions: 10,
		UserID: f.holder.ID, CourseID: f.crs.ID,
	}, time.Now().UTC().AddDate(0, -1, 0))

	rec := f.do(http.MethodPost, "/v1/certificates/migrate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report certificate.MigrationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Created)

	certs, rErr := f.certRepo.QueryAllCertificates(context.Background())
	require.NoError(t, rErr)
	assert.Len(t, certs, 1)
}

func TestQueryEndpoint(t *testing.T) {
	f := setup(t)
	expiry := certificate.DateOf(time.Now().UTC()).AddDays(90)
	testutil.CreateCertificate(t, f.certRepo, &f.holder, &f.crs, expiry.AddYears(-1), expiry, certificate.StatusActive)

	rec := f.do(http.MethodGet, "/v1/certificates", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var certs []certificate.Certificate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &certs))
	require.Len(t, certs, 1)
	assert.Equal(t, f.holder.ID, certs[0].Holder.ID)
}
