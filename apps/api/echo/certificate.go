package echoapi

import (
	"net/http"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
)

type certificateApi struct {
	svc        *certificate.Service
	mig        *certificate.Migrator
	validate   *validator.Validate
	translator ut.Translator
}

func registerCertificateAPI(
	g *echo.Group,
	svc *certificate.Service,
	mig *certificate.Migrator,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := certificateApi{
		svc:        svc,
		mig:        mig,
		validate:   validate,
		translator: translator,
	}

	cg := g.Group("/certificates")
	cg.GET("", api.query)
	// GET so the external scheduler can hit it with a plain cron fetch
	cg.GET("/check-expiry", api.checkExpiry)
	cg.POST("/check-user", api.checkUser)
	cg.POST("/migrate", api.migrate)
	cg.POST("/fix-dates", api.fixDates)
}

// Handlers

func (api *certificateApi) query(ctx echo.Context) error {
	certs, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying certificates")
	}
	return ctx.JSON(http.StatusOK, certs)
}

func (api *certificateApi) checkExpiry(ctx echo.Context) error {
	report, err := api.svc.RunPass(ctx.Request().Context(), time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "running lifecycle pass")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *certificateApi) checkUser(ctx echo.Context) error {
	var data CheckUserRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckUserRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	report, err := api.svc.CheckHolder(ctx.Request().Context(), data.Email, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "checking holder certificates")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *certificateApi) migrate(ctx echo.Context) error {
	report, err := api.mig.Migrate(ctx.Request().Context(), time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "migrating quiz scores")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *certificateApi) fixDates(ctx echo.Context) error {
	report, err := api.mig.FixDates(ctx.Request().Context(), time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "fixing certificate dates")
	}
	return ctx.JSON(http.StatusOK, report)
}

// Bindings

type CheckUserRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (cr *CheckUserRequest) Validate(validate *validator.Validate) error {
	cr.Email = core.CleanString(cr.Email, true /* lower */)
	return validate.Struct(cr)
}
