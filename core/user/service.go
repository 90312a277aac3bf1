package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/trezcool/cheti/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		QueryAllUsers(ctx context.Context) ([]User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByUsername(ctx context.Context, username string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUserByUsernameOrEmail(ctx context.Context, username string) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	email := core.CleanString(nu.Email, true /* lower */)
	if _, err := svc.repo.GetUserByEmail(ctx, email); err == nil {
		return User{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	} else if err != ErrNotFound {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  core.CleanString(nu.Username, true),
		Email:     email,
		Agency:    core.CleanString(nu.Agency),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}

	// notify the admin contact; a delivery failure does not fail the registration
	if err := svc.mailSvc.SendMessage(ctx, svc.registrationMail(usr)); err != nil {
		svc.logger.Error(fmt.Sprintf("sending registration notification for user %s: %v", usr.ID, err), err)
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *Service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryAllUsers(ctx)
}

func (svc *Service) registrationMail(usr User) *core.EmailMessage {
	agency := usr.Agency
	if agency == "" {
		agency = "N/A"
	}
	return &core.EmailMessage{
		To:      []mail.Address{svc.conf.AdminContact()},
		Subject: fmt.Sprintf("New User Registration: %s", usr.Username),
		HTMLContent: fmt.Sprintf(
			`<h2>New User Registration</h2>
<p>A new user has registered:</p>
<table>
<tr><td><strong>Username</strong></td><td>%s</td></tr>
<tr><td><strong>Email</strong></td><td>%s</td></tr>
<tr><td><strong>Agency</strong></td><td>%s</td></tr>
</table>`,
			usr.Username, usr.Email, agency,
		),
	}
}
