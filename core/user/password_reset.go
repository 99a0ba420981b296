package user

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

// ResetUserPassword is the payload of a password reset confirmation.
type ResetUserPassword struct {
	Token           string `json:"token" validate:"required"`
	UID             string `json:"uid" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	rp.Token = core.CleanString(rp.Token)
	rp.UID = core.CleanString(rp.UID)
	return validate.Struct(rp)
}

var pwdRuleTexts = map[string]string{
	pwdMinLenTag:     pwdMinLenText,
	pwdNoSpaceTag:    pwdNoSpaceText,
	pwdNotAllNumTag:  pwdNotAllNumText,
	pwdComplexityTag: pwdComplexityText,
	pwdAttrSimTag:    pwdAttrSimText,
	pwdNoCommonTag:   pwdNoCommonText,
}

// PasswordResetter emails reset links to active users and sets the new password once the link is used.
type PasswordResetter struct {
	users   *Service
	mailer  core.EmailService
	tokens  tokenGenerator
	baseURL string
	appName string
}

func NewPasswordResetter(users *Service, mailer core.EmailService, conf *core.Config) *PasswordResetter {
	return &PasswordResetter{
		users:   users,
		mailer:  mailer,
		tokens:  tokenGenerator{secret: conf.SecretKey, timeout: conf.PasswordResetTimeoutDelta},
		baseURL: conf.FrontendBaseURL,
		appName: conf.AppName,
	}
}

// RequestPasswordReset sends a reset link to the active user with this email. Returns ErrNotFound otherwise.
func (pr *PasswordResetter) RequestPasswordReset(ctx context.Context, email string) error {
	email = core.CleanString(email, true /* lower */)
	users, err := pr.users.all(ctx)
	if err != nil {
		return err
	}
	for _, usr := range users {
		if usr.Email != "" && usr.Email == email && usr.IsActive {
			pr.mailer.SendMessages(pr.resetMessage(usr))
			return nil
		}
	}
	return ErrNotFound
}

func (pr *PasswordResetter) resetMessage(usr User) *core.EmailMessage {
	link := fmt.Sprintf("%s/password-reset-confirm?%s", pr.baseURL, url.Values{
		"uid":   {EncodeUID(usr)},
		"token": {pr.tokens.makeToken(usr)},
	}.Encode())
	return &core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Password reset",
		Body: fmt.Sprintf("Hello %s,\n"+
			"You're receiving this email because you requested a password reset for your %s account.\n"+
			"Please go to the following page and choose a new password:\n"+
			"%s\n"+
			"Your username, in case you've forgotten: %s\n"+
			"If you did not request it, you can ignore this email.",
			usr.Name, pr.appName, link, usr.Username),
	}
}

// ResetPassword checks the uid & token of a reset link and sets the new password.
// A bad link or a password breaking the policy is reported as a *core.ValidationError.
func (pr *PasswordResetter) ResetPassword(ctx context.Context, data ResetUserPassword) (User, error) {
	invalid := func(err error) (User, error) {
		return User{}, core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
	}

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalid(errInvalidToken)
	}
	usr, err := pr.users.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalid(errInvalidToken)
		}
		return User{}, err
	}
	if !usr.IsActive {
		return invalid(errInvalidToken)
	}
	if err := pr.tokens.verifyToken(usr, data.Token); err != nil {
		return invalid(err)
	}

	if tag := passwordPolicyViolation(data.Password, usr.Name, usr.Username, usr.Email); tag != "" {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "password", Error: pwdRuleTexts[tag]})
	}
	if err := usr.SetPassword(data.Password); err != nil {
		return User{}, err
	}
	usr.UpdatedAt = nowFunc().UTC()
	if err := pr.users.save(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "resetting password")
	}
	return usr, nil
}
