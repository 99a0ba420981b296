package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/user"
)

// userKey is where the detail endpoints find the user resolved from `:id`.
const userKey = "targetUser"

const passwordResetSent = "If the email address supplied is associated with an active account on this system, " +
	"an email will arrive in your inbox shortly with instructions to reset your password."

var (
	errTargetUserMissing = errors.New("target user not set on echo.Context")
	errRolesAboveOwn     = "not enough rights to set these roles"
)

type userApi struct {
	auth     *authenticator
	users    *user.Service
	resetter *user.PasswordResetter
	validate *validator.Validate
	logger   core.Logger
}

func registerUserAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	users *user.Service,
	resetter *user.PasswordResetter,
	validate *validator.Validate,
	logger core.Logger,
) {
	api := userApi{auth: auth, users: users, resetter: resetter, validate: validate, logger: logger}
	admin := adminMiddleware()

	ug := g.Group("/users")
	ug.POST("/login", api.login)
	ug.POST("/password-reset", api.requestPasswordReset)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)

	ag := ug.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/roles", api.roles, admin)
	ag.GET("", api.list, admin)
	ag.POST("/register", api.register, admin)
	ag.DELETE("", api.removeMany, admin)

	dg := ag.Group("/:id", api.resolveTarget())
	dg.GET("", api.detail)
	dg.PUT("", api.edit)
	dg.DELETE("", api.remove, admin)
}

// Session

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := api.auth.authenticate(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	return api.respondToken(ctx, func() (string, error) { return api.auth.generateToken(claims) })
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	return api.respondToken(ctx, func() (string, error) { return api.auth.refreshToken(ctx) })
}

func (api *userApi) respondToken(ctx echo.Context, issue func() (string, error)) error {
	token, err := issue()
	if err != nil {
		return errors.Wrap(err, "issuing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

// Password reset

func (api *userApi) requestPasswordReset(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// same answer whether or not the account exists
	err := api.resetter.RequestPasswordReset(ctx.Request().Context(), data.Email)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		api.logger.Error("requesting password reset", err)
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: passwordResetSent})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if _, err := api.resetter.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

// Accounts

func (api *userApi) roles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) list(ctx echo.Context) error {
	var filter user.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.users.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.checkGrantable(ctx, data.Roles); err != nil {
		return err
	}

	usr, err := api.users.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) detail(ctx echo.Context) error {
	target, err := targetUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, target)
}

func (api *userApi) edit(ctx echo.Context) error {
	target, err := targetUser(ctx)
	if err != nil {
		return err
	}
	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	me, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	// non admins may only change their name & password
	if !me.IsAdmin() && (data.IsActive != nil || data.Roles != nil || data.Username != "" || data.Email != "") {
		return errHttpForbidden
	}
	if err := data.Validate(target, api.validate); err != nil {
		return err
	}
	if err := api.checkGrantable(ctx, data.Roles); err != nil {
		return err
	}

	usr, err := api.users.Update(ctx.Request().Context(), target.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) remove(ctx echo.Context) error {
	target, err := targetUser(ctx)
	if err != nil {
		return err
	}
	return api.deleteUsers(ctx, target.ID)
}

func (api *userApi) removeMany(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if len(query.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}
	return api.deleteUsers(ctx, query.IDs...)
}

// deleteUsers deletes ids, refusing outright when the caller is among them.
func (api *userApi) deleteUsers(ctx echo.Context, ids ...string) error {
	me, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	for _, id := range ids {
		if id == me.ID {
			return errHttpForbidden
		}
	}
	if err := api.users.Delete(ctx.Request().Context(), ids...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// checkGrantable rejects roles ranking above the caller's highest role.
func (api *userApi) checkGrantable(ctx echo.Context, roles []string) error {
	me, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if user.MaxRolePriority(roles) > user.MaxRolePriority(me.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errRolesAboveOwn})
	}
	return nil
}

// resolveTarget loads the `:id` user for admins and for the user themselves. Anyone else gets a 404.
func (api *userApi) resolveTarget() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			me, err := api.auth.contextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			id := ctx.Param("id")
			if id != me.ID && !me.IsAdmin() {
				return errHttpNotFound
			}

			target, err := api.users.GetByID(ctx.Request().Context(), id)
			switch {
			case errors.Cause(err) == user.ErrNotFound:
				return errHttpNotFound
			case err != nil:
				return errors.Wrap(err, "finding user by ID")
			}
			ctx.Set(userKey, target)
			return next(ctx)
		}
	}
}

func targetUser(ctx echo.Context) (user.User, error) {
	target, ok := ctx.Get(userKey).(user.User)
	if !ok {
		return user.User{}, errTargetUserMissing
	}
	return target, nil
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
