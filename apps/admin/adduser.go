package main

import (
	"context"

	"github.com/trezcool/registrar/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd string, isAdmin bool) error {
	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if isAdmin {
		nu.Roles = user.AllRoles
	}
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}

	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, nu.Username)
	if err == user.ErrNotFound {
		usr, err = cli.usrSvc.GetByUsernameOrEmail(ctx, nu.Email)
	}
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Username: nu.Username,
			Email:    nu.Email,
		}
	}
	usr.Name = nu.Name
	if isAdmin {
		usr.Roles = nu.Roles
	}
	usr.IsActive = true
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if usr, err = cli.usrSvc.UpdateOrCreate(ctx, usr); err != nil {
		return err
	}
	cli.printf("user %q saved (%s)\n", usr.Name, usr.ID)
	return nil
}
