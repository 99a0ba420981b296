package main

import (
	"context"

	"github.com/trezcool/registrar/core/user"
)

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	uu := user.UpdateUser{Password: pwd, PasswordConfirm: pwd}
	if err := uu.Validate(usr, cli.validate); err != nil {
		return err
	}
	if _, err := cli.usrSvc.SetPassword(ctx, uname, pwd); err != nil {
		return err
	}
	cli.printf("password of %s updated\n", usr.Username)
	return nil
}
