package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

type newUserArgs struct {
	name, uname, email, pwd string
	isAdmin, isFaculty      bool
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(a newUserArgs) error {
	ctx := context.Background()
	uname := core.CleanString(a.uname, true /* lower */)
	email := core.CleanString(a.email, true /* lower */)

	idents := make([]string, 0, 2)
	for _, id := range []string{uname, email} {
		if id != "" {
			idents = append(idents, id)
		}
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: idents})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		usr = user.User{
			Username:  uname,
			Email:     email,
			CreatedAt: now,
		}
	}
	if name := core.CleanString(a.name); name != "" {
		usr.Name = name
	} else if usr.Name == "" {
		usr.Name = idents[0]
	}

	switch {
	case a.isAdmin:
		usr.Roles = user.AdminRoles
	case a.isFaculty:
		usr.Roles = []string{user.RoleFaculty}
	}
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	if err := usr.SetPassword(a.pwd); err != nil {
		return err
	}

	if usr, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %s saved (id: %s)\n", usr.Username, usr.ID)
	return nil
}
