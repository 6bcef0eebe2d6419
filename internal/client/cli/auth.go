package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tokenkeeper/internal/client/client"
	"github.com/dmitrijs2005/tokenkeeper/internal/common"
)

// getSimpleText and getPassword are swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) readCredentials() (string, []byte, error) {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return "", nil, err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return "", nil, err
	}
	return userName, password, nil
}

func (a *App) Ping(ctx context.Context) error {
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	if err := a.client.Ping(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Server is up")
	return nil
}

// Register creates an account. It does not log in.
func (a *App) Register(ctx context.Context) error {
	userName, password, err := a.readCredentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	u, err := a.client.Register(ctx, userName, password)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Registered %s (role %s)\n", u.Username, u.Role)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	userName, password, err := a.readCredentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	if err := a.client.Login(ctx, userName, password); err != nil {
		return err
	}

	a.userName = userName
	fmt.Fprintln(a.out, "Logged in")
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	u, err := a.client.WhoAmI(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "id: %s\nusername: %s\nrole: %s\n", u.ID, u.Username, u.Role)
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	if err := a.client.Refresh(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Tokens refreshed")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if !a.client.IsLoggedIn() {
		return client.ErrNotLoggedIn
	}
	a.client.Logout()
	a.userName = ""
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
