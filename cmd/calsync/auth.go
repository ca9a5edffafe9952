package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"calsync/internal/config"
	"calsync/internal/google"
	appLog "calsync/internal/log"
)

type authCommand struct {
	app *app

	Code string `long:"code" description:"Authorization code (prompted for when absent)"`
}

func (c *authCommand) Execute(_ []string) error {
	// The feed may still be unset on a first run.
	cfg, err := config.Load(c.app.opts.Config)
	if err != nil {
		return err
	}
	auth, err := google.LoadAuth(cfg.Google.Credentials, cfg.Google.Token)
	if err != nil {
		return err
	}

	code := strings.TrimSpace(c.Code)
	if code == "" {
		fmt.Fprintf(c.app.stdout, "Open this URL, allow access and paste the code below:\n\n%s\n\ncode: ",
			auth.AuthCodeURL("calsync"))
		sc := bufio.NewScanner(c.app.stdin)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return err
			}
			return errors.New("no authorization code given")
		}
		code = strings.TrimSpace(sc.Text())
	}
	if code == "" {
		return errors.New("no authorization code given")
	}

	if _, err := auth.Exchange(c.app.ctx, code); err != nil {
		return err
	}
	appLog.Info("token stored", "path", cfg.Google.Token)
	return nil
}
