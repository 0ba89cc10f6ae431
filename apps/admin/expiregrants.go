package main

import (
	"context"
	"fmt"
	"time"
)

func (cli *commandLine) expireGrants() error {
	n, err := cli.bgSvc.ExpireStale(context.Background(), time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d break-glass grant(s) expired\n", n)
	return nil
}
