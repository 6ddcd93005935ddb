package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) resetPIN(userID int, pin string) error {
	ctx := context.Background()
	if err := cli.usrSvc.ResetPIN(ctx, userID, pin); err != nil {
		return err
	}
	fmt.Printf("PIN reset for user #%d\n", userID)
	return nil
}
