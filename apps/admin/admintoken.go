package main

import (
	"fmt"

	"github.com/laurinbuild/kantine/core/staff"
)

func (cli *commandLine) adminToken() error {
	token, err := staff.GenerateToken()
	if err != nil {
		return err
	}
	fmt.Println("Admin token :", token)
	fmt.Println("Fingerprint :", staff.Fingerprint(token))
	fmt.Println("Set ADMIN_SECRET_KEY to this token and restart the API.")
	return nil
}
