package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) setTheme(name string) error {
	st, err := cli.themeSvc.Set(context.Background(), name)
	if err != nil {
		return err
	}
	fmt.Printf("Theme set to %q (version %s)\n", st.Name, st.Version)
	return nil
}
