package main

import (
	"fmt"
	"os"

	"github.com/cur1osus/manager-for-userbot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
