package main

import (
	"fmt"
	"os"

	cmd "github.com/finlex/docindexer/cmd/docindexer"
)

var version = "dev"

func main() {
	cmd.SetVersion(version)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
