package main

import (
	"fmt"
	"os"

	"github.com/dzli1/blocking/internal/blocker/cli"
)

// version is stamped by the linker at release time.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "blockingd:", err)
		os.Exit(1)
	}
}
