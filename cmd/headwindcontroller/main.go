// Package main provides the entrypoint for the headwind-controller binary.
package main

import (
	"fmt"
	"os"

	_ "net/http/pprof"

	controller "github.com/headwind-sh/headwind/internal/cmd/controller"
)

func main() {
	if err := controller.App().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
