package main

import (
	"context"
	"os"

	"github.com/askql/askql/internal/cli"
)

func main() {
	code := cli.Run(context.Background(), os.Args[1:], cli.Options{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	os.Exit(code)
}
