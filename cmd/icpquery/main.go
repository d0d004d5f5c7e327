package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"icpquery/internal/services"
)

func main() {
	err := newRootCommand().Execute()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "icpquery: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode separates operator mistakes (2) from runtime failures (1).
// Interrupted commands exit 130 like a shell reports SIGINT.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, services.ErrConfiguration), errors.Is(err, services.ErrValidation):
		return 2
	default:
		return 1
	}
}
