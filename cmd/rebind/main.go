package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"rebind/internal/diag"
)

func main() {
	// Last-resort handler: any panic nothing else caught still produces a
	// diagnostic log before the process exits.
	defer func() {
		if r := recover(); r != nil {
			svc := diag.New()
			path, err := svc.Write(diag.Report{
				Class:   diag.ClassUncaught,
				Message: fmt.Sprint(r),
			})
			if err == nil {
				fmt.Fprintf(os.Stderr, "rebind: unexpected failure, diagnostic log written to %s\n", path)
			} else {
				fmt.Fprintf(os.Stderr, "rebind: unexpected failure: %v\n", r)
			}
			os.Exit(2)
		}
	}()

	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
