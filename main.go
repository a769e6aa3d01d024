package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"tapedeck/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
