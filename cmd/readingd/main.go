// Command readingd serves the reading attendance API and runs its scheduled
// maintenance jobs.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/readingattendance/readingd/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "readingd: load .env: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd(config.Load).Execute(); err != nil {
		os.Exit(1)
	}
}
