// Package main provides the entry point for the kestrel CLI.
package main

import (
	"os"

	"github.com/kestrelsearch/kestrel/cmd/kestrel/cmd"
)

func main() {
	err := cmd.Execute()
	os.Exit(cmd.ExitCodeForError(err))
}
