// Command gridctl runs maintenance tasks and tries formulas from the shell.
//
// Usage:
//
//	gridctl migrate-formulas
//	gridctl type <table-id> <formula>
//	gridctl eval <formula>
//	gridctl functions [--category text]
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
