// smartermodel serves an in-memory SQL database over the PostgreSQL wire
// protocol and translates SQL between the dialects the drivers speak.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
