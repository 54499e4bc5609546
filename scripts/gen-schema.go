//go:build ignore

// Regenerates the scripted-action schema embedded in pkg/script.
// Run from the repo root: go run scripts/gen-schema.go
package main

import (
	"fmt"
	"os"

	"github.com/playctl/playctl/pkg/script"
)

func main() {
	data, err := script.GenerateJSONSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile("pkg/script/schema.json", data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote pkg/script/schema.json")
}
