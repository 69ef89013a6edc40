// Package main provides callctl, the operator CLI for the call gateway.
//
// Usage:
//
//	callctl migrate
//	callctl customer add --name ... --phone ... --card ... --street ... --city ... --state ... --zip ...
//	callctl segment <file.wav>
//
// Connection settings come from the same environment (or .env) as the server.
package main

import (
	"fmt"
	"os"

	"github.com/yoockh/callgate/app/callctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
