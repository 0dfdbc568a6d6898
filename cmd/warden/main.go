// warden — security mediation layer for LLM agent actions.
package main

import "github.com/adaptsec/warden/internal/cli"

func main() {
	cli.Execute()
}
