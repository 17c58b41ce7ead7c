package main

import "github.com/aussiebroadwan/authsession/cmd/sessionctl/cmd"

func main() {
	cmd.Execute()
}
