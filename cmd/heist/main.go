package main

import "github.com/jmcleod/heist/cmd/heist/cmd"

func main() {
	cmd.Execute()
}
