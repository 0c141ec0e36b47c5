package main

import "github.com/cqlwire/cqlwire/cmd"

func main() {
	cmd.Execute()
}
