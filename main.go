package main

import (
	"github.com/trieste/parley/cmd"
)

func main() {
	cmd.Execute()
}
