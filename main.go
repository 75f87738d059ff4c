package main

import (
	"github.com/sidkik/sandboxsync/cmd"
	"github.com/sidkik/sandboxsync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
