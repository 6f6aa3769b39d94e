package main

import (
	"courtfetch/cmd/courtfetch/commands"
	"courtfetch/internal/components/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
