package main

import (
	"bgageek-backend/cmd/bgageek/commands"
	"bgageek-backend/internal/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
