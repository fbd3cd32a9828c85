package main

import (
	"github.com/Wieedze/intuition-fee-proxy/cmd/feeproxy/commands"
)

func main() {
	commands.Execute()
}
