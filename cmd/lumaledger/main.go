package main

import "github.com/satoshipuzzles/lumaledger/internal/cli"

func main() {
	cli.Execute()
}
