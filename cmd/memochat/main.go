package main

import "github.com/felixgeelhaar/memochat/cmd/memochat/cli"

func main() {
	cli.Execute()
}
