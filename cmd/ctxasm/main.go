package main

import "ctxasm/internal/cli"

func main() {
	cli.Execute()
}
