package main

import "github.com/planguard/planguard/internal/cli"

func main() {
	cli.Execute()
}
