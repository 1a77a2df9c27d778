package main

import "listing-radar/internal/cli"

func main() {
	cli.Execute()
}
