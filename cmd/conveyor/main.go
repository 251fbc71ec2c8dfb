package main

import "conveyor/internal/cli"

func main() {
	cli.Execute()
}
