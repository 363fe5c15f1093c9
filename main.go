package main

import "github.com/Daasin/upgrade/internal/cli"

func main() {
	cli.Execute()
}
