package main

import "github.com/your-org/doorguard/internal/cli"

func main() {
	cli.Execute()
}
