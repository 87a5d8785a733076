package main

import "github.com/smallbiznis/meterbill/internal/cli"

func main() {
	cli.Execute()
}
