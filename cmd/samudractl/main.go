package main

import "github.com/samudra-erp/samudra-erp/cmd/samudractl/cli"

func main() {
	cli.Execute()
}
