package main

import "github.com/jmcleod/pagegate/cmd/pagegate/cmd"

func main() {
	cmd.Execute()
}
