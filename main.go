package main

import "github.com/maastricht-university/edmo-emotion/cli"

func main() {
	cli.Main()
}
