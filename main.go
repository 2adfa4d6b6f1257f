package main

import "GusMove/cli"

func main() {
	cli.Execute()
}
