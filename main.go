package main

import "crmai/cmd"

func main() {
	cmd.Execute()
}
