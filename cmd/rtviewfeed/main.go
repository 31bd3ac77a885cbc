package main

import "github.com/illmade-knight/rtview-feed/cmd"

func main() {
	cmd.Execute()
}
