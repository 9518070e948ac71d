package main

import "github.com/impet14/inverter-automator/cmd"

func main() {
	cmd.Execute()
}
