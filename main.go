package main

import "github.com/ridoystarlord/schemaengine/cmd"

func main() {
	cmd.Execute()
}
