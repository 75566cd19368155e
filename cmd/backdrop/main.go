package main

import "github.com/bryanchriswhite/Backdrop/cmd/backdrop/commands"

func main() {
	commands.Execute()
}
