package main

import "github.com/bryanchriswhite/WinPeek/cmd/winpeek/commands"

func main() {
	commands.Execute()
}
