package main

import "github.com/killallgit/vidchat/cmd"

func main() {
	cmd.Execute()
}
