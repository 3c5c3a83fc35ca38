package main

import "github.com/nextlevelbuilder/rooksync/cmd"

func main() {
	cmd.Execute()
}
