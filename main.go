package main

import "github.com/nextlevelbuilder/mirrorpair/cmd"

func main() {
	cmd.Execute()
}
