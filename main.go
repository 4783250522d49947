package main

import "github.com/kozaktomas/face-identity/cmd"

func main() {
	cmd.Execute()
}
