package main

import "github.com/nfrund/chatterbox/cmd/chatterbox/cmd"

func main() {
	cmd.Execute()
}
