package main

import "github.com/signalgate/signalgate/cmd/signalgate/cmd"

func main() {
	cmd.Execute()
}
