package main

import "github.com/audiolibrelab/soundboard/cmd"

func main() {
	cmd.Execute()
}
