package main

import "github.com/Sentinel-Gate/docgate/cmd/docgate/cmd"

func main() {
	cmd.Execute()
}
