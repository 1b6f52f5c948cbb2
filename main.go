package main

import "github.com/cargo-actions/cargo-cache/cmd"

func main() {
	cmd.Execute()
}
