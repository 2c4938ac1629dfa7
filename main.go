package main

import "github.com/wheelhouse-index/wheelhouse/cmd"

func main() {
	cmd.Execute()
}
