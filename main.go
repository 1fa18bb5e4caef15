package main

import "github.com/inference-dispatch/inference-dispatch/cmd"

func main() {
	cmd.Execute()
}
