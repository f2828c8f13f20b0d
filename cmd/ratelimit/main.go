package main

import "github.com/ryhazerus/ratelimit/cmd/ratelimit/cmd"

func main() {
	cmd.Execute()
}
