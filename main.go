package main

import "github.com/majordomo-ai/majordomo/cmd"

func main() {
	cmd.Execute()
}
