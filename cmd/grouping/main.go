package main

import "github.com/crimson-sun/grouping/internal/cmd"

func main() {
	cmd.Execute()
}
