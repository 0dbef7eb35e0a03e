package main

import (
	"bus-ticketing/cmd"
)

func main() {
	cmd.Start()
}
