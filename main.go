package main

import "price-track-alerts/internal/cli"

func main() {
	cli.Execute()
}
