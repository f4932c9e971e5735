package main

import (
	"ath-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
