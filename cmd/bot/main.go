package main

import "github.com/azure/follower-milestone-bot/internal/cli"

func main() {
	cli.Execute()
}
