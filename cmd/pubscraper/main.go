package main

import "github.com/JakeFAU/hiparis-pubscraper/cmd"

func main() {
	cmd.Execute()
}
