package main

import "github.com/blossomhq/campaign-engine/cmd"

func main() {
	cmd.Execute()
}
