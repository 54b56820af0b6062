package main

import "github.com/frahmantamala/cardspend/cmd"

func main() {
	cmd.Execute()
}
