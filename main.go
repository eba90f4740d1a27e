package main

import "vdi-inventory/cmd"

func main() {
	cmd.Execute()
}
