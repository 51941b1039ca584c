package main

import "github.com/andresmejia3/human4d/cmd"

func main() {
	cmd.Execute()
}
