package main

import "github.com/ValentinKolb/tks/cmd"

func main() {
	cmd.Execute()
}
