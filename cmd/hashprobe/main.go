package main

import "github.com/MeKo-Tech/hashprobe/cmd/hashprobe/cmd"

func main() {
	cmd.Execute()
}
