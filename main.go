package main

import "github.com/KaramelBytes/ckmtox/cmd"

func main() {
	cmd.Execute()
}
