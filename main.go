package main

import "github.com/reigadegr/cc-proxy-go/cmd"

func main() {
	cmd.Execute()
}
