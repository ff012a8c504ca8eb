package main

import "github.com/cendari/cendari-auth/cmd/cendari-auth/cmd"

func main() {
	cmd.Execute()
}
