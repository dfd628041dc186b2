package main

import "github.com/alfdav/tempfox/cmd"

func main() {
	cmd.Execute()
}
