package main

import "squadup-backend/cmd"

func main() {
	cmd.Run()
}
