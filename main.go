package main

import "github.com/Layr-Labs/feeledger/cmd"

func main() {
	cmd.Execute()
}
