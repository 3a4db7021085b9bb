package main

import "banking-ledger/cmd"

func main() {
	cmd.Execute()
}
