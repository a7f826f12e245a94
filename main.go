package main

import "github.com/kebairia/sqlbak/cmd"

func main() {
	cmd.Execute()
}
