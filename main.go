package main

import (
	"os"

	"github.com/smazurov/stereocap/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
