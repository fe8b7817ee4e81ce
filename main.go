package main

import (
	"os"

	"github.com/libbundler/libbundler/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
