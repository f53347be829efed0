package main

import (
	"os"

	"github.com/Lynx96-creator/ets2-mod-api/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
