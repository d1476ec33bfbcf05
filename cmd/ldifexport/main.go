// ldifexport exports directory entries to LDIF.
package main

import (
	"os"

	"github.com/hupe1980/ldifexport/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
