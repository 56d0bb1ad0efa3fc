package cmd

import (
	"fmt"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

const banner = `
  _____                  _____       _
 |  __ \                / ____|     | |
 | |__) |_ _  __ _  ___| |  __  __ _| |_ ___
 |  ___/ _` + "`" + ` |/ _` + "`" + ` |/ _ \ | |_ |/ _` + "`" + ` | __/ _ \
 | |  | (_| | (_| |  __/ |__| | (_| | ||  __/
 |_|   \__,_|\__, |\___|\_____|\__,_|\__\___|
              __/ |
             |___/
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Encrypted Content Gate - Version %s\x1b[0m\n\n", Version)
}
