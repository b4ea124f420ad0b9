// Command gold-scalper runs the XAUUSD scalping decision loop and the
// trade follow-up.
package main

import (
	"os"

	// Europe/Paris must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"gold-scalper/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
