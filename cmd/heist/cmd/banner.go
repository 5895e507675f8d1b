package cmd

import (
	"io"

	"github.com/fatih/color"
)

const banner = `
  _   _ _____ ___ ____ _____
 | | | | ____|_ _/ ___|_   _|
 | |_| |  _|  | |\___ \ | |
 |  _  | |___ | | ___) || |
 |_| |_|_____|___|____/ |_|

`

var (
	blue  = color.New(color.FgBlue)
	green = color.New(color.FgGreen)
)

func printBanner(w io.Writer) {
	blue.Fprint(w, banner)
	green.Fprintf(w, "  Bank Heist CTF - Version %s\n\n", Version)
}
