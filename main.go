// The main package for the scraper executable.
package main

import (
	"github.com/Kismat-adhikari/website-scrapper/cmd"
)

func main() {
	cmd.Execute()
}
