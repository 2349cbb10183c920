// The main package for the price-error-watch executable.
package main

import "github.com/JakeFAU/price-error-watch/cmd"

func main() {
	cmd.Execute()
}
