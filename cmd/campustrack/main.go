package main

import (
	// Importing the package to automatically set GOMAXPROCS.
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/autopeer-io/campustrack/cmd/campustrack/app"
)

func main() {
	app.NewApp().Run()
}
