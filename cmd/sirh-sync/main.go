package main

import (
	"os"
)

// @title SIRH Sync API
// @version 1.0.0
// @description Synchronizes SIRH training session rosters into course enrolments.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	os.Exit(execute())
}
