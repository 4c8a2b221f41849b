package main

import (
	"log"

	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/database"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/env"
)

// Applies the schema to the configured database and exits. Deployments run
// this before rolling the service so AutoMigrate never races two instances.
func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	log.Println("schema up to date")
}
