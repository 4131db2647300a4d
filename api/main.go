package main

import (
	"github.com/joho/godotenv"

	"github.com/squidgyai/hlprovision/api/cmd/hlprovision"
)

func main() {
	_ = godotenv.Load()
	hlprovision.Execute()
}
