package main

import (
	"inboxdigest/cmd/handlers"
	"inboxdigest/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
