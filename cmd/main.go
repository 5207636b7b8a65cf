package main

import (
	"log"

	"github.com/jaennil/guide_helper/backend/tileanim/internal/app"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	app.Run(cfg)
}
