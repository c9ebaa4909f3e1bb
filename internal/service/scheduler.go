package service

import (
	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
)

func NewScheduler() gocron.Scheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal("creating scheduler", "err", err)
	}
	return scheduler
}
