// Package cron parses standard 5-field cron expressions into schedules
// the domain schedulers consume. All schedules evaluate in UTC, matching
// the daily-cap rollover.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tontroys3/AutoWebBuilder/internal/registry"
	"github.com/tontroys3/AutoWebBuilder/internal/scheduler"
)

type Parser struct {
	parser cron.Parser
}

var _ registry.CronParser = (*Parser)(nil)

func NewParser() *Parser {
	return &Parser{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

func (p *Parser) Parse(expression string) (scheduler.CronSchedule, error) {
	sched, err := p.parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}
	return &schedule{sched: sched}, nil
}

type schedule struct {
	sched cron.Schedule
}

func (s *schedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.UTC())
}
