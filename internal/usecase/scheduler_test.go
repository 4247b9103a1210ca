package usecase

import (
	"context"
	"errors"
	"testing"
	"time"
)

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunsJobAndSurvivesErrors(t *testing.T) {
	t.Parallel()

	driver := &manualDriver{}
	var runs int
	s := NewScheduler(driver, func(context.Context, time.Time) error {
		runs++
		if runs == 1 {
			return errors.New("source offline")
		}
		return nil
	}, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	driver.job(time.Now())
	driver.job(time.Now())
	if runs != 2 {
		t.Fatalf("expected 2 runs, got %d", runs)
	}

	if err := s.Stop(context.Background()); err != nil || !driver.stopped {
		t.Fatalf("stop: err=%v stopped=%v", err, driver.stopped)
	}
}

func TestSchedulerWithoutDriverIsNoop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, nil, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
