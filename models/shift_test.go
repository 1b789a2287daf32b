package models_test

import (
	"errors"
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/models"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
)

func TestShiftLifecycle(t *testing.T) {
	ctx := setupTestDB(t)

	current, err := models.CurrentShift(ctx)
	if err != nil {
		t.Fatalf("CurrentShift: %v", err)
	}
	if current != nil {
		t.Fatalf("expected no active shift, got %+v", current)
	}
	if _, err := models.EndShift(ctx); !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("ending without a shift: expected CONFLICT, got %v", err)
	}

	started, err := models.StartShift(ctx)
	if err != nil {
		t.Fatalf("StartShift: %v", err)
	}
	if started.Status != models.ShiftStatusActive || started.EndedAt != nil {
		t.Fatalf("unexpected new shift: %+v", started)
	}
	if _, err := models.StartShift(ctx); !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("second start: expected CONFLICT, got %v", err)
	}

	current, err = models.CurrentShift(ctx)
	if err != nil {
		t.Fatalf("CurrentShift: %v", err)
	}
	if current == nil || current.ID != started.ID {
		t.Fatalf("current shift should be %s, got %+v", started.ID, current)
	}

	ended, err := models.EndShift(ctx)
	if err != nil {
		t.Fatalf("EndShift: %v", err)
	}
	if ended.ID != started.ID || ended.Status != models.ShiftStatusEnded || ended.EndedAt == nil {
		t.Fatalf("shift not ended: %+v", ended)
	}
	if n := countEvents(t, models.EventShiftEnded, ended.ID); n != 1 {
		t.Fatalf("expected one shift.ended event, got %d", n)
	}
	if _, err := models.EndShift(ctx); !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("ending twice: expected CONFLICT, got %v", err)
	}

	// a new shift may start once the previous one ended
	next, err := models.StartShift(ctx)
	if err != nil {
		t.Fatalf("StartShift after end: %v", err)
	}
	shifts, err := models.ListShifts(ctx, 0)
	if err != nil {
		t.Fatalf("ListShifts: %v", err)
	}
	if len(shifts) != 2 || shifts[0].ID != next.ID {
		t.Fatalf("expected newest shift first, got %d shifts", len(shifts))
	}
}

func TestConcurrentShiftStartsLeaveOneActive(t *testing.T) {
	ctx := setupTestDB(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = models.StartShift(ctx)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		if !errors.Is(err, utils.ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one successful start, got %d", ok)
	}
	var active int64
	if err := config.GetDB().Model(&models.Shift{}).Where("status = ?", models.ShiftStatusActive).Count(&active).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected one active shift, got %d", active)
	}
}

func TestGetShiftNotFound(t *testing.T) {
	ctx := setupTestDB(t)

	if _, err := models.GetShift(ctx, "missing"); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
