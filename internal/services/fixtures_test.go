package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/adi-253/skillswap/internal/models"
	"github.com/adi-253/skillswap/internal/store"
)

type fixture struct {
	mem       *store.Memory
	requester string
	target    string
	outsider  string
	accepted  string
	pending   string
}

func newFixture() *fixture {
	f := &fixture{
		mem:       store.NewMemory(),
		requester: uuid.NewString(),
		target:    uuid.NewString(),
		outsider:  uuid.NewString(),
		accepted:  uuid.NewString(),
		pending:   uuid.NewString(),
	}
	f.mem.PutUser(models.User{ID: f.requester, Name: "Rosa"})
	f.mem.PutUser(models.User{ID: f.target, Name: "Tariq", ProfilePictureURL: "https://cdn/t.png"})
	f.mem.PutSwap(models.SwapRequest{ID: f.accepted, RequesterID: f.requester, TargetUserID: f.target, Status: models.SwapStatusAccepted})
	f.mem.PutSwap(models.SwapRequest{ID: f.pending, RequesterID: f.requester, TargetUserID: f.target, Status: "Pending"})
	return f
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

type failingAppend struct {
	*store.Memory
}

func (failingAppend) Append(context.Context, models.Message) error {
	return errors.New("connection refused")
}

type failingSwaps struct {
	*store.Memory
}

func (failingSwaps) GetSwap(context.Context, string) (*models.SwapRequest, error) {
	return nil, errors.New("timeout")
}
