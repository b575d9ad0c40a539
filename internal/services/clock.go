package services

import (
	"time"

	"github.com/diewo77/go-workshop/internal/models"
)

// Clock supplies the current time. Services never read the system clock directly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.Now().In(loc)
}

// today is the current business date according to c.
func today(c Clock) time.Time {
	return models.DateOf(c.Now())
}
