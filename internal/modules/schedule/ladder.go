package schedule

import (
	"sort"
	"time"
)

// Step is one rung of the searching message ladder.
type Step struct {
	After   time.Duration `mapstructure:"after" json:"after"`
	Message string        `mapstructure:"message" json:"message"`
}

// Ladder maps time spent searching to an informational status line.
type Ladder []Step

var RideLadder = Ladder{
	{After: 0, Message: "Finding you a driver..."},
	{After: 15 * time.Second, Message: "Still searching for nearby drivers..."},
	{After: 45 * time.Second, Message: "Expanding the search area..."},
	{After: 90 * time.Second, Message: "Drivers are busy right now, hang tight..."},
}

var DeliveryLadder = Ladder{
	{After: 0, Message: "Finding a courier for your package..."},
	{After: 20 * time.Second, Message: "Still looking for an available courier..."},
	{After: 60 * time.Second, Message: "Expanding the search for couriers..."},
	{After: 120 * time.Second, Message: "Couriers are busy right now, hang tight..."},
}

// MessageAt returns the message of the last step whose After has elapsed.
func (l Ladder) MessageAt(elapsed time.Duration) string {
	steps := make(Ladder, len(l))
	copy(steps, l)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].After < steps[j].After })

	msg := ""
	for _, s := range steps {
		if elapsed < s.After {
			break
		}
		msg = s.Message
	}
	return msg
}
