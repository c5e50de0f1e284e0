package task

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

type ReminderKind int

const (
	ReminderNone ReminderKind = iota
	ReminderAtDue
	ReminderRelative
)

// Хранимое представление напоминания - смещение в секундах относительно срока.
// 0 означает "без напоминания", 0.1 - "в момент срока".
const (
	OffsetNone  = 0.0
	OffsetAtDue = 0.1
)

// OffsetEpsilon - допуск при сравнении смещений
const OffsetEpsilon = 0.001

// Пресеты из формы создания задачи
var (
	ReminderFiveMinutes   = RemindRelative(-5 * time.Minute)
	ReminderThirtyMinutes = RemindRelative(-30 * time.Minute)
	ReminderOneHour       = RemindRelative(-time.Hour)
	ReminderOneDay        = RemindRelative(-24 * time.Hour)
)

type Reminder struct {
	Kind   ReminderKind
	Offset time.Duration
}

func NoReminder() Reminder {
	return Reminder{Kind: ReminderNone}
}

func RemindAtDue() Reminder {
	return Reminder{Kind: ReminderAtDue}
}

// RemindRelative - напоминание со смещением от срока, отрицательное смещение значит "до срока".
// Нулевое смещение совпадает с напоминанием в момент срока.
func RemindRelative(offset time.Duration) Reminder {
	if offset == 0 {
		return RemindAtDue()
	}
	return Reminder{Kind: ReminderRelative, Offset: offset}
}

// RemindBefore - напоминание за d до срока
func RemindBefore(d time.Duration) Reminder {
	return RemindRelative(-d)
}

func ReminderFromOffset(seconds float64) Reminder {
	switch {
	case seconds == OffsetNone:
		return NoReminder()
	case math.Abs(seconds-OffsetAtDue) < OffsetEpsilon:
		return RemindAtDue()
	default:
		return RemindRelative(time.Duration(math.Round(seconds * float64(time.Second))))
	}
}

func (r Reminder) OffsetSeconds() float64 {
	switch r.Kind {
	case ReminderAtDue:
		return OffsetAtDue
	case ReminderRelative:
		return r.Offset.Seconds()
	default:
		return OffsetNone
	}
}

func (r Reminder) IsNone() bool {
	return r.Kind == ReminderNone
}

// FireAt вычисляет момент срабатывания для срока due
func (r Reminder) FireAt(due time.Time) time.Time {
	if r.Kind == ReminderRelative {
		return due.Add(r.Offset)
	}
	return due
}

// Changed сравнивает напоминания по хранимому смещению с допуском OffsetEpsilon
func (r Reminder) Changed(other Reminder) bool {
	return math.Abs(r.OffsetSeconds()-other.OffsetSeconds()) > OffsetEpsilon
}

func (r Reminder) String() string {
	switch r.Kind {
	case ReminderNone:
		return "none"
	case ReminderAtDue:
		return "at_due"
	default:
		return fmt.Sprintf("relative(%s)", r.Offset)
	}
}

func (r Reminder) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.OffsetSeconds())
}

func (r *Reminder) UnmarshalJSON(data []byte) error {
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return fmt.Errorf("смещение напоминания: %w", err)
	}
	*r = ReminderFromOffset(seconds)
	return nil
}
