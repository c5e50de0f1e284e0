// Package widget выгружает краткую сводку задач в файл, который читает
// внешняя поверхность отображения (виджет).
package widget

import (
	"simpleTask/internal/models/task"
	"time"

	"github.com/google/uuid"
)

// MaxItems - сколько задач попадает в сводку
const MaxItems = 5

type Item struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
}

type Snapshot struct {
	Date           time.Time `json:"date"`
	Tasks          []Item    `json:"tasks"`
	ImportantCount int       `json:"importantCount"`
	WorkCount      int       `json:"workCount"`
	PrivateCount   int       `json:"privateCount"`
	OtherCount     int       `json:"otherCount"`
}

// Build собирает сводку из списка задач в порядке списка
func Build(tasks []*task.Task, now time.Time) Snapshot {
	s := Snapshot{Date: now, Tasks: make([]Item, 0, MaxItems)}

	for _, t := range tasks {
		if len(s.Tasks) < MaxItems {
			s.Tasks = append(s.Tasks, Item{ID: t.UUID, Title: t.Title, Category: string(t.Category)})
		}

		switch t.Category {
		case task.CategoryImportant:
			s.ImportantCount++
		case task.CategoryWork:
			s.WorkCount++
		case task.CategoryPrivate:
			s.PrivateCount++
		default:
			s.OtherCount++
		}
	}
	return s
}
