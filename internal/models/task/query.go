package task

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Sort string

const SortNone Sort = ""
const SortCreatedAsc Sort = "created_asc"
const SortCreatedDesc Sort = "created_desc"
const SortDueAsc Sort = "due_asc"
const SortDueDesc Sort = "due_desc"
const SortWithReminder Sort = "with_reminder"

func ParseSort(raw string) (Sort, error) {
	switch s := Sort(strings.ToLower(strings.TrimSpace(raw))); s {
	case SortNone, SortCreatedAsc, SortCreatedDesc, SortDueAsc, SortDueDesc, SortWithReminder:
		return s, nil
	default:
		return SortNone, fmt.Errorf("неизвестная сортировка %q", raw)
	}
}

// Query - фильтр и сортировка для выборки задач.
// Нулевое значение возвращает все задачи, новые первыми.
type Query struct {
	Search   string
	Done     *bool
	Category Category
	Sort     Sort
	// Now - точка отсчёта для SortWithReminder, по умолчанию time.Now()
	Now time.Time
}

func (q Query) Reference() time.Time {
	if q.Now.IsZero() {
		return time.Now()
	}
	return q.Now
}

// Matches проверяет фильтры запроса без учёта сортировки
func (q Query) Matches(t *Task) bool {
	if q.Search != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(q.Search)) {
		return false
	}
	if q.Done != nil && t.IsDone != *q.Done {
		return false
	}
	if q.Category != "" && t.Category != q.Category {
		return false
	}
	if q.Sort == SortWithReminder && !t.HasFutureReminder(q.Reference()) {
		return false
	}
	return true
}

// Apply фильтрует и сортирует задачи так же, как это делают хранилища
func (q Query) Apply(tasks []*Task) []*Task {
	res := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		if q.Matches(t) {
			res = append(res, t)
		}
	}
	SortTasks(res, q.Sort)
	return res
}

// бесконечно удалённое будущее для задач без срока
var distantFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

func dueOrFuture(t *Task) time.Time {
	if t.DueDate == nil {
		return distantFuture
	}
	return *t.DueDate
}

func SortTasks(tasks []*Task, by Sort) {
	var less func(a, b *Task) bool
	switch by {
	case SortCreatedAsc:
		less = func(a, b *Task) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortDueAsc:
		less = func(a, b *Task) bool { return dueOrFuture(a).Before(dueOrFuture(b)) }
	case SortDueDesc:
		less = func(a, b *Task) bool { return dueOrFuture(a).After(dueOrFuture(b)) }
	default:
		less = func(a, b *Task) bool { return a.CreatedAt.After(b.CreatedAt) }
	}
	sort.SliceStable(tasks, func(i, j int) bool { return less(tasks[i], tasks[j]) })
}
