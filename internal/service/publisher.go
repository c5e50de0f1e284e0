package service

import (
	"simpleTask/internal/models/task"
	"sync"
)

// publisher раздаёт подписчикам актуальный список задач.
// Медленный подписчик получает только последнее значение.
type publisher struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan []*task.Task
}

func newPublisher() *publisher {
	return &publisher{subs: make(map[int]chan []*task.Task)}
}

func (p *publisher) subscribe() (<-chan []*task.Task, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	ch := make(chan []*task.Task, 1)
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			close(ch)
		})
	}
}

func (p *publisher) publish(tasks []*task.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ch := range p.subs {
		select {
		case ch <- tasks:
			continue
		default:
		}
		// вытесняем устаревшее значение
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- tasks:
		default:
		}
	}
}
