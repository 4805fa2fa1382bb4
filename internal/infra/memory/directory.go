package memory

import (
	"context"
	"sort"
	"sync"

	"forms-response-service/internal/domain"
)

// Directory is a static identity provider and class directory.
type Directory struct {
	mu          sync.RWMutex
	names       map[string]string
	instructors map[string]map[string]struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		names:       make(map[string]string),
		instructors: make(map[string]map[string]struct{}),
	}
}

// AddRespondent registers a display name.
func (d *Directory) AddRespondent(respondentID, name string) {
	d.mu.Lock()
	d.names[respondentID] = name
	d.mu.Unlock()
}

// Assign makes the instructor teach the class.
func (d *Directory) Assign(instructorID, classID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	classes, ok := d.instructors[instructorID]
	if !ok {
		classes = make(map[string]struct{})
		d.instructors[instructorID] = classes
	}
	classes[classID] = struct{}{}
}

func (d *Directory) DisplayName(_ context.Context, respondentID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[respondentID]
	if !ok {
		return "", domain.ErrRespondentNotFound
	}
	return name, nil
}

func (d *Directory) ClassesTaughtBy(_ context.Context, instructorID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	classes := make([]string, 0, len(d.instructors[instructorID]))
	for id := range d.instructors[instructorID] {
		classes = append(classes, id)
	}
	sort.Strings(classes)
	return classes, nil
}
