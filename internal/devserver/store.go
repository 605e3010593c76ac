package devserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/coursegen/internal/catalog"
)

var errNotFound = errors.New("not found")

// Store keeps the course hierarchy in memory. Every accessor returns copies.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	files    map[int64]string
	courses  map[int64]catalog.Course
	modules  map[int64]catalog.Module
	units    map[int64]catalog.Unit
	contents map[int64]catalog.Content
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		courses:  map[int64]catalog.Course{},
		modules:  map[int64]catalog.Module{},
		units:    map[int64]catalog.Unit{},
		contents: map[int64]catalog.Content{},
		files:    map[int64]string{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Seed adds one course with two modules of two units each and returns it.
func (s *Store) Seed(userID int64) catalog.Course {
	c := s.AddCourse(userID, "Introduction to Go")
	for i, mt := range []string{"Getting Started", "Concurrency"} {
		m, _ := s.AddModule(c.ID, mt, i+1)
		for j := 1; j <= 2; j++ {
			_, _ = s.AddUnit(m.ID, mt+" "+string(rune('A'+j-1)), j)
		}
	}
	return c
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddFile records an uploaded source document and returns its file id. File
// ids have their own sequence.
func (s *Store) AddFile(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.files) + 1)
	s.files[id] = name
	return id
}

func (s *Store) HasFile(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[id]
	return ok
}

func (s *Store) AddCourse(userID int64, title string) catalog.Course {
	return s.InsertCourse(catalog.Course{UserID: userID, Title: title})
}

// InsertCourse stores c under a fresh id.
func (s *Store) InsertCourse(c catalog.Course) catalog.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	c.CreatedAt = s.now()
	s.courses[c.ID] = c
	return c
}

func (s *Store) AddModule(courseID int64, title string, order int) (catalog.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[courseID]; !ok {
		return catalog.Module{}, errNotFound
	}
	m := catalog.Module{ID: s.id(), CourseID: courseID, Title: title, Order: order, CreatedAt: s.now()}
	s.modules[m.ID] = m
	return m, nil
}

func (s *Store) AddUnit(moduleID int64, title string, order int) (catalog.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[moduleID]; !ok {
		return catalog.Unit{}, errNotFound
	}
	u := catalog.Unit{ID: s.id(), ModuleID: moduleID, Title: title, Order: order, CreatedAt: s.now()}
	s.units[u.ID] = u
	return u, nil
}

// CreateModule appends a module to a course; a missing order goes last.
func (s *Store) CreateModule(courseID int64, in catalog.ModuleInput) (catalog.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[courseID]; !ok {
		return catalog.Module{}, errNotFound
	}
	m := catalog.Module{ID: s.id(), CourseID: courseID, CreatedAt: s.now()}
	applyModule(&m, in)
	if in.Order == nil {
		for _, other := range s.modules {
			if other.CourseID == courseID && other.Order >= m.Order {
				m.Order = other.Order + 1
			}
		}
	}
	s.modules[m.ID] = m
	return m, nil
}

func (s *Store) UpdateModule(id int64, in catalog.ModuleInput) (catalog.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[id]
	if !ok {
		return catalog.Module{}, errNotFound
	}
	applyModule(&m, in)
	now := s.now()
	m.UpdatedAt = &now
	s.modules[id] = m
	return m, nil
}

// DeleteModule removes a module with its units and their contents.
func (s *Store) DeleteModule(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[id]; !ok {
		return errNotFound
	}
	s.clearUnitsLocked(id, true)
	delete(s.modules, id)
	return nil
}

// CreateUnit appends a unit to in.ModuleID; a missing order goes last.
func (s *Store) CreateUnit(in catalog.UnitInput) (catalog.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[in.ModuleID]; !ok {
		return catalog.Unit{}, errNotFound
	}
	u := catalog.Unit{ID: s.id(), ModuleID: in.ModuleID, CreatedAt: s.now()}
	applyUnit(&u, in)
	if in.Order == nil {
		for _, other := range s.units {
			if other.ModuleID == in.ModuleID && other.Order >= u.Order {
				u.Order = other.Order + 1
			}
		}
	}
	s.units[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUnit(id int64, in catalog.UnitInput) (catalog.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return catalog.Unit{}, errNotFound
	}
	applyUnit(&u, in)
	now := s.now()
	u.UpdatedAt = &now
	s.units[id] = u
	return u, nil
}

// DeleteUnit removes a unit and its contents.
func (s *Store) DeleteUnit(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[id]; !ok {
		return errNotFound
	}
	for cid, c := range s.contents {
		if c.UnitID == id {
			delete(s.contents, cid)
		}
	}
	delete(s.units, id)
	return nil
}

func applyModule(m *catalog.Module, in catalog.ModuleInput) {
	if in.Title != nil {
		m.Title = *in.Title
	}
	if in.Description != nil {
		m.Description = in.Description
	}
	if in.Order != nil {
		m.Order = *in.Order
	}
}

func applyUnit(u *catalog.Unit, in catalog.UnitInput) {
	if in.Title != nil {
		u.Title = *in.Title
	}
	if in.Description != nil {
		u.Description = in.Description
	}
	if in.Order != nil {
		u.Order = *in.Order
	}
}

func (s *Store) Courses() []catalog.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Course, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Course(id int64) (catalog.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return catalog.Course{}, errNotFound
	}
	return c, nil
}

func (s *Store) SetPublished(id int64, published bool) (catalog.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return catalog.Course{}, errNotFound
	}
	c.IsPublished = published
	now := s.now()
	c.UpdatedAt = &now
	s.courses[id] = c
	return c, nil
}

func (s *Store) DeleteCourse(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[id]; !ok {
		return errNotFound
	}
	delete(s.courses, id)
	s.clearModulesLocked(id)
	return nil
}

// ClearModules removes every module of a course with its units and contents.
func (s *Store) ClearModules(courseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[courseID]; !ok {
		return errNotFound
	}
	s.clearModulesLocked(courseID)
	return nil
}

func (s *Store) clearModulesLocked(courseID int64) {
	for mid, m := range s.modules {
		if m.CourseID != courseID {
			continue
		}
		s.clearUnitsLocked(mid, true)
		delete(s.modules, mid)
	}
}

func (s *Store) clearUnitsLocked(moduleID int64, dropUnits bool) {
	for uid, u := range s.units {
		if u.ModuleID != moduleID {
			continue
		}
		for cid, c := range s.contents {
			if c.UnitID == uid {
				delete(s.contents, cid)
			}
		}
		if dropUnits {
			delete(s.units, uid)
		}
	}
}

// ClearModuleContents removes contents of every unit in a module.
func (s *Store) ClearModuleContents(moduleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[moduleID]; !ok {
		return errNotFound
	}
	s.clearUnitsLocked(moduleID, false)
	return nil
}

func (s *Store) Modules(courseID int64) []catalog.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.Module
	for _, m := range s.modules {
		if m.CourseID == courseID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (s *Store) Module(id int64) (catalog.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[id]
	if !ok {
		return catalog.Module{}, errNotFound
	}
	return m, nil
}

func (s *Store) Units(moduleID int64) []catalog.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.Unit
	for _, u := range s.units {
		if u.ModuleID == moduleID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (s *Store) Unit(id int64) (catalog.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return catalog.Unit{}, errNotFound
	}
	return u, nil
}

func (s *Store) Contents(unitID int64) []catalog.Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.Content
	for _, c := range s.contents {
		if c.UnitID == unitID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) Content(id int64) (catalog.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok {
		return catalog.Content{}, errNotFound
	}
	return c, nil
}

// PutContent inserts c when c.ID is zero and replaces it otherwise.
func (s *Store) PutContent(c catalog.Content) (catalog.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[c.UnitID]; !ok {
		return catalog.Content{}, errNotFound
	}
	now := s.now()
	if c.ID == 0 {
		c.ID = s.id()
		c.CreatedAt = now
		if c.Order == 0 {
			c.Order = s.nextOrderLocked(c.UnitID)
		}
	} else {
		prev, ok := s.contents[c.ID]
		if !ok {
			return catalog.Content{}, errNotFound
		}
		c.CreatedAt = prev.CreatedAt
		c.UpdatedAt = &now
	}
	s.contents[c.ID] = c
	return c, nil
}

func (s *Store) nextOrderLocked(unitID int64) int {
	hi := 0
	for _, c := range s.contents {
		if c.UnitID == unitID && c.Order > hi {
			hi = c.Order
		}
	}
	return hi + 1
}

func (s *Store) DeleteContent(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contents[id]; !ok {
		return errNotFound
	}
	delete(s.contents, id)
	return nil
}

// paginate slices items for a 1-based page.
func paginate[T any](items []T, page, perPage int) catalog.Page[T] {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 10
	}
	total := len(items)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	pages := (total + perPage - 1) / perPage
	out := catalog.Page[T]{
		Items:      append([]T{}, items[start:end]...),
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: pages,
		HasNext:    page < pages,
		HasPrev:    page > 1,
	}
	return out
}

func matches(title, search string) bool {
	search = strings.TrimSpace(search)
	return search == "" || strings.Contains(strings.ToLower(title), strings.ToLower(search))
}
