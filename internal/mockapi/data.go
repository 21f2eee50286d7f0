package mockapi

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/marathon-client/internal/apperror"
	"github.com/sakif/marathon-client/internal/model"
)

// memory is the backend's in-memory database.
type memory struct {
	mu           sync.RWMutex
	marathons    []model.Marathon
	applications []model.Application
}

func (m *memory) insertMarathon(mt model.Marathon, now time.Time) model.Marathon {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mt.ID == "" {
		mt.ID = xid.New().String()
	}
	if mt.CreatedAt.IsZero() {
		mt.CreatedAt = now
	}
	m.marathons = append(m.marathons, mt)
	return mt
}

func (m *memory) listMarathons(sort model.SortOrder, location string) []model.Marathon {
	m.mu.RLock()
	out := slices.Clone(m.marathons)
	m.mu.RUnlock()

	if loc := strings.ToLower(strings.TrimSpace(location)); loc != "" {
		out = slices.DeleteFunc(out, func(mt model.Marathon) bool {
			return !strings.Contains(strings.ToLower(mt.Location), loc)
		})
	}
	slices.SortStableFunc(out, func(a, b model.Marathon) int {
		c := a.MarathonStartDate.Compare(b.MarathonStartDate.Time)
		if sort == model.SortOldest {
			return c
		}
		return -c
	})
	if out == nil {
		out = []model.Marathon{}
	}
	return out
}

func (m *memory) marathon(id string) (model.Marathon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := slices.IndexFunc(m.marathons, func(mt model.Marathon) bool { return mt.ID == id })
	if i < 0 {
		return model.Marathon{}, apperror.NotFound("marathon", id)
	}
	return m.marathons[i], nil
}

// updateMarathon applies patch for owner and reports whether anything
// changed, the way a document store counts modified documents.
func (m *memory) updateMarathon(id, owner string, patch model.MarathonPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.marathons, func(mt model.Marathon) bool { return mt.ID == id })
	if i < 0 {
		return false, apperror.NotFound("marathon", id)
	}
	if m.marathons[i].Email != owner {
		return false, apperror.Forbidden("You can only update your own marathons")
	}
	updated := patch.Apply(m.marathons[i])
	if updated == m.marathons[i] {
		return false, nil
	}
	m.marathons[i] = updated
	return true, nil
}

func (m *memory) deleteMarathon(id, owner string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.marathons, func(mt model.Marathon) bool { return mt.ID == id })
	if i < 0 {
		return 0, nil
	}
	if m.marathons[i].Email != owner {
		return 0, apperror.Forbidden("You can only delete your own marathons")
	}
	m.marathons = slices.Delete(m.marathons, i, i+1)
	return 1, nil
}

// insertApplication stores the application and bumps the marathon's
// registration counter.
func (m *memory) insertApplication(a model.Application, now time.Time) (model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.marathons, func(mt model.Marathon) bool { return mt.ID == a.MarathonID })
	if i < 0 {
		return model.Application{}, apperror.NotFound("marathon", a.MarathonID)
	}
	if a.ID == "" {
		a.ID = xid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	m.applications = append(m.applications, a)
	m.marathons[i].TotalRegistration++
	return a, nil
}

// applicationsOf returns email's applications, newest first, whose marathon
// title contains search.
func (m *memory) applicationsOf(email, search string) []model.Application {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search = strings.ToLower(strings.TrimSpace(search))
	out := []model.Application{}
	for i := len(m.applications) - 1; i >= 0; i-- {
		a := m.applications[i]
		if a.Email != email {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.MarathonTitle), search) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (m *memory) updateApplication(id, owner string, patch model.ApplicationPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.applications, func(a model.Application) bool { return a.ID == id })
	if i < 0 {
		return false, apperror.NotFound("application", id)
	}
	if m.applications[i].Email != owner {
		return false, apperror.Forbidden("You can only update your own applications")
	}
	updated := patch.Apply(m.applications[i])
	if updated == m.applications[i] {
		return false, nil
	}
	m.applications[i] = updated
	return true, nil
}

// deleteApplication removes the application and releases its registration.
func (m *memory) deleteApplication(id, owner string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.applications, func(a model.Application) bool { return a.ID == id })
	if i < 0 {
		return 0, nil
	}
	a := m.applications[i]
	if a.Email != owner {
		return 0, apperror.Forbidden("You can only delete your own applications")
	}
	m.applications = slices.Delete(m.applications, i, i+1)
	if j := slices.IndexFunc(m.marathons, func(mt model.Marathon) bool { return mt.ID == a.MarathonID }); j >= 0 && m.marathons[j].TotalRegistration > 0 {
		m.marathons[j].TotalRegistration--
	}
	return 1, nil
}

func (m *memory) stats(email string, now time.Time) model.DashboardStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s model.DashboardStats
	s.MarathonCount = len(m.marathons)
	for _, mt := range m.marathons {
		s.TotalRegistrations += mt.TotalRegistration
		if mt.MarathonStartDate.After(now) {
			s.UpcomingCount++
		}
	}
	for _, a := range m.applications {
		if a.Email == email {
			s.ApplicationCount++
		}
	}
	return s
}
