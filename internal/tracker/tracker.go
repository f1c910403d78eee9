package tracker

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// Details is the creation-time snapshot attached to a new incident.
type Details struct {
	Title       string
	Description string
	Severity    models.Severity
	Health      models.HealthResult
	Violations  []models.Violation
	Anomalies   []models.Anomaly
}

// Tracker owns the incident lifecycle state. It guarantees at most one
// open incident per service at any time; all access goes through its
// methods under a single mutex.
type Tracker struct {
	mu          sync.Mutex
	active      map[string]*models.Incident
	resolved    []*models.Incident
	maxResolved int
	now         func() time.Time
}

// New constructs a tracker retaining up to maxResolved closed incidents;
// older entries are evicted to bound memory over long runs.
func New(maxResolved int) *Tracker {
	if maxResolved <= 0 {
		maxResolved = 200
	}
	return &Tracker{
		active:      make(map[string]*models.Incident),
		maxResolved: maxResolved,
		now:         time.Now,
	}
}

// Create opens a new incident for the service unless one is already open,
// in which case it returns nil. This is the deduplication guarantee.
func (t *Tracker) Create(service string, details Details) *models.Incident {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, open := t.active[service]; open {
		return nil
	}

	incident := &models.Incident{
		ID:          uuid.NewString(),
		Service:     service,
		Title:       details.Title,
		Description: details.Description,
		Severity:    details.Severity,
		Health:      details.Health,
		Violations:  details.Violations,
		Anomalies:   details.Anomalies,
		CreatedAt:   t.now().UTC(),
	}
	t.active[service] = incident

	snapshot := *incident
	return &snapshot
}

// Resolve closes the open incident for the service, stamping resolution
// time and duration. It returns nil when nothing is open for the key.
func (t *Tracker) Resolve(service string) *models.Incident {
	t.mu.Lock()
	defer t.mu.Unlock()

	incident, open := t.active[service]
	if !open {
		return nil
	}

	resolvedAt := t.now().UTC()
	incident.ResolvedAt = &resolvedAt
	incident.Duration = resolvedAt.Sub(incident.CreatedAt)

	delete(t.active, service)
	t.resolved = append(t.resolved, incident)
	if len(t.resolved) > t.maxResolved {
		t.resolved = t.resolved[len(t.resolved)-t.maxResolved:]
	}

	snapshot := *incident
	return &snapshot
}

// Open returns a copy of all currently open incidents.
func (t *Tracker) Open() []models.Incident {
	t.mu.Lock()
	defer t.mu.Unlock()

	incidents := make([]models.Incident, 0, len(t.active))
	for _, incident := range t.active {
		incidents = append(incidents, *incident)
	}
	return incidents
}

// Resolved returns a copy of the retained resolved incidents, oldest first.
func (t *Tracker) Resolved() []models.Incident {
	t.mu.Lock()
	defer t.mu.Unlock()

	incidents := make([]models.Incident, 0, len(t.resolved))
	for _, incident := range t.resolved {
		incidents = append(incidents, *incident)
	}
	return incidents
}

// OpenCount returns the number of currently open incidents.
func (t *Tracker) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Get looks up an incident by id across the open and resolved sets.
func (t *Tracker) Get(id string) (models.Incident, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, incident := range t.active {
		if incident.ID == id {
			return *incident, true
		}
	}
	for _, incident := range t.resolved {
		if incident.ID == id {
			return *incident, true
		}
	}
	return models.Incident{}, false
}
