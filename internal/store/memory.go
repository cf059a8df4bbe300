package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/painelportos/ingest/internal/domain"
	"github.com/painelportos/ingest/internal/engine"
)

// Memory is an in-process implementation of engine.Store, backing dry
// runs and tests. Transactions snapshot the state at begin and restore it
// when fn fails, matching the rollback behaviour of the SQL store.
type Memory struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	seq         int64
	lookups     map[domain.LookupKind]map[string]*domain.Lookup
	processes   map[string]*domain.Process
	goals       map[string]*domain.Goal
	indicators  map[string]*domain.Indicator
	concessions map[string]*domain.Concession
	services    map[string]*domain.Service
	trackings   map[string]*domain.TrackingRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func newMemState() memState {
	return memState{
		lookups:     make(map[domain.LookupKind]map[string]*domain.Lookup),
		processes:   make(map[string]*domain.Process),
		goals:       make(map[string]*domain.Goal),
		indicators:  make(map[string]*domain.Indicator),
		concessions: make(map[string]*domain.Concession),
		services:    make(map[string]*domain.Service),
		trackings:   make(map[string]*domain.TrackingRecord),
	}
}

func (s *memState) clone() memState {
	c := newMemState()
	c.seq = s.seq
	for kind, byKey := range s.lookups {
		c.lookups[kind] = make(map[string]*domain.Lookup, len(byKey))
		for k, v := range byKey {
			cp := *v
			c.lookups[kind][k] = &cp
		}
	}
	for k, v := range s.processes {
		cp := *v
		c.processes[k] = &cp
	}
	for k, v := range s.goals {
		cp := *v
		c.goals[k] = &cp
	}
	for k, v := range s.indicators {
		cp := *v
		c.indicators[k] = &cp
	}
	for k, v := range s.concessions {
		cp := *v
		c.concessions[k] = &cp
	}
	for k, v := range s.services {
		cp := *v
		c.services[k] = &cp
	}
	for k, v := range s.trackings {
		cp := *v
		cp.Risks = append([]domain.Risk(nil), v.Risks...)
		c.trackings[k] = &cp
	}
	return c
}

// WithTx runs fn against a working copy of the state and installs the
// copy only when fn succeeds.
func (s *Memory) WithTx(ctx context.Context, fn func(tx engine.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(&memTx{state: &work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Counts returns the number of rows per entity, for dry-run summaries
// and test assertions.
func (s *Memory) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, byKey := range s.state.lookups {
		n += len(byKey)
	}
	return map[string]int{
		"lookups":     n,
		"processes":   len(s.state.processes),
		"goals":       len(s.state.goals),
		"indicators":  len(s.state.indicators),
		"concessions": len(s.state.concessions),
		"services":    len(s.state.services),
		"trackings":   len(s.state.trackings),
	}
}

// Processes returns all processes sorted by number, for tests.
func (s *Memory) Processes() []domain.Process {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Process, 0, len(s.state.processes))
	for _, p := range s.state.processes {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Concessions returns all concessions sorted by object, for tests.
func (s *Memory) Concessions() []domain.Concession {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Concession, 0, len(s.state.concessions))
	for _, c := range s.state.concessions {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConcessionObject < out[j].ConcessionObject })
	return out
}

// Services returns all services sorted by name, for tests.
func (s *Memory) Services() []domain.Service {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Service, 0, len(s.state.services))
	for _, sv := range s.state.services {
		out = append(out, *sv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Trackings returns all tracking records sorted by id, for tests.
func (s *Memory) Trackings() []domain.TrackingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.TrackingRecord, 0, len(s.state.trackings))
	for _, t := range s.state.trackings {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookups returns all lookup rows of a kind sorted by name, for tests.
func (s *Memory) Lookups(kind domain.LookupKind) []domain.Lookup {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Lookup, 0, len(s.state.lookups[kind]))
	for _, l := range s.state.lookups[kind] {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// memTx implements engine.Tx against a working state copy.
type memTx struct {
	state *memState
}

func (t *memTx) nextID() int64 {
	t.state.seq++
	return t.state.seq
}

func (t *memTx) FindLookup(_ context.Context, kind domain.LookupKind, key string) (int64, bool, error) {
	if l, ok := t.state.lookups[kind][key]; ok {
		return l.ID, true, nil
	}
	return 0, false, nil
}

func (t *memTx) CreateLookup(_ context.Context, kind domain.LookupKind, name, extra string) (int64, error) {
	byKey := t.state.lookups[kind]
	if byKey == nil {
		byKey = make(map[string]*domain.Lookup)
		t.state.lookups[kind] = byKey
	}
	l := &domain.Lookup{ID: t.nextID(), Kind: kind, Name: name, Extra: extra}
	byKey[engine.NormalizeKey(name)] = l
	return l.ID, nil
}

func (t *memTx) UpsertProcess(_ context.Context, p *domain.Process, cols engine.FieldSet) (int64, bool, error) {
	key := engine.NormalizeKey(p.Number)
	if existing, ok := t.state.processes[key]; ok {
		p.ID = existing.ID
		merged := *existing
		merged.Number = p.Number
		if cols["protocol_date"] {
			merged.ProtocolDate = p.ProtocolDate
		}
		if cols["license"] {
			merged.License = p.License
		}
		if cols["situation_id"] {
			merged.SituationID = p.SituationID
		}
		t.state.processes[key] = &merged
		return p.ID, false, nil
	}
	p.ID = t.nextID()
	cp := *p
	t.state.processes[key] = &cp
	return p.ID, true, nil
}

func (t *memTx) UpsertGoal(_ context.Context, g *domain.Goal) (int64, bool, error) {
	key := fmt.Sprintf("%d|%d", g.ProcessID, g.Year)
	if existing, ok := t.state.goals[key]; ok {
		g.ID = existing.ID
		cp := *g
		t.state.goals[key] = &cp
		return g.ID, false, nil
	}
	g.ID = t.nextID()
	cp := *g
	t.state.goals[key] = &cp
	return g.ID, true, nil
}

func (t *memTx) UpsertIndicator(_ context.Context, ind *domain.Indicator, cols engine.FieldSet) (int64, bool, error) {
	key := fmt.Sprintf("%d|%s", ind.GoalID, engine.NormalizeKey(ind.InterventionType))
	if existing, ok := t.state.indicators[key]; ok {
		ind.ID = existing.ID
		merged := *existing
		merged.InterventionType = ind.InterventionType
		if cols["financial_planned"] {
			merged.FinancialPlanned = ind.FinancialPlanned
		}
		if cols["financial_executed"] {
			merged.FinancialExecuted = ind.FinancialExecuted
		}
		if cols["km_planned"] {
			merged.KmPlanned = ind.KmPlanned
		}
		if cols["km_executed"] {
			merged.KmExecuted = ind.KmExecuted
		}
		if cols["extension_km"] {
			merged.ExtensionKm = ind.ExtensionKm
		}
		t.state.indicators[key] = &merged
		return ind.ID, false, nil
	}
	ind.ID = t.nextID()
	cp := *ind
	t.state.indicators[key] = &cp
	return ind.ID, true, nil
}

func (t *memTx) FindConcession(_ context.Context, objectKey string) (*domain.Concession, error) {
	var keys []string
	for k, c := range t.state.concessions {
		if engine.NormalizeKey(c.ConcessionObject) == objectKey {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)
	cp := *t.state.concessions[keys[0]]
	return &cp, nil
}

func (t *memTx) UpsertConcession(_ context.Context, c *domain.Concession, cols engine.FieldSet) (int64, bool, error) {
	key := fmt.Sprintf("%d|%s|%s", c.PortZoneID, engine.NormalizeKey(c.ConcessionObject), c.Type)
	if existing, ok := t.state.concessions[key]; ok {
		c.ID = existing.ID
		merged := *existing
		merged.ConcessionObject = c.ConcessionObject
		if cols["capex_total"] {
			merged.CapexTotal = c.CapexTotal
		}
		if cols["signing_date"] {
			merged.SigningDate = c.SigningDate
		}
		if cols["description"] {
			merged.Description = c.Description
		}
		if cols["coord_e"] {
			merged.CoordE = c.CoordE
		}
		if cols["coord_s"] {
			merged.CoordS = c.CoordS
		}
		if cols["utm_zone"] {
			merged.UTMZone = c.UTMZone
		}
		t.state.concessions[key] = &merged
		return c.ID, false, nil
	}
	c.ID = t.nextID()
	cp := *c
	t.state.concessions[key] = &cp
	return c.ID, true, nil
}

func (t *memTx) FindService(_ context.Context, concessionID int64, nameKey string) (int64, bool, error) {
	if s, ok := t.state.services[fmt.Sprintf("%d|%s", concessionID, nameKey)]; ok {
		return s.ID, true, nil
	}
	return 0, false, nil
}

func (t *memTx) UpsertService(_ context.Context, s *domain.Service, cols engine.FieldSet) (int64, bool, error) {
	key := fmt.Sprintf("%d|%s", s.ConcessionID, engine.NormalizeKey(s.Name))
	if existing, ok := t.state.services[key]; ok {
		s.ID = existing.ID
		merged := *existing
		merged.Name = s.Name
		if cols["service_type_id"] {
			merged.ServiceTypeID = s.ServiceTypeID
		}
		if cols["phase"] {
			merged.Phase = s.Phase
		}
		if cols["description"] {
			merged.Description = s.Description
		}
		if cols["start_lead_years"] {
			merged.StartLeadYears = s.StartLeadYears
		}
		if cols["start_date"] {
			merged.StartDate = s.StartDate
		}
		if cols["end_lead_years"] {
			merged.EndLeadYears = s.EndLeadYears
		}
		if cols["end_date"] {
			merged.EndDate = s.EndDate
		}
		if cols["lead_source"] {
			merged.LeadSource = s.LeadSource
		}
		if cols["capex_percent"] {
			merged.CapexPercent = s.CapexPercent
		}
		if cols["capex_amount"] {
			merged.CapexAmount = s.CapexAmount
		}
		if cols["percent_source"] {
			merged.PercentSource = s.PercentSource
		}
		t.state.services[key] = &merged
		return s.ID, false, nil
	}
	s.ID = t.nextID()
	cp := *s
	t.state.services[key] = &cp
	return s.ID, true, nil
}

func (t *memTx) UpsertTracking(_ context.Context, tr *domain.TrackingRecord, cols engine.FieldSet) (int64, bool, error) {
	date := ""
	if tr.UpdateDate != nil {
		date = tr.UpdateDate.Format("2006-01-02")
	}
	key := fmt.Sprintf("%d|%s|%s", tr.ServiceID, date, engine.NormalizeKey(tr.Responsible))
	if existing, ok := t.state.trackings[key]; ok {
		tr.ID = existing.ID
		merged := *existing
		merged.Responsible = tr.Responsible
		merged.Risks = append([]domain.Risk(nil), existing.Risks...)
		if cols["percent_executed"] {
			merged.PercentExecuted = tr.PercentExecuted
		}
		if cols["capex_adjusted"] {
			merged.CapexAdjusted = tr.CapexAdjusted
		}
		if cols["value_executed"] {
			merged.ValueExecuted = tr.ValueExecuted
		}
		if cols["role"] {
			merged.Role = tr.Role
		}
		if cols["department"] {
			merged.Department = tr.Department
		}
		if cols["risks"] {
			merged.Risks = append([]domain.Risk(nil), tr.Risks...)
		}
		t.state.trackings[key] = &merged
		return tr.ID, false, nil
	}
	tr.ID = t.nextID()
	cp := *tr
	cp.Risks = append([]domain.Risk(nil), tr.Risks...)
	t.state.trackings[key] = &cp
	return tr.ID, true, nil
}
