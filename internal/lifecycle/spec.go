package lifecycle

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"pawcare/internal/config"
	"pawcare/internal/models"
)

const (
	IDInQuery = "query"
	IDInPath  = "path"
	IDInBody  = "body"
)

// Endpoint is one backend route. Path may contain ":id" when IDIn is path.
type Endpoint struct {
	Method string
	Path   string
	IDIn   string
}

// URL resolves the endpoint against baseURL for booking id.
func (e Endpoint) URL(baseURL, id string) (string, error) {
	path := e.Path
	if e.IDIn == IDInPath {
		if !strings.Contains(path, ":id") {
			return "", fmt.Errorf("endpoint %s has no :id placeholder", e.Path)
		}
		path = strings.ReplaceAll(path, ":id", url.PathEscape(id))
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return "", fmt.Errorf("parse endpoint url: %w", err)
	}
	if e.IDIn == IDInQuery && id != "" {
		q := u.Query()
		q.Set("id", id)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// DomainSpec is everything that differs between booking domains. One engine
// serves all of them.
type DomainSpec struct {
	Name    string
	Palette string

	Fetch   Endpoint
	List    Endpoint
	Actions map[models.ActionKind]Endpoint

	// CancelStatus is written by the cancel call and, when OptimisticCancel is
	// set, patched into the local booking before the refetch.
	CancelStatus     string
	OptimisticCancel bool
	// RescheduleStatus is sent along with a reschedule; empty omits it.
	RescheduleStatus string
}

func (s DomainSpec) Supports(kind models.ActionKind) bool {
	_, ok := s.Actions[kind]
	return ok
}

func (s DomainSpec) Endpoint(kind models.ActionKind) (Endpoint, error) {
	ep, ok := s.Actions[kind]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s does not support %s", ErrUnsupportedAction, s.Name, kind)
	}
	return ep, nil
}

func (s DomainSpec) clone() DomainSpec {
	c := s
	c.Actions = make(map[models.ActionKind]Endpoint, len(s.Actions))
	for k, v := range s.Actions {
		c.Actions[k] = v
	}
	return c
}

// DefaultSpecs returns the routes the platform backend exposes today.
func DefaultSpecs() []DomainSpec {
	return []DomainSpec{
		{
			Name:    models.DomainLab,
			Palette: PaletteLab,
			Fetch:   Endpoint{Method: http.MethodGet, Path: "/api/v1/lab-booking", IDIn: IDInQuery},
			List:    Endpoint{Method: http.MethodGet, Path: "/api/v1/lab-booking"},
			Actions: map[models.ActionKind]Endpoint{
				models.ActionCancel:     {Method: http.MethodPut, Path: "/api/v1/lab-booking-cancel", IDIn: IDInQuery},
				models.ActionReschedule: {Method: http.MethodPut, Path: "/api/v1/lab-tests-booking-reschedule", IDIn: IDInQuery},
			},
			CancelStatus:     models.StatusCancelled,
			RescheduleStatus: models.StatusRescheduled,
		},
		{
			Name:    models.DomainVaccine,
			Palette: PaletteCare,
			Fetch:   Endpoint{Method: http.MethodGet, Path: "/api/v1/single-vaccine-orders", IDIn: IDInQuery},
			List:    Endpoint{Method: http.MethodGet, Path: "/api/v1/vaccine-orders"},
			Actions: map[models.ActionKind]Endpoint{
				models.ActionCancel:         {Method: http.MethodPut, Path: "/api/v1/cancel-vaccine-orders", IDIn: IDInQuery},
				models.ActionReschedule:     {Method: http.MethodPut, Path: "/api/v1/reschedule-vaccine-orders", IDIn: IDInQuery},
				models.ActionUpdateSchedule: {Method: http.MethodPost, Path: "/api/v1/add-scheduled", IDIn: IDInBody},
				models.ActionSubmitReview:   {Method: http.MethodPost, Path: "/api/v1/add-review", IDIn: IDInBody},
			},
			CancelStatus:     models.StatusCancelled,
			OptimisticCancel: true,
			RescheduleStatus: models.StatusRescheduled,
		},
		{
			Name:    models.DomainPhysio,
			Palette: PaletteCare,
			Fetch:   Endpoint{Method: http.MethodGet, Path: "/api/v1/get-single-order-physio", IDIn: IDInQuery},
			List:    Endpoint{Method: http.MethodGet, Path: "/api/v1/get-order-physio"},
			Actions: map[models.ActionKind]Endpoint{
				models.ActionCancel:       {Method: http.MethodPut, Path: "/api/v1/cancel-order-of-physio", IDIn: IDInQuery},
				models.ActionReschedule:   {Method: http.MethodPut, Path: "/api/v1/reschedule-order-physio", IDIn: IDInBody},
				models.ActionSubmitReview: {Method: http.MethodPost, Path: "/api/v1/update-physio-review", IDIn: IDInBody},
			},
			CancelStatus: models.StatusCancelled,
		},
		{
			Name:    models.DomainCake,
			Palette: PaletteCake,
			Fetch:   Endpoint{Method: http.MethodGet, Path: "/api/v1/cake-booking", IDIn: IDInQuery},
			List:    Endpoint{Method: http.MethodGet, Path: "/api/v1/cake-booking"},
			Actions: map[models.ActionKind]Endpoint{
				models.ActionCancel:       {Method: http.MethodPut, Path: "/api/v1/chanage-booking-status", IDIn: IDInBody},
				models.ActionSubmitReview: {Method: http.MethodPost, Path: "/api/v1/cake-review", IDIn: IDInBody},
			},
			CancelStatus:     models.StatusCancelled,
			OptimisticCancel: true,
		},
		{
			Name:    models.DomainPetShop,
			Palette: PalettePetShop,
			Fetch:   Endpoint{Method: http.MethodGet, Path: "/api/v1/petshop-my-bakery-get/:id", IDIn: IDInPath},
			List:    Endpoint{Method: http.MethodGet, Path: "/api/v1/petshop-my-bakery-get"},
			Actions: map[models.ActionKind]Endpoint{
				models.ActionCancel: {Method: http.MethodPut, Path: "/api/v1/petshop-bakery-cancel/:id", IDIn: IDInPath},
			},
			CancelStatus: models.StatusCancelled,
		},
	}
}

// Registry holds the active spec per domain.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]DomainSpec
}

func NewRegistry(specs ...DomainSpec) *Registry {
	r := &Registry{specs: make(map[string]DomainSpec, len(specs))}
	for _, s := range specs {
		r.specs[s.Name] = s.clone()
	}
	return r
}

func (r *Registry) Get(domain string) (DomainSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[strings.ToLower(strings.TrimSpace(domain))]
	if !ok {
		return DomainSpec{}, false
	}
	return s.clone(), true
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply merges config overrides. Unknown domains are added as new specs.
func (r *Registry) Apply(overrides map[string]config.DomainConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, o := range overrides {
		key := strings.ToLower(strings.TrimSpace(name))
		spec, ok := r.specs[key]
		if !ok {
			spec = DomainSpec{Name: key, Palette: PaletteDefault, CancelStatus: models.StatusCancelled}
		}
		spec = spec.clone()

		if o.Palette != "" {
			spec.Palette = o.Palette
		}
		if o.OptimisticCancel != nil {
			spec.OptimisticCancel = *o.OptimisticCancel
		}
		if o.CancelStatus != "" {
			spec.CancelStatus = o.CancelStatus
		}
		if o.RescheduleStatus != nil {
			spec.RescheduleStatus = *o.RescheduleStatus
		}
		if o.Fetch != nil {
			spec.Fetch = endpointFromConfig(*o.Fetch, http.MethodGet)
		}
		if o.List != nil {
			spec.List = endpointFromConfig(*o.List, http.MethodGet)
		}
		for action, ep := range o.Actions {
			kind, err := ParseActionKind(action)
			if err != nil {
				return fmt.Errorf("domain %s: %w", key, err)
			}
			spec.Actions[kind] = endpointFromConfig(ep, http.MethodPut)
		}

		if spec.Fetch.Path == "" {
			return fmt.Errorf("domain %s has no fetch endpoint", key)
		}
		r.specs[key] = spec
	}
	return nil
}

func endpointFromConfig(c config.EndpointConfig, defaultMethod string) Endpoint {
	method := strings.ToUpper(strings.TrimSpace(c.Method))
	if method == "" {
		method = defaultMethod
	}
	return Endpoint{Method: method, Path: c.Path, IDIn: strings.ToLower(strings.TrimSpace(c.IDIn))}
}

func ParseActionKind(raw string) (models.ActionKind, error) {
	switch models.ActionKind(strings.ToLower(strings.TrimSpace(raw))) {
	case models.ActionCancel:
		return models.ActionCancel, nil
	case models.ActionReschedule:
		return models.ActionReschedule, nil
	case models.ActionSubmitReview, "review":
		return models.ActionSubmitReview, nil
	case models.ActionUpdateSchedule, "schedule":
		return models.ActionUpdateSchedule, nil
	default:
		return "", fmt.Errorf("unknown action %q", raw)
	}
}
