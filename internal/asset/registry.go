package asset

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/joeblew999/plat-assets/internal/geo"
)

// PinZIndex is the draw order of the report pin layer. Asset layers are
// drawn directly beneath it.
const PinZIndex = 1000

// PolicyFunc builds the actions for a layer from its policy options.
type PolicyFunc func(opts map[string]any) (Actions, error)

// Registry is the ordered table of configured layers plus the policies and
// decoder formats they may refer to.
type Registry struct {
	mu       sync.RWMutex
	layers   []*Layer
	byID     map[string]*Layer
	policies map[string]PolicyFunc
	formats  []string
}

// NewRegistry creates an empty registry. When formats is empty any
// retrieval format is accepted.
func NewRegistry(formats ...string) *Registry {
	return &Registry{
		byID:     make(map[string]*Layer),
		policies: make(map[string]PolicyFunc),
		formats:  formats,
	}
}

// RegisterPolicy makes a named policy available to layer configs.
func (r *Registry) RegisterPolicy(name string, fn PolicyFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[name] = fn
}

// Policies returns the registered policy names, sorted.
func (r *Registry) Policies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.policies))
	for n := range r.policies {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Add merges defaults and overrides, validates the result and appends the
// compiled layer. Every problem found is returned in one joined error and
// the layer is not added.
func (r *Registry) Add(defaults, overrides map[string]any) (*Layer, error) {
	merged := Merge(Merge(builtinDefaults(), defaults), overrides)
	cfg, err := DecodeConfig(merged)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validate(&cfg); err != nil {
		if cfg.ID != "" {
			return nil, fmt.Errorf("layer %q: %w", cfg.ID, err)
		}
		return nil, err
	}

	variant, _ := variantOf(cfg)
	actions, err := r.actionsFor(cfg, variant)
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", cfg.ID, err)
	}

	l := &Layer{
		cfg:     cfg,
		variant: variant,
		actions: actions,
		zIndex:  PinZIndex - 1,
		order:   len(r.layers),
	}
	r.layers = append(r.layers, l)
	r.byID[cfg.ID] = l
	return l, nil
}

// Layers returns the layers in registration order.
func (r *Registry) Layers() []*Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.layers)
}

// Get returns a layer by id.
func (r *Registry) Get(id string) (*Layer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byID[id]
	return l, ok
}

func (r *Registry) validate(cfg *LayerConfig) error {
	var errs []error
	if cfg.ID == "" {
		errs = append(errs, errors.New("missing id"))
	} else if _, dup := r.byID[cfg.ID]; dup {
		errs = append(errs, fmt.Errorf("duplicate id %q", cfg.ID))
	}
	if cfg.Name == "" {
		errs = append(errs, errors.New("missing name"))
	}

	variant, err := variantOf(*cfg)
	if err != nil {
		errs = append(errs, err)
	}

	rt := cfg.Retrieval
	if _, err := geo.Canonical(rt.SRSName); err != nil {
		errs = append(errs, fmt.Errorf("retrieval.srs_name: %w", err))
	}
	if len(r.formats) > 0 && !slices.Contains(r.formats, rt.Format) {
		errs = append(errs, fmt.Errorf("unknown retrieval format %q (have %s)", rt.Format, strings.Join(r.formats, ", ")))
	}
	if m := strings.ToUpper(rt.Method); m != "GET" && m != "POST" {
		errs = append(errs, fmt.Errorf("unsupported retrieval method %q", rt.Method))
	}
	if rt.Ratio < 1 {
		errs = append(errs, fmt.Errorf("retrieval.ratio must be at least 1, got %g", rt.Ratio))
	}

	if cfg.SnapRadius < 0 {
		errs = append(errs, errors.New("snap_radius must not be negative"))
	}
	if variant == NearestRoad && cfg.NearestRadius <= 0 {
		errs = append(errs, errors.New("road layer needs a positive nearest_radius"))
	}
	if variant != NearestRoad && !cfg.NonInteractive && cfg.AssetIDField == "" {
		errs = append(errs, errors.New("interactive layer without asset_id_field"))
	}
	if cfg.MinResolution > 0 && cfg.MaxResolution > 0 && cfg.MinResolution > cfg.MaxResolution {
		errs = append(errs, errors.New("min_resolution is above max_resolution"))
	}
	if len(cfg.FilterValue) > 0 && cfg.FilterKey == "" {
		errs = append(errs, errors.New("filter_value without filter_key"))
	}
	for i, m := range cfg.USRN {
		if m.Field == "" || m.Attribute == "" {
			errs = append(errs, fmt.Errorf("usrn[%d] needs field and attribute", i))
		}
	}
	if cfg.FaultLayer != "" {
		if _, ok := r.byID[cfg.FaultLayer]; !ok {
			errs = append(errs, fmt.Errorf("fault_layer %q is not registered", cfg.FaultLayer))
		}
	}
	if cfg.Policy != "" {
		if _, ok := r.policies[cfg.Policy]; !ok {
			errs = append(errs, fmt.Errorf("unknown policy %q", cfg.Policy))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) actionsFor(cfg LayerConfig, v Variant) (Actions, error) {
	if cfg.Policy == "" {
		if v == NearestRoad {
			return DefaultRoadActions{}, nil
		}
		return NopActions{}, nil
	}
	a, err := r.policies[cfg.Policy](cfg.PolicyOptions)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", cfg.Policy, err)
	}
	return a, nil
}
