package config

import (
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"turbinelens/emissions"
)

// PresetManager manages named energy mixes
type PresetManager struct {
	path    string
	mu      sync.RWMutex
	Presets map[string]emissions.Mix // Map preset name -> mix
}

// NewPresetManager creates a new manager
func NewPresetManager(path string) *PresetManager {
	return &PresetManager{
		path:    path,
		Presets: make(map[string]emissions.Mix),
	}
}

// Load reads the presets from disk
func (m *PresetManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			// Seed the file with the demo mix
			m.Presets = map[string]emissions.Mix{"default": emissions.DefaultMix()}
			return m.saveInternal()
		}
		return err
	}

	presets := make(map[string]emissions.Mix)
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &presets); err != nil {
			return err
		}
	}
	m.Presets = presets
	return nil
}

// Save replaces all presets and writes them to disk
func (m *PresetManager) Save(presets map[string]emissions.Mix) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if presets == nil {
		presets = make(map[string]emissions.Mix)
	}
	m.Presets = presets
	return m.saveInternal()
}

// Put adds or replaces one preset
func (m *PresetManager) Put(name string, mix emissions.Mix) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Presets[name] = mix
	return m.saveInternal()
}

// saveInternal writes to disk (must hold lock)
func (m *PresetManager) saveInternal() error {
	data, err := yaml.Marshal(m.Presets)
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

// Get returns a preset by name
func (m *PresetManager) Get(name string) (emissions.Mix, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mix, ok := m.Presets[name]
	return mix, ok
}

// GetAll returns all presets
func (m *PresetManager) GetAll() map[string]emissions.Mix {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return copy
	out := make(map[string]emissions.Mix, len(m.Presets))
	for k, v := range m.Presets {
		out[k] = v
	}
	return out
}

// Names lists preset names in order
func (m *PresetManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.Presets))
	for k := range m.Presets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
