package build

import (
	"encoding/json"
	"time"
)

// Document is the serializable projection of a workflow: everything
// exit-phase plugins and external reporting consume. It contains every
// phase's results, all recorded errors, and per-platform results for failed
// builds as well as successful ones.
type Document struct {
	BuildID   string  `json:"build_id"`
	Status    Status  `json:"status"`
	Params    *Params `json:"params,omitempty"`
	TagConf   TagConf `json:"tag_conf"`
	FailedMsg string  `json:"fail_reason,omitempty"`

	ParentImages []ParentImage `json:"parent_images,omitempty"`

	// Results preserves per-phase insertion order
	Results map[Phase][]PluginResult `json:"results"`

	Errors map[string]string `json:"errors,omitempty"`

	StartTimes map[string]time.Time     `json:"start_times,omitempty"`
	Durations  map[string]time.Duration `json:"durations,omitempty"`

	PlatformResults []PlatformResult `json:"platform_results,omitempty"`
}

// Document captures the workflow's current state as an immutable projection
func (w *Workflow) Document() *Document {
	w.mu.Lock()
	defer w.mu.Unlock()

	results := make(map[Phase][]PluginResult, len(w.results))
	for phase, list := range w.results {
		results[phase] = append([]PluginResult(nil), list...)
	}
	errs := make(map[string]string, len(w.errors))
	for k, v := range w.errors {
		errs[k] = v
	}
	starts := make(map[string]time.Time, len(w.started))
	for k, v := range w.started {
		starts[k] = v
	}
	durations := make(map[string]time.Duration, len(w.elapsed))
	for k, v := range w.elapsed {
		durations[k] = v
	}

	var failMsg string
	if w.status == StatusFailed {
		parts := make([]string, 0, len(w.errOrder))
		for _, plugin := range w.errOrder {
			parts = append(parts, plugin+": "+w.errors[plugin])
		}
		if len(parts) > 0 {
			failMsg = parts[0]
		}
	}

	return &Document{
		BuildID:         w.BuildID,
		Status:          w.status,
		Params:          w.Params,
		TagConf:         w.TagConf,
		FailedMsg:       failMsg,
		ParentImages:    append([]ParentImage(nil), w.ParentImages...),
		Results:         results,
		Errors:          errs,
		StartTimes:      starts,
		Durations:       durations,
		PlatformResults: append([]PlatformResult(nil), w.platformResults...),
	}
}

// Marshal renders the document as JSON
func (d *Document) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// ParseDocument decodes a serialized workflow document
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
