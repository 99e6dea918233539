// Package preset implements PresetDocument (de)serialization and
// validation (spec §3, §6): the versioned JSON snapshot of every
// user-visible engine setting, with unknown keys preserved round-trip.
package preset

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CurrentFormatVersion is the formatVersion this build writes and
// understands natively (spec §6: "current = 4").
const CurrentFormatVersion = 4

// TriggerNames are the six fixed trigger keys under the "triggers" object
// (spec §6).
var TriggerNames = [...]string{"bass", "loMid", "hiMid", "high", "envelope", "silence"}

// OscTemplateDoc is the JSON form of an OscTemplate (trigger.OscTemplate),
// kept independent of internal/trigger so preset has no dependency on the
// runtime trigger package.
type OscTemplateDoc struct {
	Address string `json:"address" validate:"required"`
}

// OscBindingDoc is the JSON form of trigger.Binding. Unknown keys are
// preserved round-trip (spec §3 "Forward-compatibility rule" applies at
// every nesting level, not just the document root — see spec.md §8
// Scenario D).
type OscBindingDoc struct {
	OnMsg    *OscTemplateDoc `json:"onMsg,omitempty"`
	OffMsg   *OscTemplateDoc `json:"offMsg,omitempty"`
	LevelMsg *OscTemplateDoc `json:"levelMsg,omitempty"`

	LevelMin float64 `json:"levelMin"`
	LevelMax float64 `json:"levelMax" validate:"gtefield=LevelMin"`

	Label string `json:"label" validate:"max=200"`

	extra map[string]json.RawMessage
}

var knownOscBindingKeys = map[string]bool{
	"onMsg": true, "offMsg": true, "levelMsg": true,
	"levelMin": true, "levelMax": true, "label": true,
}

func (d *OscBindingDoc) UnmarshalJSON(data []byte) error {
	type alias OscBindingDoc
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("decode osc binding: %w", err)
	}
	*d = OscBindingDoc(a)

	extra, err := unknownKeys(data, knownOscBindingKeys)
	if err != nil {
		return fmt.Errorf("decode osc binding top level: %w", err)
	}
	d.extra = extra
	return nil
}

func (d OscBindingDoc) MarshalJSON() ([]byte, error) {
	type alias OscBindingDoc
	known, err := json.Marshal(alias(d))
	if err != nil {
		return nil, fmt.Errorf("encode osc binding: %w", err)
	}
	return mergeExtra(known, d.extra)
}

// TriggerDoc is the JSON form of trigger.Definition (spec §3
// TriggerDefinition). Unknown keys are preserved round-trip (see
// OscBindingDoc).
type TriggerDoc struct {
	Kind string `json:"kind" validate:"required,oneof=bandpass envelope silence"`

	CenterHz float64 `json:"centerHz" validate:"gte=0"`
	Width    float64 `json:"width" validate:"gte=0,lte=1"`

	Threshold float64 `json:"threshold" validate:"gte=0,lte=1"`
	Mute      bool    `json:"mute"`

	OnDelaySeconds  float64 `json:"onDelaySeconds" validate:"gte=0"`
	OffDelaySeconds float64 `json:"offDelaySeconds" validate:"gte=0"`
	MaxHoldSeconds  float64 `json:"maxHoldSeconds" validate:"gte=0"`

	OSC OscBindingDoc `json:"osc"`

	extra map[string]json.RawMessage
}

var knownTriggerKeys = map[string]bool{
	"kind": true, "centerHz": true, "width": true,
	"threshold": true, "mute": true,
	"onDelaySeconds": true, "offDelaySeconds": true, "maxHoldSeconds": true,
	"osc": true,
}

func (d *TriggerDoc) UnmarshalJSON(data []byte) error {
	type alias TriggerDoc
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("decode trigger document: %w", err)
	}
	*d = TriggerDoc(a)

	extra, err := unknownKeys(data, knownTriggerKeys)
	if err != nil {
		return fmt.Errorf("decode trigger document top level: %w", err)
	}
	d.extra = extra
	return nil
}

func (d TriggerDoc) MarshalJSON() ([]byte, error) {
	type alias TriggerDoc
	known, err := json.Marshal(alias(d))
	if err != nil {
		return nil, fmt.Errorf("encode trigger document: %w", err)
	}
	return mergeExtra(known, d.extra)
}

// DspDoc is the "dsp" object: ScaledSpectrum's user-visible settings.
// Unknown keys are preserved round-trip (see OscBindingDoc).
type DspDoc struct {
	Gain        float64 `json:"gain" validate:"gte=0,lte=64"`
	Compression float64 `json:"compression" validate:"gte=0.5,lte=2"`
	Decibel     bool    `json:"decibel"`
	AGC         bool    `json:"agc"`

	extra map[string]json.RawMessage
}

var knownDspKeys = map[string]bool{
	"gain": true, "compression": true, "decibel": true, "agc": true,
}

func (d *DspDoc) UnmarshalJSON(data []byte) error {
	type alias DspDoc
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("decode dsp document: %w", err)
	}
	*d = DspDoc(a)

	extra, err := unknownKeys(data, knownDspKeys)
	if err != nil {
		return fmt.Errorf("decode dsp document top level: %w", err)
	}
	d.extra = extra
	return nil
}

func (d DspDoc) MarshalJSON() ([]byte, error) {
	type alias DspDoc
	known, err := json.Marshal(alias(d))
	if err != nil {
		return nil, fmt.Errorf("encode dsp document: %w", err)
	}
	return mergeExtra(known, d.extra)
}

// BpmOscDoc is the "bpm.osc" object: the configured BPM/beat OSC command
// list.
type BpmOscDoc struct {
	Commands []string `json:"commands"`
}

// BpmDoc is the "bpm" object: TempoEstimator's user-visible settings.
// Unknown keys are preserved round-trip (see OscBindingDoc).
type BpmDoc struct {
	Min  float64   `json:"min" validate:"gt=0,ltfield=Max"`
	Max  float64   `json:"max" validate:"gt=0"`
	Mute bool      `json:"mute"`
	OSC  BpmOscDoc `json:"osc"`

	extra map[string]json.RawMessage
}

var knownBpmKeys = map[string]bool{
	"min": true, "max": true, "mute": true, "osc": true,
}

func (d *BpmDoc) UnmarshalJSON(data []byte) error {
	type alias BpmDoc
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("decode bpm document: %w", err)
	}
	*d = BpmDoc(a)

	extra, err := unknownKeys(data, knownBpmKeys)
	if err != nil {
		return fmt.Errorf("decode bpm document top level: %w", err)
	}
	d.extra = extra
	return nil
}

func (d BpmDoc) MarshalJSON() ([]byte, error) {
	type alias BpmDoc
	known, err := json.Marshal(alias(d))
	if err != nil {
		return nil, fmt.Errorf("encode bpm document: %w", err)
	}
	return mergeExtra(known, d.extra)
}

// unknownKeys decodes data's top-level object and returns the subset of
// keys not present in known, for stashing into an extra bag.
func unknownKeys(data []byte, known map[string]bool) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !known[k] {
			extra[k] = v
		}
	}
	return extra, nil
}

// mergeExtra re-merges extra's preserved keys into known's already-encoded
// object bytes.
func mergeExtra(known []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return known, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, fmt.Errorf("remerge document: %w", err)
	}
	for k, v := range extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Document is PresetDocument (spec §3, §6): the root JSON object. Unknown
// keys are preserved round-trip via the extra map that Document, DspDoc,
// BpmDoc, TriggerDoc and OscBindingDoc each carry; BpmOscDoc and
// OscTemplateDoc have no extra map and drop unknown keys.
type Document struct {
	FormatVersion int    `json:"formatVersion" validate:"required"`
	LowSoloMode   bool   `json:"lowSoloMode"`
	Dsp           DspDoc `json:"dsp"`
	Bpm           BpmDoc `json:"bpm"`

	Triggers map[string]TriggerDoc `json:"triggers" validate:"required,dive"`

	// extra holds unknown top-level keys, preserved byte-for-byte across
	// a load/save round trip (spec §3 "Forward-compatibility rule").
	extra map[string]json.RawMessage
}

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// knownTopLevelKeys mirrors Document's own json tags, used to separate
// recognized fields from the unknown-key bag on Unmarshal.
var knownTopLevelKeys = map[string]bool{
	"formatVersion": true,
	"lowSoloMode":   true,
	"dsp":           true,
	"bpm":           true,
	"triggers":      true,
}

// UnmarshalJSON decodes data into Document, stashing any key not in
// knownTopLevelKeys into extra so MarshalJSON can write it back unchanged.
// Dsp/Bpm/Triggers (and OscBindingDoc nested under each TriggerDoc) apply
// the same treatment recursively via their own UnmarshalJSON methods.
func (d *Document) UnmarshalJSON(data []byte) error {
	type alias Document
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("decode preset document: %w", err)
	}
	*d = Document(a)

	extra, err := unknownKeys(data, knownTopLevelKeys)
	if err != nil {
		return fmt.Errorf("decode preset document top level: %w", err)
	}
	d.extra = extra
	return nil
}

// MarshalJSON encodes Document plus any preserved unknown top-level keys.
func (d Document) MarshalJSON() ([]byte, error) {
	type alias Document
	known, err := json.Marshal(alias(d))
	if err != nil {
		return nil, fmt.Errorf("encode preset document: %w", err)
	}
	return mergeExtra(known, d.extra)
}

// Decode parses and validates a PresetDocument from data (spec §6
// "validated on load" per SPEC_FULL.md §A).
func Decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, err
	}
	if err := Validate(doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate checks doc's field-level constraints (validator tags) plus the
// cross-field invariant the tags can't express: all six TriggerNames must
// be present. Exported so callers that already hold a Document in memory
// (engine.FromState given a document not freshly decoded) can re-check it
// before mutating live state (spec §7 ConfigInvalid).
func Validate(doc Document) error {
	if err := validate.Struct(doc); err != nil {
		return fmt.Errorf("invalid preset document: %w", err)
	}
	for _, name := range TriggerNames {
		if _, ok := doc.Triggers[name]; !ok {
			return fmt.Errorf("invalid preset document: missing trigger %q", name)
		}
	}
	return nil
}

// Encode serializes doc back to its JSON wire form.
func Encode(doc Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
