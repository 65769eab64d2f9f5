package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dokzlo13/lightfx/internal/effects"
	"github.com/dokzlo13/lightfx/internal/lights"
)

// Params are the JSON tuning parameters passed with -j. Unknown keys are ignored.
type Params struct {
	BriRange []int    `json:"bri_range,omitempty"`
	HueRange []int    `json:"hue_range,omitempty"`
	SatRange []int    `json:"sat_range,omitempty"`
	Speed    *int     `json:"speed,omitempty"`
	Factor   *float64 `json:"factor,omitempty"`
	IgnoreOn bool     `json:"ignore_on,omitempty"`
	Interval *float64 `json:"interval,omitempty"` // Seconds between ticks of a repeated command
}

// ParseParams decodes the tuning parameters. Single quotes are accepted in
// place of double quotes so the JSON can be written inside a double-quoted
// shell argument.
func ParseParams(raw string) (Params, error) {
	var p Params
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return p, nil
	}

	raw = strings.ReplaceAll(raw, "'", `"`)
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Params{}, fmt.Errorf("%w: json parameters: %v", lights.ErrInvalidArgument, err)
	}
	if err := p.validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

func (p Params) validate() error {
	ranges := map[string][]int{
		"bri_range": p.BriRange,
		"hue_range": p.HueRange,
		"sat_range": p.SatRange,
	}
	for key, r := range ranges {
		if r != nil && len(r) != 2 {
			return fmt.Errorf("%w: %s must be [low, high], got %v", lights.ErrInvalidArgument, key, r)
		}
	}
	if p.Interval != nil && *p.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %v", lights.ErrInvalidArgument, *p.Interval)
	}
	return nil
}

// rangeOr returns r as a Range, or def when r is unset
func rangeOr(r []int, def []int) effects.Range {
	if len(r) == 2 {
		return effects.Range{r[0], r[1]}
	}
	if len(def) == 2 {
		return effects.Range{def[0], def[1]}
	}
	return effects.Range{}
}
