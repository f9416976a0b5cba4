// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import (
	"github.com/mitchellh/mapstructure"
)

// settingNames maps a grbl `$N` setting number to the field name of the axis
// configuration it carries, for the subset of settings ($0-$32, $100-$132)
// that are stable across firmware versions.
var settingNames = map[int]string{
	0:  "step_pulse_usec",
	1:  "step_idle_delay",
	2:  "step_port_invert_mask",
	3:  "dir_port_invert_mask",
	10: "status_report_mask",
	11: "junction_deviation",
	12: "arc_tolerance",
	20: "soft_limits_enable",
	21: "hard_limits_enable",
	22: "homing_cycle_enable",
	24: "homing_feed",
	25: "homing_seek",
	27: "homing_pulloff",
	30: "max_spindle_speed",
	31: "min_spindle_speed",
	32: "laser_mode_enable",

	100: "x_steps_per_mm",
	101: "y_steps_per_mm",
	102: "z_steps_per_mm",
	110: "x_max_rate",
	111: "y_max_rate",
	112: "z_max_rate",
	120: "x_acceleration",
	121: "y_acceleration",
	122: "z_acceleration",
	130: "x_max_travel",
	131: "y_max_travel",
	132: "z_max_travel",
}

// WellKnownSettings is the subset of a grbl $$ settings dump relevant to
// machine tuning, decoded from the wire's string values into numbers.
type WellKnownSettings struct {
	StepPulseUsec      float64 `mapstructure:"step_pulse_usec"`
	StepIdleDelay      float64 `mapstructure:"step_idle_delay"`
	StepPortInvertMask float64 `mapstructure:"step_port_invert_mask"`
	DirPortInvertMask  float64 `mapstructure:"dir_port_invert_mask"`
	StatusReportMask   float64 `mapstructure:"status_report_mask"`
	JunctionDeviation  float64 `mapstructure:"junction_deviation"`
	ArcTolerance       float64 `mapstructure:"arc_tolerance"`
	SoftLimitsEnable   bool    `mapstructure:"soft_limits_enable"`
	HardLimitsEnable   bool    `mapstructure:"hard_limits_enable"`
	HomingCycleEnable  bool    `mapstructure:"homing_cycle_enable"`
	HomingFeed         float64 `mapstructure:"homing_feed"`
	HomingSeek         float64 `mapstructure:"homing_seek"`
	HomingPulloff      float64 `mapstructure:"homing_pulloff"`
	MaxSpindleSpeed    float64 `mapstructure:"max_spindle_speed"`
	MinSpindleSpeed    float64 `mapstructure:"min_spindle_speed"`
	LaserModeEnable    bool    `mapstructure:"laser_mode_enable"`

	XStepsPerMM   float64 `mapstructure:"x_steps_per_mm"`
	YStepsPerMM   float64 `mapstructure:"y_steps_per_mm"`
	ZStepsPerMM   float64 `mapstructure:"z_steps_per_mm"`
	XMaxRate      float64 `mapstructure:"x_max_rate"`
	YMaxRate      float64 `mapstructure:"y_max_rate"`
	ZMaxRate      float64 `mapstructure:"z_max_rate"`
	XAcceleration float64 `mapstructure:"x_acceleration"`
	YAcceleration float64 `mapstructure:"y_acceleration"`
	ZAcceleration float64 `mapstructure:"z_acceleration"`
	XMaxTravel    float64 `mapstructure:"x_max_travel"`
	YMaxTravel    float64 `mapstructure:"y_max_travel"`
	ZMaxTravel    float64 `mapstructure:"z_max_travel"`
}

// DecodeWellKnownSettings decodes a raw `$N=V` settings dump into
// WellKnownSettings. Setting values arrive as strings off the wire (e.g.
// "80.000" or "1"); mapstructure's weakly-typed decode handles the
// string-to-float64/bool conversion, and unrecognized setting numbers are
// simply dropped rather than erroring.
func DecodeWellKnownSettings(settings map[int]Setting) (WellKnownSettings, error) {
	raw := make(map[string]interface{}, len(settings))
	for num, s := range settings {
		name, known := settingNames[num]
		if !known {
			continue
		}
		raw[name] = s.Value
	}

	var out WellKnownSettings
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(raw); err != nil {
		return out, err
	}
	return out, nil
}
