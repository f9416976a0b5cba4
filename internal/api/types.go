// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api exposes a grbl.Driver over a chi-routed JSON HTTP surface,
// grounded on server.go's SpoolerAPI interface and hand-rolled generic JSON
// handler, extended with the grbl command surface (pause/resume/halt/
// unstash/softreset/settings-hash-parser-state queries).
package api

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xykasumi/grbld/internal/grbl"
)

// GrblAPI is the request/response surface the HTTP layer dispatches to.
// Returning an error here means an internal server error; invalid input is
// caught by each request's validate function before exec ever runs.
type GrblAPI interface {
	Connect(req *ConnectRequest) (*ConnectResponse, error)
	Disconnect(req *DisconnectRequest) (*DisconnectResponse, error)
	WriteLine(req *WriteLineRequest) (*WriteLineResponse, error)
	Stream(req *StreamRequest) (*StreamResponse, error)
	QueryLines(req *QueryLinesRequest) (*QueryLinesResponse, error)
	Halt(req *HaltRequest) (*HaltResponse, error)
	Unstash(req *UnstashRequest) (*UnstashResponse, error)
	Pause(req *PauseRequest) (*PauseResponse, error)
	Resume(req *ResumeRequest) (*ResumeResponse, error)
	SoftReset(req *SoftResetRequest) (*SoftResetResponse, error)
	SetStreamingMode(req *SetStreamingModeRequest) (*SetStreamingModeResponse, error)
	SetFeedOverride(req *SetFeedOverrideRequest) (*SetFeedOverrideResponse, error)
	RequestFeed(req *RequestFeedRequest) (*RequestFeedResponse, error)
	SetInit(req *SetInitRequest) (*SetInitResponse, error)
	GetInit(req *GetInitRequest) (*GetInitResponse, error)
	GetStatus(req *GetStatusRequest) (*GetStatusResponse, error)
	AddJob(req *AddJobRequest) (*AddJobResponse, error)
	ListJobs(req *ListJobsRequest) (*ListJobsResponse, error)
	CancelJob(req *CancelJobRequest) (*CancelJobResponse, error)
	QueryTS(req *QueryTSRequest) (*QueryTSResponse, error)
	RequestSettings(req *RequestSettingsRequest) (*RequestSettingsResponse, error)
	RequestHashState(req *RequestHashStateRequest) (*RequestHashStateResponse, error)
	RequestParserState(req *RequestParserStateRequest) (*RequestParserStateResponse, error)
}

type LineInfo struct {
	LineNum int     `json:"line_num"`
	Dir     string  `json:"dir"`
	Content string  `json:"content"`
	Time    float64 `json:"time"`
}

type ConnectRequest struct{}
type ConnectResponse struct{}

func validateConnect(*ConnectRequest) error { return nil }

type DisconnectRequest struct{}
type DisconnectResponse struct{}

func validateDisconnect(*DisconnectRequest) error { return nil }

type WriteLineRequest struct {
	Line string `json:"line"`
}

type WriteLineResponse struct {
	OK   bool    `json:"ok"`
	Time float64 `json:"time"`
}

func validateWriteLine(req *WriteLineRequest) error {
	if strings.Contains(req.Line, "\n") {
		return errors.New("line cannot contain newline")
	}
	if len(req.Line) > 100 {
		return errors.New("line must be <= 100 bytes")
	}
	if req.Line == "" {
		return errors.New("line cannot be empty")
	}
	return nil
}

type StreamRequest struct {
	Lines []string `json:"lines"`
}
type StreamResponse struct{}

func validateStream(req *StreamRequest) error {
	if len(req.Lines) == 0 {
		return errors.New("lines cannot be empty")
	}
	for _, line := range req.Lines {
		if strings.Contains(line, "\n") {
			return errors.New("stream lines must not contain newline")
		}
	}
	return nil
}

type QueryLinesRequest struct {
	FromLine    *int   `json:"from_line,omitempty"`
	ToLine      *int   `json:"to_line,omitempty"`
	Tail        *int   `json:"tail,omitempty"`
	FilterDir   string `json:"filter_dir,omitempty"`
	FilterRegex string `json:"filter_regex,omitempty"`
}

type QueryLinesResponse struct {
	Count int        `json:"count"`
	Lines []LineInfo `json:"lines"`
	Now   float64    `json:"now"`
}

func validateQueryLines(req *QueryLinesRequest) error {
	tailExists := req.Tail != nil
	rangeExists := req.FromLine != nil || req.ToLine != nil

	if tailExists && rangeExists {
		return errors.New("tail cannot be used together with from_line/to_line")
	}
	if rangeExists {
		if req.FromLine != nil && *req.FromLine < 1 {
			return errors.New("from_line must be >= 1")
		}
		if req.ToLine != nil && *req.ToLine < 1 {
			return errors.New("to_line must be >= 1")
		}
		if req.FromLine != nil && req.ToLine != nil && *req.ToLine < *req.FromLine {
			return errors.New("to_line must be >= from_line")
		}
	}
	if tailExists && *req.Tail < 1 {
		return errors.New("tail must be >= 1")
	}
	if req.FilterDir != "" && req.FilterDir != "up" && req.FilterDir != "down" {
		return errors.New("filter_dir must be 'up' or 'down'")
	}
	if req.FilterRegex != "" {
		if _, err := regexp.Compile(req.FilterRegex); err != nil {
			return fmt.Errorf("filter_regex: invalid regex: %w", err)
		}
	}
	return nil
}

type HaltRequest struct{}
type HaltResponse struct{}

func validateHalt(*HaltRequest) error { return nil }

type UnstashRequest struct{}
type UnstashResponse struct{}

func validateUnstash(*UnstashRequest) error { return nil }

type PauseRequest struct{}
type PauseResponse struct{}

func validatePause(*PauseRequest) error { return nil }

type ResumeRequest struct{}
type ResumeResponse struct{}

func validateResume(*ResumeRequest) error { return nil }

type SoftResetRequest struct{}
type SoftResetResponse struct{}

func validateSoftReset(*SoftResetRequest) error { return nil }

type SetStreamingModeRequest struct {
	Mode string `json:"mode"` // "character-counting" or "incremental"
}
type SetStreamingModeResponse struct{}

func validateSetStreamingMode(req *SetStreamingModeRequest) error {
	if req.Mode != "character-counting" && req.Mode != "incremental" {
		return errors.New("mode must be 'character-counting' or 'incremental'")
	}
	return nil
}

type SetFeedOverrideRequest struct {
	Enabled bool `json:"enabled"`
}
type SetFeedOverrideResponse struct{}

func validateSetFeedOverride(*SetFeedOverrideRequest) error { return nil }

type RequestFeedRequest struct {
	Value float64 `json:"value"`
}
type RequestFeedResponse struct{}

func validateRequestFeed(req *RequestFeedRequest) error {
	if req.Value < 0 {
		return errors.New("value must be >= 0")
	}
	return nil
}

type SetInitRequest struct {
	Lines []string `json:"lines"`
}
type SetInitResponse struct{}

func validateSetInit(req *SetInitRequest) error {
	for _, line := range req.Lines {
		if strings.Contains(line, "\n") {
			return errors.New("init lines must not contain newline")
		}
	}
	return nil
}

type GetInitRequest struct{}
type GetInitResponse struct {
	Lines []string `json:"lines"`
}

func validateGetInit(*GetInitRequest) error { return nil }

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Mode          string                  `json:"mode"`
	MachinePos    [3]float64              `json:"machine_pos"`
	WorkingPos    [3]float64              `json:"working_pos"`
	FeedCurrent   float64                 `json:"feed_current"`
	RxFillPercent int                     `json:"rx_fill_percent"`
	QueueDepth    int                     `json:"queue_depth"`
	HasPendingJob bool                    `json:"has_pending_job"`
	RunningJobID  string                  `json:"running_job_id,omitempty"`
	AxisConfig    *grbl.WellKnownSettings `json:"axis_config,omitempty"`
}

func validateGetStatus(*GetStatusRequest) error { return nil }

type AddJobRequest struct {
	Lines   []string           `json:"lines"`
	Signals map[string]float64 `json:"signals"` // interval in seconds, key currently must be "status"
}

type AddJobResponse struct {
	OK    bool    `json:"ok"`
	JobID *string `json:"job_id,omitempty"`
}

func validateAddJob(req *AddJobRequest) error {
	for _, line := range req.Lines {
		if strings.Contains(line, "\n") || line == "" {
			return errors.New("invalid job line")
		}
	}
	for signal, interval := range req.Signals {
		if signal != "status" {
			return errors.New("unsupported signal: " + signal)
		}
		if interval <= 0 {
			return errors.New("signal interval must be > 0")
		}
	}
	return nil
}

type ListJobsRequest struct{}

type JobInfo struct {
	JobID       string   `json:"job_id"`
	Status      string   `json:"status"`
	TimeAdded   float64  `json:"time_added"`
	TimeStarted *float64 `json:"time_started,omitempty"`
	TimeEnded   *float64 `json:"time_ended,omitempty"`
}

type ListJobsResponse struct {
	Jobs []JobInfo `json:"jobs"`
}

func validateListJobs(*ListJobsRequest) error { return nil }

type CancelJobRequest struct{}
type CancelJobResponse struct {
	OK bool `json:"ok"`
}

func validateCancelJob(*CancelJobRequest) error { return nil }

type QueryTSRequest struct {
	Start float64  `json:"start"`
	End   float64  `json:"end"`
	Step  float64  `json:"step"`
	Query []string `json:"query"`
}

type QueryTSResponse struct {
	Times  []float64                `json:"times"`
	Values map[string][]interface{} `json:"values"`
}

func validateQueryTS(req *QueryTSRequest) error {
	if len(req.Query) == 0 {
		return errors.New("query cannot be empty")
	}
	if req.Start < 0 || req.End < 0 {
		return errors.New("start/end must be >= 0")
	}
	if req.End < req.Start {
		return errors.New("end must be >= start")
	}
	if req.Step <= 0 {
		return errors.New("step must be > 0")
	}
	if (req.End-req.Start)/req.Step > 10000 {
		return errors.New("too many steps")
	}
	if len(req.Query) > 1000 {
		return errors.New("query: too many keys")
	}
	return nil
}

type RequestSettingsRequest struct{}
type RequestSettingsResponse struct{}

func validateRequestSettings(*RequestSettingsRequest) error { return nil }

type RequestHashStateRequest struct{}
type RequestHashStateResponse struct{}

func validateRequestHashState(*RequestHashStateRequest) error { return nil }

type RequestParserStateRequest struct{}
type RequestParserStateResponse struct{}

func validateRequestParserState(*RequestParserStateRequest) error { return nil }

// secondsToTime converts a Unix-seconds float as used on the wire to a
// time.Time, matching the query-ts contract's units.
func secondsToTime(s float64) time.Time {
	return time.Unix(0, int64(s*float64(time.Second)))
}

func timeToSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
