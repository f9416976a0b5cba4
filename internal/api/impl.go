// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package api

import (
	"regexp"
	"time"

	"github.com/xykasumi/grbld/internal/grbl"
	"github.com/xykasumi/grbld/internal/jobsched"
	"github.com/xykasumi/grbld/internal/store"
)

// Server implements GrblAPI atop a live grbl.Driver plus the supporting
// stores and job scheduler. One Server is created per serial connection.
type Server struct {
	Driver   *grbl.Driver
	Jobs     *jobsched.JobSched
	Lines    *store.LineDB
	TS       *store.TSDB
	InitPath string
}

func (s *Server) Connect(*ConnectRequest) (*ConnectResponse, error) {
	return &ConnectResponse{}, s.Driver.Connect()
}

func (s *Server) Disconnect(*DisconnectRequest) (*DisconnectResponse, error) {
	return &DisconnectResponse{}, s.Driver.Disconnect()
}

func (s *Server) WriteLine(req *WriteLineRequest) (*WriteLineResponse, error) {
	s.Driver.SendJog(req.Line)
	return &WriteLineResponse{OK: true, Time: timeToSeconds(time.Now())}, nil
}

func (s *Server) Stream(req *StreamRequest) (*StreamResponse, error) {
	s.Driver.Stream(req.Lines)
	return &StreamResponse{}, nil
}

func (s *Server) QueryLines(req *QueryLinesRequest) (*QueryLinesResponse, error) {
	opts := store.QueryOptions{FilterDir: req.FilterDir}
	switch {
	case req.Tail != nil:
		opts.Scan = store.TailScan{N: *req.Tail}
	case req.FromLine != nil || req.ToLine != nil:
		opts.Scan = store.RangeScan{FromLine: req.FromLine, ToLine: req.ToLine}
	}
	if req.FilterRegex != "" {
		re, err := regexp.Compile(req.FilterRegex)
		if err != nil {
			return nil, err
		}
		opts.FilterRegex = re
	}

	lines := s.Lines.Query(opts)
	out := make([]LineInfo, len(lines))
	for i, l := range lines {
		out[i] = LineInfo{LineNum: l.Num, Dir: l.Dir, Content: l.Content, Time: timeToSeconds(l.Time)}
	}
	return &QueryLinesResponse{Count: len(out), Lines: out, Now: timeToSeconds(time.Now())}, nil
}

func (s *Server) Halt(*HaltRequest) (*HaltResponse, error) {
	return &HaltResponse{}, s.Driver.Halt()
}

func (s *Server) Unstash(*UnstashRequest) (*UnstashResponse, error) {
	return &UnstashResponse{}, s.Driver.Unstash()
}

func (s *Server) Pause(*PauseRequest) (*PauseResponse, error) {
	return &PauseResponse{}, s.Driver.Pause()
}

func (s *Server) Resume(*ResumeRequest) (*ResumeResponse, error) {
	return &ResumeResponse{}, s.Driver.Resume()
}

func (s *Server) SoftReset(*SoftResetRequest) (*SoftResetResponse, error) {
	return &SoftResetResponse{}, s.Driver.SoftReset()
}

func (s *Server) SetStreamingMode(req *SetStreamingModeRequest) (*SetStreamingModeResponse, error) {
	mode := grbl.CharacterCounting
	if req.Mode == "incremental" {
		mode = grbl.Incremental
	}
	s.Driver.SetStreamingMode(mode)
	return &SetStreamingModeResponse{}, nil
}

func (s *Server) SetFeedOverride(req *SetFeedOverrideRequest) (*SetFeedOverrideResponse, error) {
	s.Driver.SetFeedOverride(req.Enabled)
	return &SetFeedOverrideResponse{}, nil
}

func (s *Server) RequestFeed(req *RequestFeedRequest) (*RequestFeedResponse, error) {
	s.Driver.RequestFeed(req.Value)
	return &RequestFeedResponse{}, nil
}

func (s *Server) SetInit(req *SetInitRequest) (*SetInitResponse, error) {
	if err := store.WriteInitLines(s.InitPath, req.Lines); err != nil {
		return nil, err
	}
	return &SetInitResponse{}, nil
}

func (s *Server) GetInit(*GetInitRequest) (*GetInitResponse, error) {
	lines, err := store.ReadInitLines(s.InitPath)
	if err != nil {
		return nil, err
	}
	return &GetInitResponse{Lines: lines}, nil
}

func (s *Server) GetStatus(*GetStatusRequest) (*GetStatusResponse, error) {
	snap := s.Driver.Snapshot()
	resp := &GetStatusResponse{
		Mode:          string(snap.Mode),
		MachinePos:    [3]float64{snap.MachinePosition.X, snap.MachinePosition.Y, snap.MachinePosition.Z},
		WorkingPos:    [3]float64{snap.WorkingPosition.X, snap.WorkingPosition.Y, snap.WorkingPosition.Z},
		FeedCurrent:   snap.FeedCurrent,
		RxFillPercent: snap.RxFillPercent,
		HasPendingJob: s.Jobs.HasPendingJob(),
	}
	if id, ok := s.Jobs.FindRunningJobID(); ok {
		resp.RunningJobID = id
	}
	if len(snap.Settings) > 0 {
		if axis, err := grbl.DecodeWellKnownSettings(snap.Settings); err == nil {
			resp.AxisConfig = &axis
		}
	}
	return resp, nil
}

func (s *Server) AddJob(req *AddJobRequest) (*AddJobResponse, error) {
	signals := make(map[string]time.Duration, len(req.Signals))
	for k, v := range req.Signals {
		signals[k] = time.Duration(v * float64(time.Second))
	}
	id, ok := s.Jobs.AddJob(req.Lines, signals)
	if !ok {
		return &AddJobResponse{OK: false}, nil
	}
	return &AddJobResponse{OK: true, JobID: &id}, nil
}

func (s *Server) ListJobs(*ListJobsRequest) (*ListJobsResponse, error) {
	jobs := s.Jobs.ListJobs()
	out := make([]JobInfo, len(jobs))
	for i, j := range jobs {
		info := JobInfo{JobID: j.ID, Status: string(j.Status), TimeAdded: timeToSeconds(j.TimeAdded)}
		if j.TimeStarted != nil {
			v := timeToSeconds(*j.TimeStarted)
			info.TimeStarted = &v
		}
		if j.TimeEnded != nil {
			v := timeToSeconds(*j.TimeEnded)
			info.TimeEnded = &v
		}
		out[i] = info
	}
	return &ListJobsResponse{Jobs: out}, nil
}

func (s *Server) CancelJob(*CancelJobRequest) (*CancelJobResponse, error) {
	return &CancelJobResponse{OK: s.Jobs.CancelJob()}, nil
}

func (s *Server) QueryTS(req *QueryTSRequest) (*QueryTSResponse, error) {
	start := secondsToTime(req.Start)
	end := secondsToTime(req.End)
	step := time.Duration(req.Step * float64(time.Second))

	tms, valsMap := s.TS.QueryRanges(req.Query, start, end, step)
	times := make([]float64, len(tms))
	for i, t := range tms {
		times[i] = timeToSeconds(t)
	}
	values := make(map[string][]interface{}, len(valsMap))
	for k, v := range valsMap {
		row := make([]interface{}, len(v))
		for i, x := range v {
			row[i] = x
		}
		values[k] = row
	}
	return &QueryTSResponse{Times: times, Values: values}, nil
}

func (s *Server) RequestSettings(*RequestSettingsRequest) (*RequestSettingsResponse, error) {
	return &RequestSettingsResponse{}, s.Driver.RequestSettings()
}

func (s *Server) RequestHashState(*RequestHashStateRequest) (*RequestHashStateResponse, error) {
	return &RequestHashStateResponse{}, s.Driver.RequestHashState()
}

func (s *Server) RequestParserState(*RequestParserStateRequest) (*RequestParserStateResponse, error) {
	return &RequestParserStateResponse{}, s.Driver.RequestParserState()
}
