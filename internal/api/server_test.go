// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubAPI struct{}

func (stubAPI) Connect(*ConnectRequest) (*ConnectResponse, error)       { return &ConnectResponse{}, nil }
func (stubAPI) Disconnect(*DisconnectRequest) (*DisconnectResponse, error) {
	return &DisconnectResponse{}, nil
}

func (stubAPI) WriteLine(req *WriteLineRequest) (*WriteLineResponse, error) {
	return &WriteLineResponse{OK: true}, nil
}

func (stubAPI) Stream(*StreamRequest) (*StreamResponse, error) { return &StreamResponse{}, nil }

func (stubAPI) SetStreamingMode(*SetStreamingModeRequest) (*SetStreamingModeResponse, error) {
	return &SetStreamingModeResponse{}, nil
}

func (stubAPI) SetFeedOverride(*SetFeedOverrideRequest) (*SetFeedOverrideResponse, error) {
	return &SetFeedOverrideResponse{}, nil
}

func (stubAPI) RequestFeed(*RequestFeedRequest) (*RequestFeedResponse, error) {
	return &RequestFeedResponse{}, nil
}
func (stubAPI) QueryLines(req *QueryLinesRequest) (*QueryLinesResponse, error) {
	return &QueryLinesResponse{}, nil
}
func (stubAPI) Halt(*HaltRequest) (*HaltResponse, error)             { return &HaltResponse{}, nil }
func (stubAPI) Unstash(*UnstashRequest) (*UnstashResponse, error)     { return &UnstashResponse{}, nil }
func (stubAPI) Pause(*PauseRequest) (*PauseResponse, error)           { return &PauseResponse{}, nil }
func (stubAPI) Resume(*ResumeRequest) (*ResumeResponse, error)        { return &ResumeResponse{}, nil }
func (stubAPI) SoftReset(*SoftResetRequest) (*SoftResetResponse, error) {
	return &SoftResetResponse{}, nil
}
func (stubAPI) SetInit(*SetInitRequest) (*SetInitResponse, error) { return &SetInitResponse{}, nil }
func (stubAPI) GetInit(*GetInitRequest) (*GetInitResponse, error) { return &GetInitResponse{}, nil }
func (stubAPI) GetStatus(*GetStatusRequest) (*GetStatusResponse, error) {
	return &GetStatusResponse{Mode: "Idle"}, nil
}
func (stubAPI) AddJob(*AddJobRequest) (*AddJobResponse, error) { return &AddJobResponse{OK: true}, nil }
func (stubAPI) ListJobs(*ListJobsRequest) (*ListJobsResponse, error) {
	return &ListJobsResponse{}, nil
}
func (stubAPI) CancelJob(*CancelJobRequest) (*CancelJobResponse, error) {
	return &CancelJobResponse{}, nil
}
func (stubAPI) QueryTS(*QueryTSRequest) (*QueryTSResponse, error) { return &QueryTSResponse{}, nil }
func (stubAPI) RequestSettings(*RequestSettingsRequest) (*RequestSettingsResponse, error) {
	return &RequestSettingsResponse{}, nil
}
func (stubAPI) RequestHashState(*RequestHashStateRequest) (*RequestHashStateResponse, error) {
	return &RequestHashStateResponse{}, nil
}
func (stubAPI) RequestParserState(*RequestParserStateRequest) (*RequestParserStateResponse, error) {
	return &RequestParserStateResponse{}, nil
}

func TestWriteLineValidation(t *testing.T) {
	r := NewRouter(stubAPI{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	body, err := json.Marshal(WriteLineRequest{Line: ""})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/write-line", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWriteLineSuccess(t *testing.T) {
	r := NewRouter(stubAPI{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	body, err := json.Marshal(WriteLineRequest{Line: "G0 X1"})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/write-line", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out WriteLineResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.OK)
}

func TestQueryTSValidation(t *testing.T) {
	require.Error(t, validateQueryTS(&QueryTSRequest{Query: nil}))
	require.Error(t, validateQueryTS(&QueryTSRequest{Query: []string{"a"}, Start: 5, End: 1, Step: 1}))
	require.NoError(t, validateQueryTS(&QueryTSRequest{Query: []string{"a"}, Start: 0, End: 1, Step: 1}))
}

func TestGetStatusSuccess(t *testing.T) {
	r := NewRouter(stubAPI{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/status", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out GetStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "Idle", out.Mode)
}
