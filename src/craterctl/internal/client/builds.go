package client

import (
	"context"
	"fmt"
	"io"
	"time"
)

// SourceSpec points at the source a build consumes
type SourceSpec struct {
	URI string `json:"uri"`
	Ref string `json:"ref,omitempty"`
}

// SubmitBuildRequest is the build submission request body
type SubmitBuildRequest struct {
	Source    SourceSpec `json:"source"`
	Platforms []string   `json:"platforms"`
	Component string     `json:"component"`
	Version   string     `json:"version"`
	Release   string     `json:"release,omitempty"`
	Scratch   bool       `json:"scratch,omitempty"`
	Isolated  bool       `json:"isolated,omitempty"`
}

// Build matches the server's build job response
type Build struct {
	ID          string     `json:"id"`
	Owner       string     `json:"owner,omitempty"`
	Status      string     `json:"status"`
	Phase       string     `json:"phase,omitempty"`
	Component   string     `json:"component"`
	Version     string     `json:"version"`
	Release     string     `json:"release,omitempty"`
	Platforms   string     `json:"platforms"`
	Scratch     bool       `json:"scratch"`
	Isolated    bool       `json:"isolated"`
	DocumentKey string     `json:"document_key,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// BuildList matches the server's build list response
type BuildList struct {
	Builds []Build `json:"builds"`
	Count  int     `json:"count"`
}

// BuildLog is one log entry recorded during a build
type BuildLog struct {
	ID        int64     `json:"id"`
	BuildID   string    `json:"build_id"`
	Phase     string    `json:"phase,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// BuildLogList matches the server's build log response
type BuildLogList struct {
	BuildID string     `json:"build_id"`
	Logs    []BuildLog `json:"logs"`
}

// CancelResponse matches the server's cancellation response
type CancelResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SubmitBuild submits a new build
func (c *Client) SubmitBuild(ctx context.Context, req *SubmitBuildRequest) (*Build, error) {
	var resp Build
	if err := c.Post(ctx, "/v1/builds", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListBuilds returns recent builds, most recent first
func (c *Client) ListBuilds(ctx context.Context, limit int) (*BuildList, error) {
	path := "/v1/builds"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var resp BuildList
	if err := c.Get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetBuild returns one build job by ID
func (c *Client) GetBuild(ctx context.Context, id string) (*Build, error) {
	var resp Build
	if err := c.Get(ctx, "/v1/builds/"+id, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelBuild requests cancellation of a pending or running build
func (c *Client) CancelBuild(ctx context.Context, id string) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.Post(ctx, "/v1/builds/"+id+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetBuildLogs returns a build's log entries
func (c *Client) GetBuildLogs(ctx context.Context, id string, limit int) (*BuildLogList, error) {
	path := "/v1/builds/" + id + "/logs"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var resp BuildLogList
	if err := c.Get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadBuildDocument streams the archived workflow document into w. The
// document arrives xz-compressed, exactly as stored.
func (c *Client) DownloadBuildDocument(ctx context.Context, id string, w io.Writer) (int64, error) {
	resp, err := c.RawGet(ctx, "/v1/builds/"+id+"/document")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return io.Copy(w, resp.Body)
}
