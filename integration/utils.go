package integration

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
)

// GetLatestRun returns the most recently created run, or nil for an empty list.
func (c *Client) GetLatestRun(testRuns []TestRun) *TestRun {
	if len(testRuns) == 0 {
		return nil
	}
	sorted := make([]TestRun, len(testRuns))
	copy(sorted, testRuns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	c.l.Debugf("latest run: %s", sorted[0].ID)
	return &sorted[0]
}

func (c *Client) FilterByName(name string, testRuns []TestRun) []TestRun {
	filtered := []TestRun{}
	for _, v := range testRuns {
		if v.Name == name {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// DeleteLatestTestRun removes the newest run named exactly name and returns its
// id, or "" when the project has no such run.
func (c *Client) DeleteLatestTestRun(ctx context.Context, name string) (string, error) {
	runs, err := c.SearchTestRuns(ctx, name)
	if err != nil {
		return "", err
	}
	latest := c.GetLatestRun(c.FilterByName(name, runs))
	if latest == nil {
		return "", nil
	}
	if err := c.DeleteTestRun(ctx, latest.ID); err != nil {
		return "", err
	}
	return latest.ID, nil
}

func (c *Client) authorization() string {
	if c.APIKey != "" {
		return "Bearer " + c.APIKey
	}
	if c.User != "" || c.Passwd != "" {
		return c.BasicAuth()
	}
	return ""
}

func (c *Client) BasicAuth() string {
	b64 := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", c.User, c.Passwd)))
	return fmt.Sprintf("Basic %s", b64)
}
