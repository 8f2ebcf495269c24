// Package gitserver is a minimal client for the repository host, used to
// discover commit parentage and default branch tips.
package gitserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// CommitsNearLimit bounds the number of commits fetched around an uploaded
// commit. This keeps the lsif_commits table sparse while giving the closest
// dump query enough lineage to work with.
const CommitsNearLimit = 150

// Client resolves commit graph questions for a repository.
type Client interface {
	// Head returns the commit at the tip of the repository's default branch.
	Head(ctx context.Context, repository string) (string, error)

	// CommitsNear returns a map from commit to parent commits for the
	// commits reachable from the given commit, bounded to CommitsNearLimit.
	CommitsNear(ctx context.Context, repository, commit string) (map[string][]string, error)
}

type client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a client against a gitserver exec endpoint.
func NewClient(url string) Client {
	return &client{
		url:        strings.TrimSuffix(url, "/"),
		httpClient: http.DefaultClient,
	}
}

func (c *client) Head(ctx context.Context, repository string) (string, error) {
	out, err := c.execGitCommand(ctx, repository, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

func (c *client) CommitsNear(ctx context.Context, repository, commit string) (map[string][]string, error) {
	out, err := c.execGitCommand(ctx, repository, "log", "--pretty=%H %P", commit, fmt.Sprintf("-%d", CommitsNearLimit))
	if err != nil {
		return nil, err
	}

	commits := map[string][]string{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Split(line, " ")
		commits[parts[0]] = parts[1:]
	}

	return commits, nil
}

func (c *client) execGitCommand(ctx context.Context, repository string, args ...string) (string, error) {
	payload, err := json.Marshal(struct {
		Repo string   `json:"repo"`
		Args []string `json:"args"`
	}{
		Repo: repository,
		Args: args,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest("POST", c.url+"/exec", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req = req.WithContext(ctx)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "requesting gitserver")
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("unexpected status %d from gitserver: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	return string(body), nil
}
