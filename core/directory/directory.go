// Package directory talks to the temperature-taking website: it resolves
// group links into rosters and submits readings on behalf of members.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ltzehan/thermobot/core/logger"
)

// DefaultBaseURL is the public temperature-taking site.
const DefaultBaseURL = "https://temptaking.ado.sg"

const maxPageBytes = 4 << 20

var (
	// ErrInvalidGroup is returned when the site does not know the group code.
	ErrInvalidGroup = errors.New("directory: invalid group code")
	// ErrUnreachable wraps transport failures and unexpected responses.
	ErrUnreachable = errors.New("directory: site unreachable")
	// ErrMalformedPage is returned when the group data cannot be scraped.
	ErrMalformedPage = errors.New("directory: malformed group page")
)

var groupRefPattern = regexp.MustCompile(`temptaking\.ado\.sg/group/\S+`)

// Member is one roster entry as published by the site.
type Member struct {
	ID     string `json:"id"`
	Name   string `json:"identifier"`
	HasPin bool   `json:"hasPin"`
}

// Group is a resolved roster.
type Group struct {
	ID      string   `json:"groupCode"`
	Name    string   `json:"groupName"`
	Members []Member `json:"members"`
}

// Find returns the member with the exact identifier name.
func (g *Group) Find(name string) (Member, bool) {
	for _, m := range g.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// FindID returns the member with id.
func (g *Group) FindID(id string) (Member, bool) {
	for _, m := range g.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

// SubmitResult classifies the site's answer to a submission.
type SubmitResult int

const (
	SubmitRejected SubmitResult = iota
	SubmitOK
	SubmitWrongPin
)

func (r SubmitResult) String() string {
	switch r {
	case SubmitOK:
		return "ok"
	case SubmitWrongPin:
		return "wrong_pin"
	}
	return "rejected"
}

// Submission is one reading for a member in a half-day window.
type Submission struct {
	GroupID  string
	MemberID string
	Pin      string
	// Date is formatted dd/mm/yyyy.
	Date     string
	Meridiem string
	Value    string
}

// Client is safe for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string
}

// New builds a client. A nil httpClient uses a client with a 15s timeout.
func New(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: httpClient, baseURL: baseURL}
}

// Validate extracts a group link from free text and normalizes it to https.
func Validate(ref string) (string, bool) {
	match := groupRefPattern.FindString(ref)
	if match == "" {
		return "", false
	}
	return "https://" + match, true
}

// Validate is the method form of Validate for callers holding a Client.
func (c *Client) Validate(ref string) (string, bool) {
	return Validate(ref)
}

// GroupRef returns the canonical group link for a stored group code.
func (c *Client) GroupRef(groupID string) string {
	return DefaultBaseURL + "/group/" + url.PathEscape(groupID)
}

// Fetch downloads and scrapes a group page. ref must be a validated link.
func (c *Client) Fetch(ctx context.Context, ref string) (*Group, error) {
	target, err := c.resolve(ref)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn(ctx, logger.CompDirectory, "directory.fetch",
			slog.String("outcome", "failed"),
			logger.Err(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn(ctx, logger.CompDirectory, "directory.fetch",
			slog.String("outcome", "failed"),
			slog.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	group, err := parseGroupPage(string(body))
	if err != nil {
		logger.Warn(ctx, logger.CompDirectory, "directory.fetch",
			slog.String("outcome", "failed"),
			logger.Err(err),
		)
		return nil, err
	}
	logger.Debug(ctx, logger.CompDirectory, "directory.fetch",
		slog.String("outcome", "ok"),
		slog.String("group_id", group.ID),
		slog.Int("total", len(group.Members)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return group, nil
}

// Submit posts a reading. Transport failures are returned as ErrUnreachable.
func (c *Client) Submit(ctx context.Context, sub Submission) (SubmitResult, error) {
	form := url.Values{
		"groupCode":   {sub.GroupID},
		"date":        {sub.Date},
		"meridies":    {sub.Meridiem},
		"memberId":    {sub.MemberID},
		"temperature": {sub.Value},
		"pin":         {sub.Pin},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/group/MemberSubmitTemperature", strings.NewReader(form.Encode()))
	if err != nil {
		return SubmitRejected, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return SubmitRejected, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return SubmitRejected, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}
	result := classifySubmit(string(body))
	logger.Info(ctx, logger.CompDirectory, "directory.submit",
		slog.String("outcome", result.String()),
		slog.String("group_id", sub.GroupID),
		slog.String("member_id", sub.MemberID),
		slog.Int("status", resp.StatusCode),
	)
	return result, nil
}

func classifySubmit(body string) SubmitResult {
	switch strings.TrimSpace(body) {
	case "OK":
		return SubmitOK
	case "Wrong pin":
		return SubmitWrongPin
	}
	return SubmitRejected
}

// resolve rewrites a public group link onto baseURL so tests and mirrors
// can stand in for the public site.
func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil || !strings.HasPrefix(u.Path, "/group/") {
		return "", fmt.Errorf("%w: bad reference %q", ErrInvalidGroup, ref)
	}
	return c.baseURL + u.EscapedPath(), nil
}

func parseGroupPage(html string) (*Group, error) {
	if strings.Contains(html, "Invalid code") {
		return nil, ErrInvalidGroup
	}
	marker := strings.Index(html, "loadContents")
	if marker < 0 {
		return nil, fmt.Errorf("%w: loadContents not found", ErrMalformedPage)
	}
	open := strings.Index(html[marker:], "{")
	if open < 0 {
		return nil, fmt.Errorf("%w: group object not found", ErrMalformedPage)
	}

	// Decode only the first object; the script continues after it.
	var g Group
	dec := json.NewDecoder(strings.NewReader(html[marker+open:]))
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPage, err)
	}
	if g.ID == "" {
		return nil, fmt.Errorf("%w: missing group code", ErrMalformedPage)
	}
	sort.SliceStable(g.Members, func(i, j int) bool { return g.Members[i].Name < g.Members[j].Name })
	return &g, nil
}
