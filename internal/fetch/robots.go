// Package fetch - robots.go provides minimal robots.txt handling: the
// User-agent: * group's Disallow prefixes, cached per host, fail-open.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// RobotsDeniedError reports a URL excluded by its host's robots.txt.
type RobotsDeniedError struct {
	URL  string
	Rule string
}

func (e *RobotsDeniedError) Error() string {
	return fmt.Sprintf("robots.txt disallows %s (rule: Disallow: %s)", e.URL, e.Rule)
}

// robotsRules caches per-host Disallow prefixes. A host whose robots.txt
// cannot be fetched or parsed gets an empty rule set (everything allowed).
type robotsRules struct {
	client    *http.Client
	userAgent string
	hosts     map[string][]string
}

func newRobotsRules(client *http.Client, userAgent string) *robotsRules {
	return &robotsRules{
		client:    client,
		userAgent: userAgent,
		hosts:     make(map[string][]string),
	}
}

// checkRobots returns a RobotsDeniedError when rawURL matches a Disallow
// prefix for its host. Robots checking only guards network fetches; cached
// content is served without consulting it.
func (f *Fetcher) checkRobots(ctx context.Context, rawURL string) error {
	if f.robots == nil {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &Error{URL: rawURL, Message: "invalid URL", Cause: err}
	}

	rules := f.robotsFor(ctx, parsed)
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	for _, prefix := range rules {
		if strings.HasPrefix(path, prefix) {
			f.stats.RobotsDenied++
			f.vlogf("[ROBOTS] %s disallowed by %s", rawURL, prefix)
			return &RobotsDeniedError{URL: rawURL, Rule: prefix}
		}
	}
	return nil
}

// robotsFor returns the cached rules for a host, fetching robots.txt once.
// Any failure to retrieve it is treated as "allowed" (fail-open): a site
// without a reachable robots.txt has not asked crawlers to stay away.
func (f *Fetcher) robotsFor(ctx context.Context, u *url.URL) []string {
	host := u.Host
	if rules, ok := f.robots.hosts[host]; ok {
		return rules
	}

	rules := f.fetchRobots(ctx, u.Scheme+"://"+host+"/robots.txt")
	f.robots.hosts[host] = rules
	return rules
}

func (f *Fetcher) fetchRobots(ctx context.Context, robotsURL string) []string {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", f.robots.userAgent)

	f.stats.Requests++
	resp, err := f.robots.client.Do(req)
	if err != nil {
		f.vlogf("[ROBOTS] fetch failed for %s: %v (allowing all)", robotsURL, err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		f.vlogf("[ROBOTS] %s returned %d (allowing all)", robotsURL, resp.StatusCode)
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil
	}

	rules := parseRobots(string(body))
	f.vlogf("[ROBOTS] %s: %d disallow rules", robotsURL, len(rules))
	return rules
}

// parseRobots extracts Disallow prefixes from the User-agent: * group. Only
// the wildcard group is honored; an empty Disallow value allows everything
// and is skipped.
func parseRobots(body string) []string {
	var disallow []string
	applies := false

	for _, line := range strings.Split(body, "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			applies = value == "*"
		case "disallow":
			if applies && value != "" {
				disallow = append(disallow, value)
			}
		}
	}

	return disallow
}
