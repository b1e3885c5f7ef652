package robots

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Gate answers "may the pipeline fetch this URL" from the host's
// robots.txt. Rules are cached per scheme://host for a fixed TTL. Every
// infrastructure failure (fetch, status, parse) fails open: a host with a
// broken robots.txt must not silently stall ingestion forever.
type Gate struct {
	client       *http.Client
	userAgent    string
	fetchTimeout time.Duration
	cacheTTL     time.Duration
	logger       *log.Logger
	now          func() time.Time

	mu    sync.Mutex
	cache map[string]cachedRules
}

type cachedRules struct {
	rules     ruleSet
	fetchedAt time.Time
}

type ruleSet struct {
	// openAll marks fetch/parse failure: everything allowed.
	openAll  bool
	allow    []string
	disallow []string
}

func NewGate(userAgent string, fetchTimeout, cacheTTL time.Duration, logger *log.Logger) *Gate {
	if fetchTimeout <= 0 {
		fetchTimeout = 5 * time.Second
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Gate{
		client:       &http.Client{Timeout: fetchTimeout},
		userAgent:    strings.TrimSpace(userAgent),
		fetchTimeout: fetchTimeout,
		cacheTTL:     cacheTTL,
		logger:       logger,
		now:          time.Now,
		cache:        map[string]cachedRules{},
	}
}

// IsAllowed reports whether rawURL may be fetched. Unparseable URLs are
// allowed; path decisions follow literal prefix matching with explicit
// Allow winning over Disallow.
func (g *Gate) IsAllowed(ctx context.Context, rawURL string) bool {
	if g == nil {
		return true
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return true
	}

	rules := g.rulesForHost(ctx, u.Scheme+"://"+u.Host)
	return rules.isAllowed(u.Path)
}

func (g *Gate) rulesForHost(ctx context.Context, hostKey string) ruleSet {
	now := g.now()

	g.mu.Lock()
	if c, ok := g.cache[hostKey]; ok && now.Sub(c.fetchedAt) < g.cacheTTL {
		g.mu.Unlock()
		return c.rules
	}
	g.mu.Unlock()

	rules := g.fetchRules(ctx, hostKey)

	g.mu.Lock()
	g.cache[hostKey] = cachedRules{rules: rules, fetchedAt: now}
	g.mu.Unlock()

	return rules
}

func (g *Gate) fetchRules(ctx context.Context, hostKey string) ruleSet {
	reqCtx, cancel := context.WithTimeout(ctx, g.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, hostKey+"/robots.txt", nil)
	if err != nil {
		return ruleSet{openAll: true}
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if g.logger != nil {
			g.logger.Printf("[Robots] fetch failed host=%s, failing open: %v", hostKey, err)
		}
		return ruleSet{openAll: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if g.logger != nil {
			g.logger.Printf("[Robots] fetch status=%d host=%s, failing open", resp.StatusCode, hostKey)
		}
		return ruleSet{openAll: true}
	}

	rules, err := parseRules(resp.Body, g.userAgent)
	if err != nil {
		if g.logger != nil {
			g.logger.Printf("[Robots] parse failed host=%s, failing open: %v", hostKey, err)
		}
		return ruleSet{openAll: true}
	}
	return rules
}

// parseRules collects Allow/Disallow prefixes from groups addressed to
// "*" or to agentToken. Prefixes are literal, no wildcard expansion.
func parseRules(r io.Reader, agentToken string) (ruleSet, error) {
	const maxRobots = 1 << 20

	var rules ruleSet
	applies := false
	token := strings.ToLower(strings.TrimSpace(agentToken))

	sc := bufio.NewScanner(&io.LimitedReader{R: r, N: maxRobots})
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
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
			agent := strings.ToLower(value)
			applies = agent == "*" || (token != "" && strings.Contains(agent, token))
		case "allow":
			if applies && value != "" {
				rules.allow = append(rules.allow, value)
			}
		case "disallow":
			if applies && value != "" {
				rules.disallow = append(rules.disallow, value)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return ruleSet{}, fmt.Errorf("read robots.txt: %w", err)
	}
	return rules, nil
}

func (rs ruleSet) isAllowed(path string) bool {
	if rs.openAll {
		return true
	}
	if path == "" {
		path = "/"
	}

	for _, p := range rs.allow {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	for _, p := range rs.disallow {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	return true
}
