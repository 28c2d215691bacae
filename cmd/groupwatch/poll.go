package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
)

// nodeStatus is one row of the dashboard.
type nodeStatus struct {
	URL  string
	Info cluster.QueryInfo
	Err  error
	RTT  time.Duration
}

func fetchStatus(ctx context.Context, client *http.Client, base string) nodeStatus {
	st := nodeStatus{URL: base}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(base, "/")+"/status", nil)
	if err != nil {
		st.Err = err
		return st
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		st.Err = err
		return st
	}
	defer resp.Body.Close()
	st.RTT = time.Since(start)

	if resp.StatusCode != http.StatusOK {
		st.Err = fmt.Errorf("status %d", resp.StatusCode)
		return st
	}
	if err := json.NewDecoder(resp.Body).Decode(&st.Info); err != nil {
		st.Err = fmt.Errorf("decode: %w", err)
	}
	return st
}

// pollAll queries every node concurrently and returns rows in URL order.
func pollAll(ctx context.Context, client *http.Client, urls []string) []nodeStatus {
	out := make([]nodeStatus, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			out[i] = fetchStatus(ctx, client, u)
		}(i, u)
	}
	wg.Wait()
	return out
}

// summary describes the cluster as a whole.
type summary struct {
	Reachable    int
	Groups       int
	Coordinators []int // nodes that coordinate a group of their own in normal state
	Stable       bool  // one group, everyone normal, one coordinator
}

func summarize(rows []nodeStatus) summary {
	var s summary
	groups := map[string]struct{}{}
	allNormal := true
	for _, r := range rows {
		if r.Err != nil {
			continue
		}
		s.Reachable++
		groups[r.Info.Group] = struct{}{}
		if r.Info.State != cluster.StateNormal {
			allNormal = false
		}
		if r.Info.Coordinator == r.Info.ID && r.Info.State == cluster.StateNormal {
			s.Coordinators = append(s.Coordinators, r.Info.ID)
		}
	}
	sort.Ints(s.Coordinators)
	s.Groups = len(groups)
	s.Stable = s.Reachable > 0 && s.Groups == 1 && allNormal && len(s.Coordinators) == 1
	return s
}
