// Package violations keeps the per-merge-request violation ledger. Rules
// accumulate in memory during evaluation and are committed in one atomic
// replace, so readers never observe a half-written rule set.
package violations

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/guardplane/guardplane/core/platform"
	"github.com/guardplane/guardplane/core/policy"
)

// Store commits the full violation set for one merge request.
type Store interface {
	Replace(ctx context.Context, mr platform.MergeRequest, rules []policy.ViolatedRule) error
}

func mrViolationsKey(mrID int64) string { return "violations:mr:" + strconv.FormatInt(mrID, 10) }
func projectIndexKey(pID int64) string  { return "violations:project:" + strconv.FormatInt(pID, 10) }

// RedisStore holds violations in a hash per merge request, keyed by policy
// id, plus a per-project index of merge requests that currently violate.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Replace swaps the merge request's violation rows for rules inside a single
// transaction. The delete and the insert land together or not at all.
func (s *RedisStore) Replace(ctx context.Context, mr platform.MergeRequest, rules []policy.ViolatedRule) error {
	key := mrViolationsKey(mr.ID)
	index := projectIndexKey(mr.ProjectID)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(rules) > 0 {
		fields := make(map[string]any, len(rules))
		for _, rule := range rules {
			raw, err := json.Marshal(rule)
			if err != nil {
				return fmt.Errorf("marshal violation for policy %d: %w", rule.ScanResultPolicyID, err)
			}
			fields[strconv.FormatInt(rule.ScanResultPolicyID, 10)] = raw
		}
		pipe.HSet(ctx, key, fields)
		pipe.SAdd(ctx, index, mr.ID)
	} else {
		pipe.SRem(ctx, index, mr.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace violations for mr %d: %w", mr.ID, err)
	}
	return nil
}

// List returns the merge request's violations ordered by policy id.
func (s *RedisStore) List(ctx context.Context, mrID int64) ([]policy.ViolatedRule, error) {
	fields, err := s.client.HGetAll(ctx, mrViolationsKey(mrID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]policy.ViolatedRule, 0, len(fields))
	for _, raw := range fields {
		var rule policy.ViolatedRule
		if err := json.Unmarshal([]byte(raw), &rule); err != nil {
			return nil, fmt.Errorf("decode violation row: %w", err)
		}
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScanResultPolicyID < out[j].ScanResultPolicyID })
	return out, nil
}

// ViolatingMergeRequests returns the ids of merge requests in a project that
// currently carry violations.
func (s *RedisStore) ViolatingMergeRequests(ctx context.Context, projectID int64) ([]int64, error) {
	members, err := s.client.SMembers(ctx, projectIndexKey(projectID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
