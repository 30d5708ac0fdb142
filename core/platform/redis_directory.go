package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/guardplane/guardplane/core/infra/redisutil"
)

const defaultPageSize = 100

// RedisDirectory is a Redis-backed Directory used by the daemons. Records are
// JSON values; namespace membership is kept in sorted sets keyed by project id
// so EachProject can page with a cursor instead of loading whole groups.
type RedisDirectory struct {
	client *redis.Client
}

// NewRedisDirectory connects to Redis and verifies the connection.
func NewRedisDirectory(url string) (*RedisDirectory, error) {
	client, err := redisutil.NewClient(url)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisDirectory{client: client}, nil
}

// NewRedisDirectoryWithClient wraps an existing client (used by tests).
func NewRedisDirectoryWithClient(client *redis.Client) *RedisDirectory {
	return &RedisDirectory{client: client}
}

// Close shuts down the Redis client.
func (d *RedisDirectory) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func projectKey(id int64) string           { return "dir:project:" + strconv.FormatInt(id, 10) }
func namespaceKey(id int64) string         { return "dir:namespace:" + strconv.FormatInt(id, 10) }
func namespaceProjectsKey(id int64) string { return "dir:namespace_projects:" + strconv.FormatInt(id, 10) }
func openMRsKey(projectID int64) string    { return "dir:open_mrs:" + strconv.FormatInt(projectID, 10) }
func branchesKey(projectID int64) string   { return "dir:branches:" + strconv.FormatInt(projectID, 10) }
func protectedKey(projectID int64) string  { return "dir:protected:" + strconv.FormatInt(projectID, 10) }
func configKey(id int64) string            { return "dir:config:" + strconv.FormatInt(id, 10) }
func projectConfigKey(id int64) string     { return "dir:config_project:" + strconv.FormatInt(id, 10) }
func namespaceConfigKey(id int64) string   { return "dir:config_namespace:" + strconv.FormatInt(id, 10) }
func ruleLinkKey(mrID int64) string        { return "dir:approval_rule_link:" + strconv.FormatInt(mrID, 10) }

const dirtyConfigsKey = "dir:dirty_configs"

func (d *RedisDirectory) getJSON(ctx context.Context, key string, into any) error {
	data, err := d.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, into)
}

func (d *RedisDirectory) putJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return d.client.Set(ctx, key, data, 0).Err()
}

// Project looks up a project record.
func (d *RedisDirectory) Project(ctx context.Context, id int64) (Project, error) {
	var p Project
	err := d.getJSON(ctx, projectKey(id), &p)
	return p, err
}

// Namespace looks up a namespace record.
func (d *RedisDirectory) Namespace(ctx context.Context, id int64) (Namespace, error) {
	var n Namespace
	err := d.getJSON(ctx, namespaceKey(id), &n)
	return n, err
}

// RootAncestor walks parent links to the top-level namespace.
func (d *RedisDirectory) RootAncestor(ctx context.Context, namespaceID int64) (Namespace, error) {
	ns, err := d.Namespace(ctx, namespaceID)
	if err != nil {
		return Namespace{}, err
	}
	for ns.ParentID != 0 {
		parent, err := d.Namespace(ctx, ns.ParentID)
		if err != nil {
			return Namespace{}, err
		}
		ns = parent
	}
	return ns, nil
}

// EachProject iterates every project under a namespace in id order, fetching
// one cursor page at a time. fn returning an error stops the iteration.
func (d *RedisDirectory) EachProject(ctx context.Context, namespaceID int64, batchSize int, fn func(Project) error) error {
	if batchSize <= 0 {
		batchSize = defaultPageSize
	}
	cursor := "-inf"
	for {
		ids, err := d.client.ZRangeByScore(ctx, namespaceProjectsKey(namespaceID), &redis.ZRangeBy{
			Min:   cursor,
			Max:   "+inf",
			Count: int64(batchSize),
		}).Result()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		var last int64
		for _, raw := range ids {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt project id %q under namespace %d", raw, namespaceID)
			}
			project, err := d.Project(ctx, id)
			if err != nil {
				return err
			}
			if err := fn(project); err != nil {
				return err
			}
			last = id
		}
		if len(ids) < batchSize {
			return nil
		}
		cursor = "(" + strconv.FormatInt(last, 10)
	}
}

// OpenMergeRequests lists the open merge requests of a project.
func (d *RedisDirectory) OpenMergeRequests(ctx context.Context, projectID int64) ([]MergeRequest, error) {
	var out []MergeRequest
	err := d.getJSON(ctx, openMRsKey(projectID), &out)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return out, err
}

// RepositoryBranches lists the branch names of a project's repository.
func (d *RedisDirectory) RepositoryBranches(ctx context.Context, projectID int64) ([]string, error) {
	var out []string
	err := d.getJSON(ctx, branchesKey(projectID), &out)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return out, err
}

// ProtectedBranches lists the protected-branch records of a project.
func (d *RedisDirectory) ProtectedBranches(ctx context.Context, projectID int64) ([]ProtectedBranch, error) {
	var out []ProtectedBranch
	err := d.getJSON(ctx, protectedKey(projectID), &out)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return out, err
}

// Configuration looks up a policy configuration by id.
func (d *RedisDirectory) Configuration(ctx context.Context, id int64) (Configuration, error) {
	var cfg Configuration
	err := d.getJSON(ctx, configKey(id), &cfg)
	return cfg, err
}

// ConfigurationsForProject returns the project's own configuration followed
// by namespace-scoped configurations inherited from its ancestor chain.
func (d *RedisDirectory) ConfigurationsForProject(ctx context.Context, projectID int64) ([]Configuration, error) {
	var out []Configuration
	if id, err := d.client.Get(ctx, projectConfigKey(projectID)).Int64(); err == nil {
		cfg, err := d.Configuration(ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if err == nil {
			out = append(out, cfg)
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	project, err := d.Project(ctx, projectID)
	if errors.Is(err, ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	nsID := project.NamespaceID
	for nsID != 0 {
		if id, err := d.client.Get(ctx, namespaceConfigKey(nsID)).Int64(); err == nil {
			cfg, err := d.Configuration(ctx, id)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			if err == nil {
				out = append(out, cfg)
			}
		} else if !errors.Is(err, redis.Nil) {
			return nil, err
		}
		ns, err := d.Namespace(ctx, nsID)
		if err != nil {
			break
		}
		nsID = ns.ParentID
	}
	return out, nil
}

// SaveConfiguration persists a configuration, indexes it by its owner, and
// marks it dirty for the reconciler sweep. All writes land in one MULTI/EXEC.
func (d *RedisDirectory) SaveConfiguration(ctx context.Context, cfg Configuration) error {
	if cfg.ID == 0 {
		return fmt.Errorf("configuration id required")
	}
	if (cfg.ProjectID == 0) == (cfg.NamespaceID == 0) {
		return fmt.Errorf("configuration must belong to exactly one project or namespace")
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	pipe := d.client.TxPipeline()
	pipe.Set(ctx, configKey(cfg.ID), data, 0)
	if cfg.ProjectID != 0 {
		pipe.Set(ctx, projectConfigKey(cfg.ProjectID), cfg.ID, 0)
	} else {
		pipe.Set(ctx, namespaceConfigKey(cfg.NamespaceID), cfg.ID, 0)
	}
	pipe.SAdd(ctx, dirtyConfigsKey, cfg.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// DirtyConfigurations returns up to limit configurations awaiting re-sync.
func (d *RedisDirectory) DirtyConfigurations(ctx context.Context, limit int) ([]Configuration, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	ids, err := d.client.SRandMemberN(ctx, dirtyConfigsKey, int64(limit)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]Configuration, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		cfg, err := d.Configuration(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Configuration vanished; drop the marker.
			_ = d.client.SRem(ctx, dirtyConfigsKey, raw).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// ClearDirty removes the dirty marker after a successful sync.
func (d *RedisDirectory) ClearDirty(ctx context.Context, configurationID int64) error {
	return d.client.SRem(ctx, dirtyConfigsKey, configurationID).Err()
}

// LinkApprovalRules points a merge request's approval rules at the
// configuration version that produced them. Re-linking the same pair is a
// no-op, which keeps the sync fan-out idempotent.
func (d *RedisDirectory) LinkApprovalRules(ctx context.Context, mergeRequestID, configurationID int64) error {
	return d.client.Set(ctx, ruleLinkKey(mergeRequestID), configurationID, 0).Err()
}

// ApprovalRuleLink reads back the configuration a merge request is linked to.
func (d *RedisDirectory) ApprovalRuleLink(ctx context.Context, mergeRequestID int64) (int64, error) {
	id, err := d.client.Get(ctx, ruleLinkKey(mergeRequestID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	return id, err
}

// Seed helpers used by tests and bootstrap tooling.

// PutProject stores a project and registers it under its namespace and every
// ancestor namespace, so group-scoped enumeration reaches sub-group projects.
// Namespaces must be registered before their projects for the ancestor walk
// to see the parent links.
func (d *RedisDirectory) PutProject(ctx context.Context, p Project) error {
	if err := d.putJSON(ctx, projectKey(p.ID), p); err != nil {
		return err
	}
	member := redis.Z{
		Score:  float64(p.ID),
		Member: strconv.FormatInt(p.ID, 10),
	}
	nsID := p.NamespaceID
	for nsID != 0 {
		if err := d.client.ZAdd(ctx, namespaceProjectsKey(nsID), member).Err(); err != nil {
			return err
		}
		ns, err := d.Namespace(ctx, nsID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		nsID = ns.ParentID
	}
	return nil
}

// PutNamespace stores a namespace record.
func (d *RedisDirectory) PutNamespace(ctx context.Context, n Namespace) error {
	return d.putJSON(ctx, namespaceKey(n.ID), n)
}

// PutOpenMergeRequests replaces a project's open merge request list.
func (d *RedisDirectory) PutOpenMergeRequests(ctx context.Context, projectID int64, mrs []MergeRequest) error {
	return d.putJSON(ctx, openMRsKey(projectID), mrs)
}

// PutRepositoryBranches replaces a project's branch list.
func (d *RedisDirectory) PutRepositoryBranches(ctx context.Context, projectID int64, branches []string) error {
	return d.putJSON(ctx, branchesKey(projectID), branches)
}

// PutProtectedBranches replaces a project's protected-branch records.
func (d *RedisDirectory) PutProtectedBranches(ctx context.Context, projectID int64, branches []ProtectedBranch) error {
	return d.putJSON(ctx, protectedKey(projectID), branches)
}
