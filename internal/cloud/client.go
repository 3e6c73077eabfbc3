// Package cloud implements the remote provider the reconciler talks to.
// The built-in provider is a sandbox that keeps its inventory in SQLite,
// exposing the same kind of resource-specific verbs a cloud API would.
package cloud

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Resource kinds as stored in the sandbox inventory.
const (
	KindBucket        = "bucket"
	KindSecurityGroup = "security-group"
	KindZone          = "dns-zone"
)

// Client is the sandbox provider client.
type Client struct {
	buckets *Table[Bucket]
	groups  *Table[SecurityGroup]
	zones   *Table[Zone]
	now     func() time.Time
}

// NewClient creates a client over an opened sandbox database.
func NewClient(db *sql.DB) *Client {
	store := NewStore(db)
	return &Client{
		buckets: NewTable[Bucket](store, KindBucket),
		groups:  NewTable[SecurityGroup](store, KindSecurityGroup),
		zones:   NewTable[Zone](store, KindZone),
		now:     time.Now,
	}
}

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:17]
}

// === Buckets ===

// ListBuckets returns every bucket keyed by name.
func (c *Client) ListBuckets(ctx context.Context) (map[string]Bucket, error) {
	return c.buckets.List(ctx)
}

// CreateBucket creates an empty, unversioned bucket.
func (c *Client) CreateBucket(ctx context.Context, name string) (Bucket, error) {
	if name == "" {
		return Bucket{}, fmt.Errorf("bucket name: %w", ErrInvalid)
	}
	b := Bucket{Name: name, CreatedAt: c.now().UTC()}
	if err := c.buckets.Create(ctx, name, b); err != nil {
		return Bucket{}, err
	}
	log.Debug().Str("bucket", name).Msg("Sandbox bucket created")
	return b, nil
}

// PutBucketVersioning enables or suspends versioning.
func (c *Client) PutBucketVersioning(ctx context.Context, name string, enabled bool) error {
	return c.buckets.Update(ctx, name, func(b *Bucket) error {
		b.Versioning = enabled
		return nil
	})
}

// PutBucketTags sets tags, overwriting values of existing keys.
func (c *Client) PutBucketTags(ctx context.Context, name string, tags map[string]string) error {
	return c.buckets.Update(ctx, name, func(b *Bucket) error {
		b.Tags = putTags(b.Tags, tags)
		return nil
	})
}

// DeleteBucketTags removes tags by key.
func (c *Client) DeleteBucketTags(ctx context.Context, name string, keys []string) error {
	return c.buckets.Update(ctx, name, func(b *Bucket) error {
		deleteTags(b.Tags, keys)
		return nil
	})
}

// PutLifecycleRule creates or replaces the lifecycle rule with rule.ID.
func (c *Client) PutLifecycleRule(ctx context.Context, name string, rule LifecycleRule) error {
	if rule.ID == "" || rule.ExpirationDays <= 0 {
		return fmt.Errorf("lifecycle rule %q: %w", rule.ID, ErrInvalid)
	}
	return c.buckets.Update(ctx, name, func(b *Bucket) error {
		if b.Lifecycle == nil {
			b.Lifecycle = make(map[string]LifecycleRule)
		}
		b.Lifecycle[rule.ID] = rule
		return nil
	})
}

// DeleteLifecycleRule removes a lifecycle rule.
func (c *Client) DeleteLifecycleRule(ctx context.Context, name, ruleID string) error {
	return c.buckets.Update(ctx, name, func(b *Bucket) error {
		if _, ok := b.Lifecycle[ruleID]; !ok {
			return fmt.Errorf("lifecycle rule %q: %w", ruleID, ErrRuleNotFound)
		}
		delete(b.Lifecycle, ruleID)
		return nil
	})
}

// === Security groups ===

// ListSecurityGroups returns every security group keyed by name.
func (c *Client) ListSecurityGroups(ctx context.Context) (map[string]SecurityGroup, error) {
	return c.groups.List(ctx)
}

// CreateSecurityGroup creates a group with no rules.
func (c *Client) CreateSecurityGroup(ctx context.Context, name, description string) (SecurityGroup, error) {
	if name == "" {
		return SecurityGroup{}, fmt.Errorf("security group name: %w", ErrInvalid)
	}
	sg := SecurityGroup{ID: newID("sg-"), Name: name, Description: description}
	if err := c.groups.Create(ctx, name, sg); err != nil {
		return SecurityGroup{}, err
	}
	log.Debug().Str("group", name).Str("id", sg.ID).Msg("Sandbox security group created")
	return sg, nil
}

// UpdateSecurityGroupDescription changes the description.
func (c *Client) UpdateSecurityGroupDescription(ctx context.Context, name, description string) error {
	return c.groups.Update(ctx, name, func(sg *SecurityGroup) error {
		sg.Description = description
		return nil
	})
}

// TagSecurityGroup sets tags.
func (c *Client) TagSecurityGroup(ctx context.Context, name string, tags map[string]string) error {
	return c.groups.Update(ctx, name, func(sg *SecurityGroup) error {
		sg.Tags = putTags(sg.Tags, tags)
		return nil
	})
}

// UntagSecurityGroup removes tags by key.
func (c *Client) UntagSecurityGroup(ctx context.Context, name string, keys []string) error {
	return c.groups.Update(ctx, name, func(sg *SecurityGroup) error {
		deleteTags(sg.Tags, keys)
		return nil
	})
}

// AuthorizeIngress adds ingress rules. Fails without changes if any rule exists.
func (c *Client) AuthorizeIngress(ctx context.Context, name string, rules []Rule) error {
	return c.groups.Update(ctx, name, func(sg *SecurityGroup) error {
		updated, err := authorize(sg.Ingress, rules)
		sg.Ingress = updated
		return err
	})
}

// RevokeIngress removes ingress rules. Fails without changes if any rule is missing.
func (c *Client) RevokeIngress(ctx context.Context, name string, rules []Rule) error {
	return c.groups.Update(ctx, name, func(sg *SecurityGroup) error {
		updated, err := revoke(sg.Ingress, rules)
		sg.Ingress = updated
		return err
	})
}

// AuthorizeEgress adds egress rules.
func (c *Client) AuthorizeEgress(ctx context.Context, name string, rules []Rule) error {
	return c.groups.Update(ctx, name, func(sg *SecurityGroup) error {
		updated, err := authorize(sg.Egress, rules)
		sg.Egress = updated
		return err
	})
}

// RevokeEgress removes egress rules.
func (c *Client) RevokeEgress(ctx context.Context, name string, rules []Rule) error {
	return c.groups.Update(ctx, name, func(sg *SecurityGroup) error {
		updated, err := revoke(sg.Egress, rules)
		sg.Egress = updated
		return err
	})
}

func authorize(existing, rules []Rule) ([]Rule, error) {
	out := slices.Clone(existing)
	for _, r := range rules {
		if slices.Contains(out, r) {
			return existing, fmt.Errorf("%s: %w", r.Key(), ErrDuplicateRule)
		}
		out = append(out, r)
	}
	return out, nil
}

func revoke(existing, rules []Rule) ([]Rule, error) {
	out := slices.Clone(existing)
	for _, r := range rules {
		i := slices.Index(out, r)
		if i < 0 {
			return existing, fmt.Errorf("%s: %w", r.Key(), ErrRuleNotFound)
		}
		out = slices.Delete(out, i, i+1)
	}
	return out, nil
}

// === DNS zones ===

// ListZones returns every hosted zone keyed by name.
func (c *Client) ListZones(ctx context.Context) (map[string]Zone, error) {
	return c.zones.List(ctx)
}

// CreateZone creates a hosted zone. Privacy is fixed at creation.
func (c *Client) CreateZone(ctx context.Context, name string, private bool) (Zone, error) {
	if name == "" {
		return Zone{}, fmt.Errorf("zone name: %w", ErrInvalid)
	}
	z := Zone{ID: newID("Z"), Name: name, Private: private}
	if err := c.zones.Create(ctx, name, z); err != nil {
		return Zone{}, err
	}
	log.Debug().Str("zone", name).Str("id", z.ID).Msg("Sandbox zone created")
	return z, nil
}

// UpdateZoneComment changes the zone comment.
func (c *Client) UpdateZoneComment(ctx context.Context, name, comment string) error {
	return c.zones.Update(ctx, name, func(z *Zone) error {
		z.Comment = comment
		return nil
	})
}

// TagZone sets tags.
func (c *Client) TagZone(ctx context.Context, name string, tags map[string]string) error {
	return c.zones.Update(ctx, name, func(z *Zone) error {
		z.Tags = putTags(z.Tags, tags)
		return nil
	})
}

// UntagZone removes tags by key.
func (c *Client) UntagZone(ctx context.Context, name string, keys []string) error {
	return c.zones.Update(ctx, name, func(z *Zone) error {
		deleteTags(z.Tags, keys)
		return nil
	})
}

// UpsertRecord creates or replaces a record set.
func (c *Client) UpsertRecord(ctx context.Context, zone string, rec Record) error {
	if rec.Name == "" || rec.Type == "" || len(rec.Values) == 0 {
		return fmt.Errorf("record %q: %w", rec.Key(), ErrInvalid)
	}
	return c.zones.Update(ctx, zone, func(z *Zone) error {
		if z.Records == nil {
			z.Records = make(map[string]Record)
		}
		z.Records[rec.Key()] = rec
		return nil
	})
}

// DeleteRecord removes a record set by key.
func (c *Client) DeleteRecord(ctx context.Context, zone, key string) error {
	return c.zones.Update(ctx, zone, func(z *Zone) error {
		if _, ok := z.Records[key]; !ok {
			return fmt.Errorf("record %q: %w", key, ErrNotFound)
		}
		delete(z.Records, key)
		return nil
	})
}

func putTags(current, tags map[string]string) map[string]string {
	if current == nil {
		current = make(map[string]string, len(tags))
	}
	maps.Copy(current, tags)
	return current
}

func deleteTags(current map[string]string, keys []string) {
	for _, k := range keys {
		delete(current, k)
	}
}
