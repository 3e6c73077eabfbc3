package resources

import (
	"context"
	"fmt"
	"strings"

	"github.com/dokzlo13/cloudsync/internal/cloud"
	"github.com/dokzlo13/cloudsync/internal/diff"
	"github.com/dokzlo13/cloudsync/internal/loader"
)

// Bucket is a declared object storage bucket.
type Bucket struct {
	Name       string            `yaml:"name"`
	Versioning bool              `yaml:"versioning"`
	Tags       map[string]string `yaml:"tags"`
	Lifecycle  []LifecycleRule   `yaml:"lifecycle"`
}

// LifecycleRule expires objects under a prefix after a number of days.
type LifecycleRule struct {
	ID             string `yaml:"id"`
	Prefix         string `yaml:"prefix"`
	ExpirationDays int    `yaml:"expiration_days"`
}

func (b *Bucket) ResourceName() string        { return b.Name }
func (b *Bucket) SetResourceName(name string) { b.Name = name }

func (r LifecycleRule) remote() cloud.LifecycleRule {
	return cloud.LifecycleRule{ID: r.ID, Prefix: r.Prefix, ExpirationDays: r.ExpirationDays}
}

var (
	bucketVocab      = diff.NewVocabulary(cloud.KindBucket, changeIDs)
	bucketVersioning = bucketVocab.Declare("versioning")
	bucketTags       = bucketVocab.Declare("tags")
	bucketLifecycle  = bucketVocab.Declare("lifecycle")

	ruleVocab      = diff.NewVocabulary("lifecycle-rule", changeIDs)
	rulePrefix     = ruleVocab.Declare("prefix")
	ruleExpiration = ruleVocab.Declare("expiration")
)

// BucketDiff is one change to a bucket.
type BucketDiff struct {
	diff.Change[*cloud.Bucket, *Bucket]
	Tags      diff.ListChange[string, string]
	Lifecycle diff.ListChange[cloud.LifecycleRule, LifecycleRule]
}

func (d BucketDiff) Render() string {
	switch d.Kind() {
	case bucketVocab.Unmanaged:
		return fmt.Sprintf("bucket %s is not managed", d.Remote.Name)
	case bucketVocab.Added:
		return fmt.Sprintf("bucket %s will be created", d.Local.Name)
	case bucketVersioning:
		return fmt.Sprintf("versioning: %t -> %t", d.Remote.Versioning, d.Local.Versioning)
	case bucketTags:
		return "tags:\n" + diff.Indent(renderTags(d.Tags), "\t")
	case bucketLifecycle:
		return "lifecycle:\n" + diff.Indent(renderRules(d.Lifecycle), "\t")
	default:
		panic(d.Unhandled())
	}
}

// RuleDiff is one change to a lifecycle rule.
type RuleDiff struct {
	diff.Change[cloud.LifecycleRule, LifecycleRule]
}

func (d RuleDiff) Render() string {
	switch d.Kind() {
	case ruleVocab.Unmanaged:
		return fmt.Sprintf("- %s", d.Remote.ID)
	case ruleVocab.Added:
		return fmt.Sprintf("+ %s (prefix %q, expire after %dd)", d.Local.ID, d.Local.Prefix, d.Local.ExpirationDays)
	case rulePrefix:
		return fmt.Sprintf("prefix: %q -> %q", d.Remote.Prefix, d.Local.Prefix)
	case ruleExpiration:
		return fmt.Sprintf("expiration: %dd -> %dd", d.Remote.ExpirationDays, d.Local.ExpirationDays)
	default:
		panic(d.Unhandled())
	}
}

func diffRule(remote cloud.LifecycleRule, local LifecycleRule) []diff.Diff {
	var out []diff.Diff
	if remote.Prefix != local.Prefix {
		out = append(out, RuleDiff{diff.NewChange(ruleVocab, rulePrefix, remote, local)})
	}
	if remote.ExpirationDays != local.ExpirationDays {
		out = append(out, RuleDiff{diff.NewChange(ruleVocab, ruleExpiration, remote, local)})
	}
	return out
}

func renderRules(lc diff.ListChange[cloud.LifecycleRule, LifecycleRule]) string {
	var lines []string
	for _, id := range lc.AddedNames() {
		lines = append(lines, RuleDiff{diff.NewChange(ruleVocab, ruleVocab.Added, cloud.LifecycleRule{}, lc.Added[id])}.Render())
	}
	for _, id := range lc.RemovedNames() {
		lines = append(lines, RuleDiff{diff.NewChange(ruleVocab, ruleVocab.Unmanaged, lc.Removed[id], LifecycleRule{})}.Render())
	}
	for _, id := range lc.ModifiedNames() {
		lines = append(lines, "~ "+id+":")
		for _, d := range lc.Modified[id] {
			lines = append(lines, "\t"+d.Render())
		}
	}
	return strings.Join(lines, "\n")
}

// BucketAPI is the part of the provider the bucket adapter uses.
type BucketAPI interface {
	ListBuckets(ctx context.Context) (map[string]cloud.Bucket, error)
	CreateBucket(ctx context.Context, name string) (cloud.Bucket, error)
	PutBucketVersioning(ctx context.Context, name string, enabled bool) error
	PutBucketTags(ctx context.Context, name string, tags map[string]string) error
	DeleteBucketTags(ctx context.Context, name string, keys []string) error
	PutLifecycleRule(ctx context.Context, name string, rule cloud.LifecycleRule) error
	DeleteLifecycleRule(ctx context.Context, name, ruleID string) error
}

// BucketAdapter reconciles buckets.
type BucketAdapter struct {
	api   BucketAPI
	files *loader.Loader
}

func NewBucketAdapter(api BucketAPI, files *loader.Loader) *BucketAdapter {
	return &BucketAdapter{api: api, files: files}
}

func (a *BucketAdapter) Kind() string { return cloud.KindBucket }

func (a *BucketAdapter) LocalResources(ctx context.Context) (map[string]*Bucket, error) {
	return loader.Load[Bucket](a.files, cloud.KindBucket)
}

func (a *BucketAdapter) RemoteResources(ctx context.Context) (map[string]*cloud.Bucket, error) {
	buckets, err := a.api.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	return pointers(buckets), nil
}

func (a *BucketAdapter) DiffResource(local *Bucket, remote *cloud.Bucket) []diff.Diff {
	var out []diff.Diff
	change := func(k diff.ChangeKind) diff.Change[*cloud.Bucket, *Bucket] {
		return diff.NewChange(bucketVocab, k, remote, local)
	}

	if remote.Versioning != local.Versioning {
		out = append(out, BucketDiff{Change: change(bucketVersioning)})
	}
	if tags := compareTags(remote.Tags, local.Tags); !tags.Empty() {
		out = append(out, BucketDiff{Change: change(bucketTags), Tags: tags})
	}
	rules := diff.Compare(remote.Lifecycle, diff.Keyed(local.Lifecycle, func(r LifecycleRule) string { return r.ID }), diffRule)
	if !rules.Empty() {
		out = append(out, BucketDiff{Change: change(bucketLifecycle), Lifecycle: rules})
	}
	return out
}

func (a *BucketAdapter) UnmanagedDiff(remote *cloud.Bucket) diff.Diff {
	return BucketDiff{Change: diff.NewChange[*cloud.Bucket, *Bucket](bucketVocab, bucketVocab.Unmanaged, remote, nil)}
}

func (a *BucketAdapter) AddedDiff(local *Bucket) diff.Diff {
	return BucketDiff{Change: diff.NewChange[*cloud.Bucket, *Bucket](bucketVocab, bucketVocab.Added, nil, local)}
}

func (a *BucketAdapter) Create(ctx context.Context, local *Bucket) (*cloud.Bucket, error) {
	b, err := a.api.CreateBucket(ctx, local.Name)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (a *BucketAdapter) Update(ctx context.Context, local *Bucket, diffs []diff.Diff) error {
	for _, d := range diffs {
		if err := a.apply(ctx, local, d.(BucketDiff)); err != nil {
			return err
		}
	}
	return nil
}

func (a *BucketAdapter) apply(ctx context.Context, local *Bucket, d BucketDiff) error {
	switch d.Kind() {
	case bucketVocab.Added:
		// CreateBucket leaves everything but the name at its default
		return a.Update(ctx, local, a.DiffResource(local, &cloud.Bucket{Name: local.Name}))
	case bucketVocab.Unmanaged:
		return nil
	case bucketVersioning:
		return a.api.PutBucketVersioning(ctx, local.Name, local.Versioning)
	case bucketTags:
		return tagging{put: a.api.PutBucketTags, delete: a.api.DeleteBucketTags}.apply(ctx, local.Name, d.Tags)
	case bucketLifecycle:
		for _, id := range d.Lifecycle.AddedNames() {
			if err := a.api.PutLifecycleRule(ctx, local.Name, d.Lifecycle.Added[id].remote()); err != nil {
				return err
			}
		}
		for _, id := range d.Lifecycle.ModifiedNames() {
			rule := d.Lifecycle.Modified[id][0].(RuleDiff).Local
			if err := a.api.PutLifecycleRule(ctx, local.Name, rule.remote()); err != nil {
				return err
			}
		}
		for _, id := range d.Lifecycle.RemovedNames() {
			if err := a.api.DeleteLifecycleRule(ctx, local.Name, id); err != nil {
				return err
			}
		}
		return nil
	default:
		panic(d.Unhandled())
	}
}
