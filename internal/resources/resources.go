// Package resources holds the resource kinds cloudsync can reconcile:
// buckets, security groups and DNS zones, each as a reconcile.Adapter over
// the provider client.
package resources

import (
	"github.com/dokzlo13/cloudsync/internal/cloud"
	"github.com/dokzlo13/cloudsync/internal/diff"
	"github.com/dokzlo13/cloudsync/internal/loader"
	"github.com/dokzlo13/cloudsync/internal/reconcile"
	"github.com/dokzlo13/cloudsync/internal/status"
)

// changeIDs is shared by every vocabulary in the package so kinds never
// collide, including nested ones.
var changeIDs = diff.NewAllocator(1)

// Vocabularies lists every vocabulary declared here, nested ones included.
func Vocabularies() []*diff.Vocabulary {
	return []*diff.Vocabulary{tagVocab, bucketVocab, ruleVocab, groupVocab, zoneVocab, recordVocab}
}

// Kinds lists every resource kind in command-line order.
func Kinds() []string {
	return []string{cloud.KindBucket, cloud.KindSecurityGroup, cloud.KindZone}
}

// Runners builds a manager for every kind, in Kinds order.
func Runners(client *cloud.Client, files *loader.Loader, agg *status.Aggregator, opts reconcile.Options) []reconcile.Runner {
	return []reconcile.Runner{
		reconcile.NewManager[*Bucket, *cloud.Bucket](NewBucketAdapter(client, files), agg, opts),
		reconcile.NewManager[*SecurityGroup, *cloud.SecurityGroup](NewSecurityGroupAdapter(client, files), agg, opts),
		reconcile.NewManager[*Zone, *cloud.Zone](NewZoneAdapter(client, files), agg, opts),
	}
}

// pointers converts a provider listing into the pointer map adapters use.
func pointers[T any](m map[string]T) map[string]*T {
	out := make(map[string]*T, len(m))
	for k, v := range m {
		out[k] = &v
	}
	return out
}
