package cloud

import (
	"fmt"
	"slices"
	"time"
)

// Bucket is an object storage bucket as observed remotely.
type Bucket struct {
	Name       string                   `json:"name"`
	Versioning bool                     `json:"versioning"`
	Tags       map[string]string        `json:"tags,omitempty"`
	Lifecycle  map[string]LifecycleRule `json:"lifecycle,omitempty"` // keyed by rule ID
	CreatedAt  time.Time                `json:"created_at"`
}

// LifecycleRule expires objects under a prefix.
type LifecycleRule struct {
	ID             string `json:"id"`
	Prefix         string `json:"prefix"`
	ExpirationDays int    `json:"expiration_days"`
}

// SecurityGroup is a firewall rule set as observed remotely.
type SecurityGroup struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Tags        map[string]string `json:"tags,omitempty"`
	Ingress     []Rule            `json:"ingress,omitempty"`
	Egress      []Rule            `json:"egress,omitempty"`
}

// Rule permits traffic for a protocol and port range from or to a CIDR.
type Rule struct {
	Protocol string `json:"protocol"`
	FromPort int    `json:"from_port"`
	ToPort   int    `json:"to_port"`
	CIDR     string `json:"cidr"`
}

// Key identifies a rule by every field, so rules with equal keys are equal.
func (r Rule) Key() string {
	return fmt.Sprintf("%s %d-%d %s", r.Protocol, r.FromPort, r.ToPort, r.CIDR)
}

// Zone is a DNS hosted zone as observed remotely.
type Zone struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Comment string            `json:"comment"`
	Private bool              `json:"private"`
	Tags    map[string]string `json:"tags,omitempty"`
	Records map[string]Record `json:"records,omitempty"` // keyed by Record.Key
}

// Record is a DNS record set.
type Record struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	TTL    int      `json:"ttl"`
	Values []string `json:"values"`
}

// Key identifies a record set by name and type.
func (r Record) Key() string {
	return r.Name + " " + r.Type
}

// Equal reports whether two record sets hold the same data.
// Value order is not significant.
func (r Record) Equal(o Record) bool {
	if r.Key() != o.Key() || r.TTL != o.TTL || len(r.Values) != len(o.Values) {
		return false
	}
	a := slices.Sorted(slices.Values(r.Values))
	b := slices.Sorted(slices.Values(o.Values))
	return slices.Equal(a, b)
}
