package resources

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cloudsync/internal/cloud"
	"github.com/dokzlo13/cloudsync/internal/diff"
	"github.com/dokzlo13/cloudsync/internal/loader"
	"github.com/dokzlo13/cloudsync/internal/reconcile"
)

// SecurityGroup is a declared firewall rule set.
type SecurityGroup struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Tags        map[string]string `yaml:"tags"`
	Ingress     []Rule            `yaml:"ingress"`
	Egress      []Rule            `yaml:"egress"`
}

// Rule permits traffic for a protocol and port range. A rule has no identity
// beyond its fields.
type Rule struct {
	Protocol string `yaml:"protocol"`
	FromPort int    `yaml:"from_port"`
	ToPort   int    `yaml:"to_port"`
	CIDR     string `yaml:"cidr"`
}

func (g *SecurityGroup) ResourceName() string        { return g.Name }
func (g *SecurityGroup) SetResourceName(name string) { g.Name = name }

func (r Rule) remote() cloud.Rule {
	return cloud.Rule{Protocol: strings.ToLower(r.Protocol), FromPort: r.FromPort, ToPort: r.ToPort, CIDR: r.CIDR}
}

func (r Rule) key() string { return r.remote().Key() }

var (
	groupVocab       = diff.NewVocabulary(cloud.KindSecurityGroup, changeIDs)
	groupDescription = groupVocab.Declare("description")
	groupTags        = groupVocab.Declare("tags")
	groupIngress     = groupVocab.Declare("ingress")
	groupEgress      = groupVocab.Declare("egress")
)

// SecurityGroupDiff is one change to a security group.
type SecurityGroupDiff struct {
	diff.Change[*cloud.SecurityGroup, *SecurityGroup]
	Tags  diff.ListChange[string, string]
	Rules diff.ListChange[cloud.Rule, Rule]
}

func (d SecurityGroupDiff) Render() string {
	switch d.Kind() {
	case groupVocab.Unmanaged:
		return fmt.Sprintf("security group %s (%s) is not managed", d.Remote.Name, d.Remote.ID)
	case groupVocab.Added:
		return fmt.Sprintf("security group %s will be created", d.Local.Name)
	case groupDescription:
		return fmt.Sprintf("description: %q -> %q", d.Remote.Description, d.Local.Description)
	case groupTags:
		return "tags:\n" + diff.Indent(renderTags(d.Tags), "\t")
	case groupIngress:
		return "ingress:\n" + diff.Indent(renderRuleSet(d.Rules), "\t")
	case groupEgress:
		return "egress:\n" + diff.Indent(renderRuleSet(d.Rules), "\t")
	default:
		panic(d.Unhandled())
	}
}

func renderRuleSet(lc diff.ListChange[cloud.Rule, Rule]) string {
	var lines []string
	for _, k := range lc.AddedNames() {
		lines = append(lines, "+ "+k)
	}
	for _, k := range lc.RemovedNames() {
		lines = append(lines, "- "+k)
	}
	return strings.Join(lines, "\n")
}

// rules and their changes are partition-only: equal keys mean equal rules.
func compareRules(remote []cloud.Rule, local []Rule) diff.ListChange[cloud.Rule, Rule] {
	return diff.Compare(diff.Keyed(remote, cloud.Rule.Key), diff.Keyed(local, Rule.key), nil)
}

// SecurityGroupAPI is the part of the provider the security group adapter uses.
type SecurityGroupAPI interface {
	ListSecurityGroups(ctx context.Context) (map[string]cloud.SecurityGroup, error)
	CreateSecurityGroup(ctx context.Context, name, description string) (cloud.SecurityGroup, error)
	UpdateSecurityGroupDescription(ctx context.Context, name, description string) error
	TagSecurityGroup(ctx context.Context, name string, tags map[string]string) error
	UntagSecurityGroup(ctx context.Context, name string, keys []string) error
	AuthorizeIngress(ctx context.Context, name string, rules []cloud.Rule) error
	RevokeIngress(ctx context.Context, name string, rules []cloud.Rule) error
	AuthorizeEgress(ctx context.Context, name string, rules []cloud.Rule) error
	RevokeEgress(ctx context.Context, name string, rules []cloud.Rule) error
}

// SecurityGroupAdapter reconciles security groups.
type SecurityGroupAdapter struct {
	api   SecurityGroupAPI
	files *loader.Loader
}

func NewSecurityGroupAdapter(api SecurityGroupAPI, files *loader.Loader) *SecurityGroupAdapter {
	return &SecurityGroupAdapter{api: api, files: files}
}

func (a *SecurityGroupAdapter) Kind() string { return cloud.KindSecurityGroup }

func (a *SecurityGroupAdapter) LocalResources(ctx context.Context) (map[string]*SecurityGroup, error) {
	return loader.Load[SecurityGroup](a.files, cloud.KindSecurityGroup)
}

func (a *SecurityGroupAdapter) RemoteResources(ctx context.Context) (map[string]*cloud.SecurityGroup, error) {
	groups, err := a.api.ListSecurityGroups(ctx)
	if err != nil {
		return nil, err
	}
	return pointers(groups), nil
}

func (a *SecurityGroupAdapter) DiffResource(local *SecurityGroup, remote *cloud.SecurityGroup) []diff.Diff {
	var out []diff.Diff
	change := func(k diff.ChangeKind) diff.Change[*cloud.SecurityGroup, *SecurityGroup] {
		return diff.NewChange(groupVocab, k, remote, local)
	}

	if remote.Description != local.Description {
		out = append(out, SecurityGroupDiff{Change: change(groupDescription)})
	}
	if tags := compareTags(remote.Tags, local.Tags); !tags.Empty() {
		out = append(out, SecurityGroupDiff{Change: change(groupTags), Tags: tags})
	}
	if rules := compareRules(remote.Ingress, local.Ingress); !rules.Empty() {
		out = append(out, SecurityGroupDiff{Change: change(groupIngress), Rules: rules})
	}
	if rules := compareRules(remote.Egress, local.Egress); !rules.Empty() {
		out = append(out, SecurityGroupDiff{Change: change(groupEgress), Rules: rules})
	}
	return out
}

func (a *SecurityGroupAdapter) UnmanagedDiff(remote *cloud.SecurityGroup) diff.Diff {
	return SecurityGroupDiff{Change: diff.NewChange[*cloud.SecurityGroup, *SecurityGroup](groupVocab, groupVocab.Unmanaged, remote, nil)}
}

func (a *SecurityGroupAdapter) AddedDiff(local *SecurityGroup) diff.Diff {
	return SecurityGroupDiff{Change: diff.NewChange[*cloud.SecurityGroup, *SecurityGroup](groupVocab, groupVocab.Added, nil, local)}
}

func (a *SecurityGroupAdapter) Create(ctx context.Context, local *SecurityGroup) (*cloud.SecurityGroup, error) {
	g, err := a.api.CreateSecurityGroup(ctx, local.Name, local.Description)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (a *SecurityGroupAdapter) Update(ctx context.Context, local *SecurityGroup, diffs []diff.Diff) error {
	for _, d := range diffs {
		if err := a.apply(ctx, local, d.(SecurityGroupDiff)); err != nil {
			return err
		}
	}
	return nil
}

func (a *SecurityGroupAdapter) apply(ctx context.Context, local *SecurityGroup, d SecurityGroupDiff) error {
	switch d.Kind() {
	case groupVocab.Added:
		created := &cloud.SecurityGroup{Name: local.Name, Description: local.Description}
		return a.Update(ctx, local, a.DiffResource(local, created))
	case groupVocab.Unmanaged:
		return nil
	case groupDescription:
		return a.api.UpdateSecurityGroupDescription(ctx, local.Name, local.Description)
	case groupTags:
		return tagging{put: a.api.TagSecurityGroup, delete: a.api.UntagSecurityGroup}.apply(ctx, local.Name, d.Tags)
	case groupIngress:
		return a.replaceRules(ctx, local.Name, "ingress", d.Rules, a.api.AuthorizeIngress, a.api.RevokeIngress)
	case groupEgress:
		return a.replaceRules(ctx, local.Name, "egress", d.Rules, a.api.AuthorizeEgress, a.api.RevokeEgress)
	default:
		panic(d.Unhandled())
	}
}

type ruleVerb func(ctx context.Context, name string, rules []cloud.Rule) error

// replaceRules authorizes new rules before revoking old ones. If revoking
// fails, the rules just authorized are revoked again.
func (a *SecurityGroupAdapter) replaceRules(ctx context.Context, name, direction string, lc diff.ListChange[cloud.Rule, Rule], authorize, revoke ruleVerb) error {
	added := make([]cloud.Rule, 0, len(lc.Added))
	for _, k := range lc.AddedNames() {
		added = append(added, lc.Added[k].remote())
	}
	removed := make([]cloud.Rule, 0, len(lc.Removed))
	for _, k := range lc.RemovedNames() {
		removed = append(removed, lc.Removed[k])
	}

	if len(added) > 0 {
		if err := authorize(ctx, name, added); err != nil {
			return fmt.Errorf("authorize %s: %w", direction, err)
		}
		log.Debug().Str("group", name).Int("rules", len(added)).Msgf("Authorized %s rules", direction)
	}
	if len(removed) == 0 {
		return nil
	}

	return reconcile.UpdateWithRollback(ctx, name+" "+direction, len(added) > 0,
		func(ctx context.Context) error {
			if err := revoke(ctx, name, removed); err != nil {
				return fmt.Errorf("revoke %s: %w", direction, err)
			}
			return nil
		},
		func(ctx context.Context) error {
			return revoke(ctx, name, added)
		},
	)
}
