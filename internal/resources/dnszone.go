package resources

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cloudsync/internal/cloud"
	"github.com/dokzlo13/cloudsync/internal/diff"
	"github.com/dokzlo13/cloudsync/internal/loader"
)

// Zone is a declared DNS hosted zone.
type Zone struct {
	Name    string            `yaml:"name"`
	Comment string            `yaml:"comment"`
	Private bool              `yaml:"private"`
	Tags    map[string]string `yaml:"tags"`
	Records []Record          `yaml:"records"`
}

// Record is a declared record set, identified by name and type.
type Record struct {
	Name   string   `yaml:"name"`
	Type   string   `yaml:"type"`
	TTL    int      `yaml:"ttl"`
	Values []string `yaml:"values"`
}

func (z *Zone) ResourceName() string        { return z.Name }
func (z *Zone) SetResourceName(name string) { z.Name = name }

const defaultTTL = 300

func (r Record) remote() cloud.Record {
	ttl := r.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	return cloud.Record{Name: r.Name, Type: strings.ToUpper(r.Type), TTL: ttl, Values: r.Values}
}

func (r Record) key() string { return r.remote().Key() }

var (
	zoneVocab   = diff.NewVocabulary(cloud.KindZone, changeIDs)
	zoneComment = zoneVocab.Declare("comment")
	zonePrivate = zoneVocab.Declare("private")
	zoneTags    = zoneVocab.Declare("tags")
	zoneRecords = zoneVocab.Declare("records")

	recordVocab  = diff.NewVocabulary("record", changeIDs)
	recordTTL    = recordVocab.Declare("ttl")
	recordValues = recordVocab.Declare("values")
)

// ZoneDiff is one change to a hosted zone.
type ZoneDiff struct {
	diff.Change[*cloud.Zone, *Zone]
	Tags    diff.ListChange[string, string]
	Records diff.ListChange[cloud.Record, Record]
}

func (d ZoneDiff) Render() string {
	switch d.Kind() {
	case zoneVocab.Unmanaged:
		return fmt.Sprintf("zone %s (%s) is not managed", d.Remote.Name, d.Remote.ID)
	case zoneVocab.Added:
		return fmt.Sprintf("zone %s will be created", d.Local.Name)
	case zoneComment:
		return fmt.Sprintf("comment: %q -> %q", d.Remote.Comment, d.Local.Comment)
	case zonePrivate:
		return fmt.Sprintf("private: %t -> %t (requires replacing the zone)", d.Remote.Private, d.Local.Private)
	case zoneTags:
		return "tags:\n" + diff.Indent(renderTags(d.Tags), "\t")
	case zoneRecords:
		return "records:\n" + diff.Indent(renderRecords(d.Records), "\t")
	default:
		panic(d.Unhandled())
	}
}

// ReportOnly marks the privacy flag, which cannot change after creation.
func (d ZoneDiff) ReportOnly() bool {
	return d.Kind() == zonePrivate
}

// RecordDiff is one change to a record set.
type RecordDiff struct {
	diff.Change[cloud.Record, Record]
}

func (d RecordDiff) Render() string {
	switch d.Kind() {
	case recordVocab.Unmanaged:
		return fmt.Sprintf("- %s", d.Remote.Key())
	case recordVocab.Added:
		r := d.Local.remote()
		return fmt.Sprintf("+ %s %d %s", r.Key(), r.TTL, strings.Join(r.Values, ","))
	case recordTTL:
		return fmt.Sprintf("ttl: %d -> %d", d.Remote.TTL, d.Local.remote().TTL)
	case recordValues:
		return fmt.Sprintf("values: [%s] -> [%s]", strings.Join(d.Remote.Values, ","), strings.Join(d.Local.Values, ","))
	default:
		panic(d.Unhandled())
	}
}

func diffRecord(remote cloud.Record, local Record) []diff.Diff {
	want := local.remote()
	var out []diff.Diff
	if remote.TTL != want.TTL {
		out = append(out, RecordDiff{diff.NewChange(recordVocab, recordTTL, remote, local)})
	}
	if !slices.Equal(slices.Sorted(slices.Values(remote.Values)), slices.Sorted(slices.Values(want.Values))) {
		out = append(out, RecordDiff{diff.NewChange(recordVocab, recordValues, remote, local)})
	}
	return out
}

func renderRecords(lc diff.ListChange[cloud.Record, Record]) string {
	var lines []string
	for _, k := range lc.AddedNames() {
		lines = append(lines, RecordDiff{diff.NewChange(recordVocab, recordVocab.Added, cloud.Record{}, lc.Added[k])}.Render())
	}
	for _, k := range lc.RemovedNames() {
		lines = append(lines, RecordDiff{diff.NewChange(recordVocab, recordVocab.Unmanaged, lc.Removed[k], Record{})}.Render())
	}
	for _, k := range lc.ModifiedNames() {
		lines = append(lines, "~ "+k+":")
		for _, d := range lc.Modified[k] {
			lines = append(lines, "\t"+d.Render())
		}
	}
	return strings.Join(lines, "\n")
}

// ZoneAPI is the part of the provider the zone adapter uses.
type ZoneAPI interface {
	ListZones(ctx context.Context) (map[string]cloud.Zone, error)
	CreateZone(ctx context.Context, name string, private bool) (cloud.Zone, error)
	UpdateZoneComment(ctx context.Context, name, comment string) error
	TagZone(ctx context.Context, name string, tags map[string]string) error
	UntagZone(ctx context.Context, name string, keys []string) error
	UpsertRecord(ctx context.Context, zone string, rec cloud.Record) error
	DeleteRecord(ctx context.Context, zone, key string) error
}

// ZoneAdapter reconciles DNS hosted zones.
type ZoneAdapter struct {
	api   ZoneAPI
	files *loader.Loader
}

func NewZoneAdapter(api ZoneAPI, files *loader.Loader) *ZoneAdapter {
	return &ZoneAdapter{api: api, files: files}
}

func (a *ZoneAdapter) Kind() string { return cloud.KindZone }

func (a *ZoneAdapter) LocalResources(ctx context.Context) (map[string]*Zone, error) {
	return loader.Load[Zone](a.files, cloud.KindZone)
}

func (a *ZoneAdapter) RemoteResources(ctx context.Context) (map[string]*cloud.Zone, error) {
	zones, err := a.api.ListZones(ctx)
	if err != nil {
		return nil, err
	}
	return pointers(zones), nil
}

func (a *ZoneAdapter) DiffResource(local *Zone, remote *cloud.Zone) []diff.Diff {
	var out []diff.Diff
	change := func(k diff.ChangeKind) diff.Change[*cloud.Zone, *Zone] {
		return diff.NewChange(zoneVocab, k, remote, local)
	}

	if remote.Comment != local.Comment {
		out = append(out, ZoneDiff{Change: change(zoneComment)})
	}
	if remote.Private != local.Private {
		out = append(out, ZoneDiff{Change: change(zonePrivate)})
	}
	if tags := compareTags(remote.Tags, local.Tags); !tags.Empty() {
		out = append(out, ZoneDiff{Change: change(zoneTags), Tags: tags})
	}
	if records := diff.Compare(remote.Records, diff.Keyed(local.Records, Record.key), diffRecord); !records.Empty() {
		out = append(out, ZoneDiff{Change: change(zoneRecords), Records: records})
	}
	return out
}

func (a *ZoneAdapter) UnmanagedDiff(remote *cloud.Zone) diff.Diff {
	return ZoneDiff{Change: diff.NewChange[*cloud.Zone, *Zone](zoneVocab, zoneVocab.Unmanaged, remote, nil)}
}

func (a *ZoneAdapter) AddedDiff(local *Zone) diff.Diff {
	return ZoneDiff{Change: diff.NewChange[*cloud.Zone, *Zone](zoneVocab, zoneVocab.Added, nil, local)}
}

func (a *ZoneAdapter) Create(ctx context.Context, local *Zone) (*cloud.Zone, error) {
	z, err := a.api.CreateZone(ctx, local.Name, local.Private)
	if err != nil {
		return nil, err
	}
	return &z, nil
}

func (a *ZoneAdapter) Update(ctx context.Context, local *Zone, diffs []diff.Diff) error {
	for _, d := range diffs {
		if err := a.apply(ctx, local, d.(ZoneDiff)); err != nil {
			return err
		}
	}
	return nil
}

func (a *ZoneAdapter) apply(ctx context.Context, local *Zone, d ZoneDiff) error {
	switch d.Kind() {
	case zoneVocab.Added:
		created := &cloud.Zone{Name: local.Name, Private: local.Private}
		return a.Update(ctx, local, a.DiffResource(local, created))
	case zoneVocab.Unmanaged:
		return nil
	case zoneComment:
		return a.api.UpdateZoneComment(ctx, local.Name, local.Comment)
	case zonePrivate:
		log.Warn().
			Str("zone", local.Name).
			Bool("private", local.Private).
			Msg("Zone privacy is fixed at creation, recreate the zone to change it")
		return nil
	case zoneTags:
		return tagging{put: a.api.TagZone, delete: a.api.UntagZone}.apply(ctx, local.Name, d.Tags)
	case zoneRecords:
		for _, k := range d.Records.AddedNames() {
			if err := a.api.UpsertRecord(ctx, local.Name, d.Records.Added[k].remote()); err != nil {
				return err
			}
		}
		for _, k := range d.Records.ModifiedNames() {
			rec := d.Records.Modified[k][0].(RecordDiff).Local
			if err := a.api.UpsertRecord(ctx, local.Name, rec.remote()); err != nil {
				return err
			}
		}
		for _, k := range d.Records.RemovedNames() {
			if err := a.api.DeleteRecord(ctx, local.Name, k); err != nil {
				return err
			}
		}
		return nil
	default:
		panic(d.Unhandled())
	}
}
