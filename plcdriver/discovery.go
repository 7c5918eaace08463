package plcdriver

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yatesdr/plcio/logix"
)

// tagIgnorePatterns filters out whole top-level tags that are PLC-internal
// bookkeeping rather than process data, straight from the original
// collector's tagIgnoreRegex list.
var tagIgnorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^R.*_S.*_`),
	regexp.MustCompile(`^R.*_.*:.*`),
	regexp.MustCompile(`^raC.*`),
}

// propIgnorePrefixes filters out structure members by name prefix — motion
// and safety firmware scaffolding that shows up inside many AOIs but is never
// useful process data. Grounded verbatim in the original collector's
// propIgnoreRegex prefix list.
var propIgnorePrefixes = []string{
	"__BitHost", "Cfg_", "PCmd", "MCmd", "Nrdy_", "Rdy_", "Inp_", "OCmd_",
	"SrcQ", "Err_", "Wrk_", "Inf_", "PSet_", "MSet_", "OSet_", "Set_",
	"Out_", "Ack_", "P_", "ZZZZZZZZZZ",
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func hasIgnoredPrefix(name string) bool {
	for _, p := range propIgnorePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// DiscoveredTag is one leaf tag a discovery pass surfaces: a fully
// qualified, readable name and the whitelisted CIP type it was found to be.
type DiscoveredTag struct {
	Name         string
	DataTypeName string
}

// whitelistName reports whether a base CIP type code is one of the six types
// this collector stores, and its human-readable name for the cloud catalog.
// github.com/yatesdr/plcio/logix has no TypeDWORD constant — Rockwell's DWORD
// is a 32-bit bit string, which the library represents as TypeBitString32.
func whitelistName(baseType uint16) (string, bool) {
	switch baseType {
	case logix.TypeDINT:
		return "DINT", true
	case logix.TypeSINT:
		return "SINT", true
	case logix.TypeBitString32:
		return "DWORD", true
	case logix.TypeREAL:
		return "REAL", true
	case logix.TypeINT:
		return "INT", true
	case logix.TypeBOOL:
		return "BOOL", true
	default:
		return "", false
	}
}

// indexSuffixes enumerates every element of a (possibly multi-dimensional)
// array as a Logix-style index suffix: "[0]", "[1]", ... for 1D, "[0,0]",
// "[0,1]", ... for 2D, following Rockwell's own multi-dimensional element
// addressing. Dimensions of 0 are treated as absent.
func indexSuffixes(dims []int) []string {
	active := make([]int, 0, len(dims))
	for _, d := range dims {
		if d > 0 {
			active = append(active, d)
		}
	}
	if len(active) == 0 {
		return nil
	}

	var combos [][]int
	var build func(cur []int)
	build = func(cur []int) {
		if len(cur) == len(active) {
			combos = append(combos, append([]int(nil), cur...))
			return
		}
		for i := 0; i < active[len(cur)]; i++ {
			build(append(cur, i))
		}
	}
	build(nil)

	out := make([]string, len(combos))
	for i, combo := range combos {
		parts := make([]string, len(combo))
		for j, v := range combo {
			parts[j] = strconv.Itoa(v)
		}
		out[i] = "[" + strings.Join(parts, ",") + "]"
	}
	return out
}

// discoverer walks a client's symbol table and UDT templates to produce the
// flat set of leaf tags this collector is allowed to monitor.
type discoverer struct {
	client *logix.Client
	out    []DiscoveredTag
	seen   map[string]bool
}

func (d *discoverer) addLeaf(name string, baseType uint16) {
	typeName, ok := whitelistName(baseType)
	if !ok || d.seen[name] {
		return
	}
	d.seen[name] = true
	d.out = append(d.out, DiscoveredTag{Name: name, DataTypeName: typeName})
}

// walkStructure recurses into a UDT's members, expanding nested structures
// and arrays, and building dotted parent.child names the way the original
// collector's get_tags closure did for pycomm3's internal_tags tree.
func (d *discoverer) walkStructure(prefix string, templateID uint16) {
	tmpl, err := d.client.PLC().GetTemplate(templateID)
	if err != nil || tmpl == nil {
		return
	}

	for _, m := range tmpl.Members {
		if m.Hidden || hasIgnoredPrefix(m.Name) {
			continue
		}
		memberBase := m.Type & 0x0FFF
		full := prefix + "." + m.Name

		if m.IsStructure() {
			if suffixes := indexSuffixes(m.ArrayDims); suffixes != nil {
				for _, sfx := range suffixes {
					d.walkStructure(full+sfx, memberBase)
				}
			} else {
				d.walkStructure(full, memberBase)
			}
			continue
		}

		if suffixes := indexSuffixes(m.ArrayDims); suffixes != nil {
			for _, sfx := range suffixes {
				d.addLeaf(full+sfx, memberBase)
			}
		} else {
			d.addLeaf(full, memberBase)
		}
	}
}

func (d *discoverer) walkTopLevel(tags []logix.TagInfo) {
	for _, t := range tags {
		if matchesAny(tagIgnorePatterns, t.Name) {
			continue
		}

		baseType := t.TypeCode & 0x0FFF
		isStruct := logix.IsStructure(t.TypeCode)

		if suffixes := indexSuffixes(t.Dimensions); suffixes != nil {
			for _, sfx := range suffixes {
				if isStruct {
					d.walkStructure(t.Name+sfx, baseType)
				} else {
					d.addLeaf(t.Name+sfx, baseType)
				}
			}
			continue
		}

		if isStruct {
			d.walkStructure(t.Name, baseType)
		} else {
			d.addLeaf(t.Name, baseType)
		}
	}
}

// Discover browses the controller's symbol table and every nested UDT member
// reachable from it, returning the flat set of leaf tags that pass the
// ignore lists and the type whitelist.
func (d *LogixDriver) Discover(ctx context.Context) ([]DiscoveredTag, error) {
	client, err := d.checkout()
	if err != nil {
		return nil, fmt.Errorf("plcdriver: discover: %w", err)
	}
	defer d.checkin(client)

	tags, err := client.AllTags()
	if err != nil {
		return nil, fmt.Errorf("plcdriver: discover: list tags: %w", err)
	}

	disc := &discoverer{client: client, seen: make(map[string]bool)}
	disc.walkTopLevel(tags)
	return disc.out, nil
}
