package parsing

import (
	"fmt"

	"github.com/clustereye/collector/internal/models"
)

// Path bits for the filter document
const (
	maskFilterGroups      uint64 = 2
	maskFilterCouples     uint64 = 4
	maskFilterNamespaces  uint64 = 8
	maskFilterNodes       uint64 = 0x10
	maskFilterBackends    uint64 = 0x20
	maskFilterFilesystems uint64 = 0x40
)

var filterFolders = [][]FolderRule{
	{
		{Match: "groups", Bit: maskFilterGroups},
		{Match: "couples", Bit: maskFilterCouples},
		{Match: "namespaces", Bit: maskFilterNamespaces},
		{Match: "nodes", Bit: maskFilterNodes},
		{Match: "backends", Bit: maskFilterBackends},
		{Match: "filesystems", Bit: maskFilterFilesystems},
	},
}

// FilterParser builds a models.Filter from a filter request document.
// Every id array comes out sorted with duplicates collapsed; item type bits
// record which arrays appeared, so an explicitly empty array is
// distinguishable from an absent one.
type FilterParser struct {
	parser Parser
	filter models.Filter
	bad    bool
}

// NewFilterParser creates a filter parser
func NewFilterParser() *FilterParser {
	fp := &FilterParser{}
	fp.parser = newParser(filterFolders)
	fp.parser.onKey = fp.handleKey
	fp.parser.onUInt = fp.handleUInt
	fp.parser.onString = fp.handleString
	return fp
}

// ParseFilter parses a filter request document
func ParseFilter(data []byte) (*models.Filter, error) {
	fp := NewFilterParser()
	if err := fp.parser.Parse(data); err != nil {
		return nil, fmt.Errorf("filter parse: %w", err)
	}
	if fp.bad {
		return nil, fmt.Errorf("filter parse: value of unexpected type")
	}
	fp.filter.Normalize()
	return &fp.filter, nil
}

func (fp *FilterParser) handleKey(key string, depth int, keys uint64) {
	if depth != 1 {
		return
	}
	switch keys &^ rootBit {
	case maskFilterGroups:
		fp.filter.ItemTypes |= models.ItemGroup
	case maskFilterCouples:
		fp.filter.ItemTypes |= models.ItemCouple
	case maskFilterNamespaces:
		fp.filter.ItemTypes |= models.ItemNamespace
	case maskFilterNodes:
		fp.filter.ItemTypes |= models.ItemNode
	case maskFilterBackends:
		fp.filter.ItemTypes |= models.ItemBackend
	case maskFilterFilesystems:
		fp.filter.ItemTypes |= models.ItemFS
	}
}

func (fp *FilterParser) handleUInt(keys uint64, v uint64) {
	switch keys &^ rootBit {
	case maskFilterGroups:
		fp.filter.Groups = append(fp.filter.Groups, int(v))
	case maskFilterCouples, maskFilterNamespaces, maskFilterNodes,
		maskFilterBackends, maskFilterFilesystems:
		fp.bad = true
	}
}

func (fp *FilterParser) handleString(keys uint64, s string) {
	switch keys &^ rootBit {
	case maskFilterGroups:
		fp.bad = true
	case maskFilterCouples:
		fp.filter.Couples = append(fp.filter.Couples, s)
	case maskFilterNamespaces:
		fp.filter.Namespaces = append(fp.filter.Namespaces, s)
	case maskFilterNodes:
		fp.filter.Nodes = append(fp.filter.Nodes, s)
	case maskFilterBackends:
		fp.filter.Backends = append(fp.filter.Backends, s)
	case maskFilterFilesystems:
		fp.filter.Filesystems = append(fp.filter.Filesystems, s)
	}
}
