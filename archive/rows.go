package archive

// Row types map one-to-one onto archive tables. Field names are column
// names.

type propertyRow struct {
	Name  string
	Value string
}

type stringRow struct {
	Ref   uint32
	Value string
}

type attributeRow struct {
	Ref         uint32
	Name        uint32
	Description uint32
	Type        uint8
}

type systemTreeRow struct {
	Ref    uint32
	Name   uint32
	Class  uint32
	Parent uint32
}

type locationGroupRow struct {
	Ref    uint32
	Name   uint32
	Parent uint32
}

type regionRow struct {
	Ref        uint32
	Name       uint32
	Role       uint8
	Attributes []byte
}

type locationRow struct {
	Ref           uint64
	Name          uint32
	Type          uint8
	Events        uint64
	LocationGroup uint32
}

type eventRow struct {
	Seq        uint64
	Location   uint64
	Kind       uint8
	Time       uint64
	Region     uint32
	Attributes []byte
}

// Table names.
const (
	TableProperties     = "properties"
	TableStrings        = "strings"
	TableAttributes     = "attributes"
	TableSystemTree     = "system_tree"
	TableLocationGroups = "location_groups"
	TableRegions        = "regions"
	TableLocations      = "locations"
	TableEvents         = "events"
)

type tableSchema struct {
	name   string
	sample any
}

var schema = []tableSchema{
	{TableProperties, propertyRow{}},
	{TableStrings, stringRow{}},
	{TableAttributes, attributeRow{}},
	{TableSystemTree, systemTreeRow{}},
	{TableLocationGroups, locationGroupRow{}},
	{TableRegions, regionRow{}},
	{TableLocations, locationRow{}},
	{TableEvents, eventRow{}},
}
