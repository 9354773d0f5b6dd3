package parsing

import (
	"reflect"
	"testing"

	"github.com/clustereye/collector/internal/models"
)

func TestParseFilterSortsAndDeduplicates(t *testing.T) {
	filter, err := ParseFilter([]byte(`{
  "groups": [3, 1, 2, 1],
  "namespaces": ["b", "a", "b"],
  "couples": ["5:6", "1:2"]
}`))
	if err != nil {
		t.Fatalf("ParseFilter failed: %v", err)
	}

	if !reflect.DeepEqual(filter.Groups, []int{1, 2, 3}) {
		t.Errorf("groups = %v", filter.Groups)
	}
	if !reflect.DeepEqual(filter.Namespaces, []string{"a", "b"}) {
		t.Errorf("namespaces = %v", filter.Namespaces)
	}
	if !reflect.DeepEqual(filter.Couples, []string{"1:2", "5:6"}) {
		t.Errorf("couples = %v", filter.Couples)
	}

	want := models.ItemGroup | models.ItemNamespace | models.ItemCouple
	if filter.ItemTypes != want {
		t.Errorf("item types = %x, want %x", filter.ItemTypes, want)
	}
}

func TestParseFilterEmptyArraySetsItemType(t *testing.T) {
	filter, err := ParseFilter([]byte(`{"groups": []}`))
	if err != nil {
		t.Fatalf("ParseFilter failed: %v", err)
	}

	// an explicitly empty array still sets its item type bit, unlike an absent one
	if filter.ItemTypes != models.ItemGroup {
		t.Errorf("item types = %x, want %x", filter.ItemTypes, models.ItemGroup)
	}
	if len(filter.Groups) != 0 {
		t.Errorf("groups = %v, want empty", filter.Groups)
	}
}

func TestParseFilterIgnoresUnknownKeys(t *testing.T) {
	filter, err := ParseFilter([]byte(`{"groups": [7], "future": {"x": [1]}}`))
	if err != nil {
		t.Fatalf("ParseFilter failed: %v", err)
	}

	if !reflect.DeepEqual(filter.Groups, []int{7}) {
		t.Errorf("groups = %v", filter.Groups)
	}
	if filter.ItemTypes != models.ItemGroup {
		t.Errorf("item types = %x", filter.ItemTypes)
	}
}

func TestParseFilterRejectsMalformedDocument(t *testing.T) {
	if _, err := ParseFilter([]byte(`{"groups": [`)); err == nil {
		t.Error("Expected error for truncated document")
	}
	if _, err := ParseFilter([]byte(`not json`)); err == nil {
		t.Error("Expected error for non-JSON input")
	}
}

func TestParseFilterRejectsWrongValueTypes(t *testing.T) {
	if _, err := ParseFilter([]byte(`{"groups": ["seven"]}`)); err == nil {
		t.Error("Expected error for string group id")
	}
	if _, err := ParseFilter([]byte(`{"namespaces": [1]}`)); err == nil {
		t.Error("Expected error for numeric namespace")
	}
}

func TestParseFilterAllKinds(t *testing.T) {
	filter, err := ParseFilter([]byte(`{
  "groups": [1],
  "couples": ["1:2"],
  "namespaces": ["ns"],
  "nodes": ["h1:1025:2"],
  "backends": ["h1:1025:2/5"],
  "filesystems": ["h1:1025:2/42"]
}`))
	if err != nil {
		t.Fatalf("ParseFilter failed: %v", err)
	}

	want := models.ItemGroup | models.ItemCouple | models.ItemNamespace |
		models.ItemNode | models.ItemBackend | models.ItemFS
	if filter.ItemTypes != want {
		t.Errorf("item types = %x, want %x", filter.ItemTypes, want)
	}
	if !filter.HasNode("h1:1025:2") || !filter.HasBackend("h1:1025:2/5") || !filter.HasFS("h1:1025:2/42") {
		t.Error("membership lookups failed")
	}
}
