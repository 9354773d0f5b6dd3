package meta

import (
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// MetadataKey and MetadataNamespace locate group metadata in the cluster
const (
	MetadataKey       = "symmetric_groups"
	MetadataNamespace = "metabalancer"
)

// GroupMeta is the decoded content of a group's metadata value
type GroupMeta struct {
	Version   int
	Couple    []int // sorted group ids
	Namespace string
	Frozen    bool

	ServiceMigrating bool
	ServiceJobID     string
}

// DecodeGroupMeta decodes a msgpack metadata value. Two shapes are accepted:
// a map {version, couple, namespace, frozen, service{status, job_id}} or a
// bare group-id array, interpreted as version 1 in namespace "default".
func DecodeGroupMeta(data []byte) (*GroupMeta, error) {
	var raw interface{}
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("msgpack could not parse group metadata: %v", err)
	}

	switch obj := raw.(type) {
	case map[string]interface{}:
		return decodeMetaMap(obj)
	case []interface{}:
		couple, ok := decodeCouple(obj)
		if !ok {
			return nil, fmt.Errorf("couldn't parse couple (format of version 1)")
		}
		return &GroupMeta{
			Version:   1,
			Namespace: "default",
			Couple:    couple,
		}, nil
	default:
		return nil, fmt.Errorf("unexpected group metadata shape %T", raw)
	}
}

func decodeMetaMap(obj map[string]interface{}) (*GroupMeta, error) {
	gm := &GroupMeta{}

	for key, val := range obj {
		switch key {
		case "version":
			v, ok := toInt(val)
			if !ok {
				return nil, fmt.Errorf("invalid 'version' value type %T", val)
			}
			gm.Version = int(v)

		case "couple":
			arr, ok := val.([]interface{})
			if !ok {
				return nil, fmt.Errorf("couldn't parse 'couple'")
			}
			couple, ok := decodeCouple(arr)
			if !ok {
				return nil, fmt.Errorf("couldn't parse 'couple'")
			}
			gm.Couple = couple

		case "namespace":
			s, ok := toString(val)
			if !ok {
				return nil, fmt.Errorf("invalid 'namespace' value type %T", val)
			}
			gm.Namespace = s

		case "frozen":
			b, ok := val.(bool)
			if !ok {
				return nil, fmt.Errorf("invalid 'frozen' value type %T", val)
			}
			gm.Frozen = b

		case "service":
			srv, ok := val.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("invalid 'service' value type %T", val)
			}
			for srvKey, srvVal := range srv {
				switch srvKey {
				case "status":
					if s, ok := toString(srvVal); ok && s == "MIGRATING" {
						gm.ServiceMigrating = true
					}
				case "job_id":
					s, ok := toString(srvVal)
					if !ok {
						return nil, fmt.Errorf("invalid 'job_id' value type %T", srvVal)
					}
					gm.ServiceJobID = s
				}
			}
		}
	}

	return gm, nil
}

func decodeCouple(arr []interface{}) ([]int, bool) {
	couple := make([]int, 0, len(arr))
	for _, item := range arr {
		v, ok := toInt(item)
		if !ok || v < 0 {
			return nil, false
		}
		couple = append(couple, int(v))
	}
	sort.Ints(couple)
	return couple, true
}

func toInt(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	default:
		return 0, false
	}
}

func toString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return "", false
	}
}
