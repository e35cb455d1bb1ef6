package manifest

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/imgforge/rim/core"
)

const (
	autoSizeFactor = 1.1
	autoSizeFloor  = 64 * 1 << 20 // 64 MiB
)

// ResolvedPartition is one manifest entry with its size and GUIDs settled
// into concrete values the partition/gpt builder consumes directly.
type ResolvedPartition struct {
	Spec       PartitionSpec
	SizeBytes  int64
	TypeGUID   uuid.UUID
	UniqueGUID uuid.UUID
}

// Resolve settles every partition's size (expanding "auto" against its
// payload directory) and GUIDs, per spec.md §6: "auto resolves by summing
// the source tree size x 1.1, floored at 64 MB. The core receives only
// resolved partitions."
func (m *Manifest) Resolve() ([]ResolvedPartition, error) {
	resolved := make([]ResolvedPartition, 0, len(m.Partitions))
	for _, spec := range m.Partitions {
		size, err := resolveSize(spec)
		if err != nil {
			return nil, err
		}
		typeGUID, err := resolveTypeGUID(spec)
		if err != nil {
			return nil, err
		}
		uniqueGUID, err := resolveUniqueGUID(spec)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, ResolvedPartition{
			Spec:       spec,
			SizeBytes:  size,
			TypeGUID:   typeGUID,
			UniqueGUID: uniqueGUID,
		})
	}
	return resolved, nil
}

func resolveSize(spec PartitionSpec) (int64, error) {
	if spec.Size == "auto" {
		if spec.Payload == "" {
			return 0, core.ErrInvalid("partition " + spec.Name + " has size auto but no payload to measure")
		}
		used, err := core.DirSize(spec.Payload)
		if err != nil {
			return 0, err
		}
		size := int64(float64(used) * autoSizeFactor)
		if size < autoSizeFloor {
			size = autoSizeFloor
		}
		return size, nil
	}
	return parseSize(spec.Size)
}

// parseSize parses "<N>{K|M|G}" per spec.md §6, e.g. "512M", "2G", or a bare
// byte count.
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, core.ErrInvalid("empty size")
	}
	mult := int64(1)
	suffix := s[len(s)-1]
	switch suffix {
	case 'K', 'k':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'G', 'g':
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, core.ErrInvalid("invalid size " + s)
	}
	if n < 0 {
		return 0, core.ErrInvalid("negative size")
	}
	return n * mult, nil
}

func resolveTypeGUID(spec PartitionSpec) (uuid.UUID, error) {
	if spec.GUID != "" {
		g, err := uuid.Parse(spec.GUID)
		if err != nil {
			return uuid.Nil, core.ErrInvalid("partition " + spec.Name + " has invalid guid: " + err.Error())
		}
		return g, nil
	}
	if g, ok := spec.Kind.typeGUID(); ok {
		return g, nil
	}
	return uuid.Nil, core.ErrInvalid("partition " + spec.Name + " has no resolvable type guid")
}

func resolveUniqueGUID(spec PartitionSpec) (uuid.UUID, error) {
	if spec.UUID == "" {
		return uuid.NewRandom()
	}
	g, err := uuid.Parse(spec.UUID)
	if err != nil {
		return uuid.Nil, core.ErrInvalid("partition " + spec.Name + " has invalid uuid: " + err.Error())
	}
	return g, nil
}
