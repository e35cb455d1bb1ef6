// Package manifest loads the layout manifest that describes a disk image's
// partitions, per spec.md §6: "a declarative partition list consumed by the
// partition emitter... the core receives only resolved partitions." This
// package is the collaborator boundary spec.md §1 carves out of the core;
// it is deliberately thin, parsing a YAML document and resolving it into
// concrete byte offsets and GUIDs the partition/gpt and filesystem packages
// consume directly.
package manifest

import (
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/imgforge/rim/core"
	"github.com/imgforge/rim/partition/gpt"
)

// Kind is the partition role named in a manifest entry, mapped to a
// well-known GPT type GUID unless the entry supplies an explicit GUID
// override.
type Kind string

const (
	KindESP      Kind = "esp"
	KindBIOSBoot Kind = "bios-boot"
	KindLinux    Kind = "linux"
	KindSwap     Kind = "swap"
	KindData     Kind = "data"
	KindBoot     Kind = "boot"
	KindRecovery Kind = "recovery"
)

// typeGUID returns the well-known GPT type GUID for k, or false if k is not
// one of the fixed roles above.
func (k Kind) typeGUID() (uuid.UUID, bool) {
	switch k {
	case KindESP:
		return gpt.EFISystemPartition, true
	case KindBIOSBoot:
		return gpt.BIOSBootPartition, true
	case KindLinux:
		return gpt.LinuxFilesystem, true
	case KindSwap:
		return gpt.LinuxSwap, true
	case KindData:
		return gpt.MicrosoftBasicData, true
	case KindBoot:
		return gpt.LinuxExtendedBoot, true
	case KindRecovery:
		return gpt.WindowsRecoveryEnv, true
	default:
		return uuid.Nil, false
	}
}

// FS names the filesystem family formatted into a partition. FSNone leaves
// the partition as raw, unformatted space (e.g. a BIOS boot partition).
type FS string

const (
	FSNone  FS = ""
	FSFAT32 FS = "fat32"
	FSExFAT FS = "exfat"
	FSExt4  FS = "ext4"
)

// PartitionSpec is one entry of the layout manifest's partition list,
// mirroring spec.md §6's field set exactly:
// {name, kind, size, fs, bootable, guid, mountpoint, payload, label, uuid}.
type PartitionSpec struct {
	Name       string `yaml:"name"`
	Kind       Kind   `yaml:"kind"`
	Size       string `yaml:"size"`
	FS         FS     `yaml:"fs"`
	Bootable   bool   `yaml:"bootable"`
	GUID       string `yaml:"guid"`
	Mountpoint string `yaml:"mountpoint"`
	Payload    string `yaml:"payload"`
	Label      string `yaml:"label"`
	UUID       string `yaml:"uuid"`
}

// Manifest is the top-level layout document.
type Manifest struct {
	Partitions []PartitionSpec `yaml:"partitions"`
}

// Load reads and parses the YAML layout manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.ErrIO("read layout manifest", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, core.ErrInvalid("parse layout manifest: " + err.Error())
	}
	if len(m.Partitions) == 0 {
		return nil, core.ErrInvalid("layout manifest declares no partitions")
	}
	for i, p := range m.Partitions {
		if p.Name == "" {
			return nil, core.ErrInvalid("partition entry has no name")
		}
		if p.Size == "" {
			return nil, core.ErrInvalid("partition " + p.Name + " has no size")
		}
		if _, ok := p.Kind.typeGUID(); !ok && p.GUID == "" {
			return nil, core.ErrInvalid("partition " + p.Name + " has unknown kind " + string(p.Kind) + " and no explicit guid")
		}
		switch p.FS {
		case FSNone, FSFAT32, FSExFAT, FSExt4:
		default:
			return nil, core.ErrInvalid("partition " + p.Name + " names unsupported fs " + string(p.FS))
		}
		m.Partitions[i] = p
	}
	return &m, nil
}
