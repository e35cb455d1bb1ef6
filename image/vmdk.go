package image

import (
	"fmt"

	"github.com/imgforge/rim/core"
)

const vmdkDescriptorSize = 512

// VMDKDescriptorSize is the fixed descriptor header size WriteVMDKMonolithicFlat
// expects dst to reserve ahead of src's content.
const VMDKDescriptorSize = vmdkDescriptorSize

// WriteVMDKMonolithicFlat writes a 512-byte ASCII VMDK descriptor followed
// by src's raw content into dst, per spec.md §6's monolithic-flat format: a
// single file holding the descriptor directly ahead of the extent data,
// rather than VMware's usual split .vmdk/.flat.vmdk pair. dst must already
// be sized to vmdkDescriptorSize+src.Len() bytes.
func WriteVMDKMonolithicFlat(dst, src core.BlockIO, diskName string) error {
	sectors := src.Len() / 512
	cylinders := sectors / (16 * 63)
	if cylinders < 1 {
		cylinders = 1
	}

	descriptor := fmt.Sprintf(
		"# Disk DescriptorFile\n"+
			"version=1\n"+
			"CID=fffffffe\n"+
			"parentCID=ffffffff\n"+
			"createType=\"monolithicFlat\"\n\n"+
			"# Extent description\n"+
			"RW %d FLAT \"%s\" 0\n\n"+
			"# The Disk Data Base\n"+
			"#DDB\n\n"+
			"ddb.virtualHWVersion = \"4\"\n"+
			"ddb.geometry.cylinders = \"%d\"\n"+
			"ddb.geometry.heads = \"16\"\n"+
			"ddb.geometry.sectors = \"63\"\n"+
			"ddb.adapterType = \"ide\"\n",
		sectors, diskName, cylinders,
	)
	if len(descriptor) > vmdkDescriptorSize {
		return core.ErrInvalid("vmdk descriptor exceeds the fixed 512-byte header")
	}

	header := make([]byte, vmdkDescriptorSize)
	copy(header, descriptor)

	if err := dst.WriteAt(0, header); err != nil {
		return err
	}
	if err := dst.CopyFrom(src, 0, vmdkDescriptorSize, src.Len()); err != nil {
		return err
	}
	return dst.Flush()
}
