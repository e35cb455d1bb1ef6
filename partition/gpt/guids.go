package gpt

import "github.com/google/uuid"

// Standard GPT partition type GUIDs, fixed by the UEFI specification. These
// are not format-specific to this module; every GPT implementation
// publishes the same values, so they are declared directly rather than
// grounded on any one example repo.
var (
	EFISystemPartition   = uuid.MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")
	BIOSBootPartition    = uuid.MustParse("21686148-6449-6E6F-744E-656564454649")
	LinuxFilesystem      = uuid.MustParse("0FC63DAF-8483-4772-8E79-3D69D8477DE4")
	LinuxSwap            = uuid.MustParse("0657FD6D-A4AB-43C4-84E5-0933C84B4F4F")
	MicrosoftBasicData   = uuid.MustParse("EBD0A0A2-B9E5-4433-87C0-68B6B72699C7")
	LinuxExtendedBoot    = uuid.MustParse("BC13C2FF-59E6-4262-A352-B275FD6F7172")
	WindowsRecoveryEnv   = uuid.MustParse("DE94BBA4-06D1-4D40-A16A-BFD50179D6AC")
)

// TypeName returns the well-known name for a standard type GUID, or "" if
// typeGUID isn't one of the fixed set above.
func TypeName(typeGUID uuid.UUID) string {
	switch typeGUID {
	case EFISystemPartition:
		return "ESP"
	case BIOSBootPartition:
		return "BiosBoot"
	case LinuxFilesystem:
		return "Linux"
	case LinuxSwap:
		return "Swap"
	case MicrosoftBasicData:
		return "Data"
	case LinuxExtendedBoot:
		return "Boot"
	case WindowsRecoveryEnv:
		return "Recovery"
	default:
		return ""
	}
}
