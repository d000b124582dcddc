package nandphy

// VendorDescriptor claims ownership of an identified device by its READ-ID
// response and supplies either ONFI support (geometry comes from the
// parameter page) or a fixed fallback geometry for non-ONFI parts.
type VendorDescriptor struct {
	Name string

	Identify func(idBytes []byte) bool

	SupportsONFI bool
	// FallbackGeometry is used when SupportsONFI is false.
	FallbackGeometry Geometry

	HasHWECC            bool
	BadBlockMarkingType BadBlockMarkingType
	SpareLayoutKey      string // matched against NewSpareLayout's vendor keys

	// SetFeatureDieSelect is true for vendors (Micron) that select a die
	// via SET-FEATURE rather than a dedicated SELECT-DIE command
	// (Winbond).
	SetFeatureDieSelect bool
}

// DefaultVendors returns the built-in NAND vendor descriptor list.
func DefaultVendors() []*VendorDescriptor {
	return []*VendorDescriptor{
		{
			Name:         "Micron MT29F1G01ABAFD",
			Identify:     idPrefix(0x2C, 0x14),
			SupportsONFI: true,
			HasHWECC:     true,
			BadBlockMarkingType: FLPMS,
			SpareLayoutKey:      "micron-mt29f1g01abafd",
			SetFeatureDieSelect: true,
		},
		{
			Name:         "GigaDevice GD5F",
			Identify:     func(id []byte) bool { return idPrefix(0xC8)(id) && !idPrefix(0xC8, 0x21)(id) },
			SupportsONFI: true,
			HasHWECC:     true,
			BadBlockMarkingType: FPS,
			SpareLayoutKey:      "gigadevice",
		},
		{
			Name:         "ISSI IS37/IS38",
			Identify:     idPrefix(0xC8, 0x21),
			SupportsONFI: true,
			HasHWECC:     true,
			BadBlockMarkingType: FSPS,
			SpareLayoutKey:      "issi",
		},
		{
			Name:         "Toshiba TC58",
			Identify:     idPrefix(0x98),
			SupportsONFI: true,
			HasHWECC:     true,
			BadBlockMarkingType: FSLPS,
			SpareLayoutKey:      "toshiba",
		},
		{
			Name:         "Winbond W29N",
			Identify:     idPrefix(0xEF),
			SupportsONFI: true,
			HasHWECC:     true,
			BadBlockMarkingType: FSPS,
			SpareLayoutKey:      "winbond-halved",
		},
	}
}

func idPrefix(bytes ...byte) func([]byte) bool {
	return func(idBytes []byte) bool {
		if len(idBytes) < len(bytes) {
			return false
		}
		for i, b := range bytes {
			if idBytes[i] != b {
				return false
			}
		}
		return true
	}
}
