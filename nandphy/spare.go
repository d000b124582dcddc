package nandphy

// SpareLayout translates between the uniform logical spare-area layout the
// upper NAND driver expects — user data in bytes [4,8) of every ECC-block
// stripe — and the physical layout a specific vendor's HW ECC requires.
// Translation only applies when HW ECC is enabled; with ECC disabled the
// logical and physical layouts are identical.
type SpareLayout interface {
	// TranslateWrite copies the 4 bytes of user data of logical stripe
	// stripe (logical bytes [4,8) of that stripe) into raw at the
	// vendor-specific physical position.
	TranslateWrite(raw []byte, stripe int, userData [4]byte, isFirstOrLastPage bool)
	// TranslateRead returns the 4 bytes of user data for logical stripe
	// stripe out of raw.
	TranslateRead(raw []byte, stripe int, isFirstOrLastPage bool) [4]byte
	// SpareAreaSize returns the spare-area size the upper driver should be
	// told is available (some vendors halve it to keep the driver out of
	// the ECC parity region).
	SpareAreaSize(nominal int) int
}

const eccStripeSize = 16 // bad-block byte, ecc-gen, ecc-parity, user — 1+3+4+8 (ISSI layout)

// genericLayout is the identity mapping used for vendors requiring no
// relocation.
type genericLayout struct{}

func (genericLayout) TranslateWrite(raw []byte, stripe int, userData [4]byte, _ bool) {
	off := stripe*eccStripeSize + 4
	copy(raw[off:off+4], userData[:])
}

func (genericLayout) TranslateRead(raw []byte, stripe int, _ bool) [4]byte {
	off := stripe*eccStripeSize + 4
	var out [4]byte
	copy(out[:], raw[off:off+4])
	return out
}

func (genericLayout) SpareAreaSize(nominal int) int { return nominal }

// gigaDeviceLayout keeps user data at the generic position. TranslateWrite
// also swaps the first byte of mainArea with the second byte of the spare
// area on first-and-last-page-of-block writes, but only when mainArea is
// set; Device's translateSpareWrite always clears mainArea, so no swap
// happens through Device. TranslateRead performs no swap.
type gigaDeviceLayout struct {
	mainArea []byte // the caller's main-area buffer, set per-operation
}

func (g *gigaDeviceLayout) TranslateWrite(raw []byte, stripe int, userData [4]byte, isFirstOrLastPage bool) {
	off := stripe*eccStripeSize + 4
	copy(raw[off:off+4], userData[:])
	if isFirstOrLastPage && g.mainArea != nil && len(g.mainArea) > 0 && len(raw) > 1 {
		g.mainArea[0], raw[1] = raw[1], g.mainArea[0]
	}
}

func (g *gigaDeviceLayout) TranslateRead(raw []byte, stripe int, isFirstOrLastPage bool) [4]byte {
	off := stripe*eccStripeSize + 4
	var out [4]byte
	copy(out[:], raw[off:off+4])
	return out
}

func (gigaDeviceLayout) SpareAreaSize(nominal int) int { return nominal }

// issiLayout implements the IS37/IS38 stripe: [bad-block, 3 ecc-gen, 4
// ecc-parity, 8 user] — logical offsets 4..8 route to physical 8..16.
type issiLayout struct{}

func (issiLayout) TranslateWrite(raw []byte, stripe int, userData [4]byte, _ bool) {
	off := stripe*eccStripeSize + 8
	copy(raw[off:off+4], userData[:])
}

func (issiLayout) TranslateRead(raw []byte, stripe int, _ bool) [4]byte {
	off := stripe*eccStripeSize + 8
	var out [4]byte
	copy(out[:], raw[off:off+4])
	return out
}

func (issiLayout) SpareAreaSize(nominal int) int { return nominal }

// MicronCompat selects the field-upgrade compatibility mode for the
// MT29F1G01ABAFD-family doubling-up layout.
type MicronCompat int

const (
	MicronNewLayoutOnly MicronCompat = iota
	MicronReadBothWriteNew
	MicronWriteBoth
)

// micronLayout implements the MT29F1G01ABAFD-family relocation: stripes
// 0-1 are unprotected; logical stripe i's user bytes [4,8) physically live
// at stripe i+N/2's bytes [0,4) (the spare area is effectively halved).
type micronLayout struct {
	numStripes int
	Compat     MicronCompat
}

func (m micronLayout) physicalStripe(stripe int) int {
	return stripe + m.numStripes/2
}

func (m micronLayout) TranslateWrite(raw []byte, stripe int, userData [4]byte, _ bool) {
	physOff := m.physicalStripe(stripe) * eccStripeSize
	copy(raw[physOff:physOff+4], userData[:])
	if m.Compat == MicronWriteBoth {
		oldOff := stripe*eccStripeSize + 4
		copy(raw[oldOff:oldOff+4], userData[:])
	}
}

func (m micronLayout) TranslateRead(raw []byte, stripe int, _ bool) [4]byte {
	physOff := m.physicalStripe(stripe) * eccStripeSize
	var out [4]byte
	copy(out[:], raw[physOff:physOff+4])
	if m.Compat == MicronNewLayoutOnly {
		return out
	}
	// Read-both-new-and-old compatibility modes fall back to the old
	// location if the new one looks unwritten (all 0xFF).
	if allFF(out[:]) {
		oldOff := stripe*eccStripeSize + 4
		copy(out[:], raw[oldOff:oldOff+4])
	}
	return out
}

func (micronLayout) SpareAreaSize(nominal int) int { return nominal / 2 }

func allFF(b []byte) bool {
	for _, v := range b {
		if v != 0xFF {
			return false
		}
	}
	return true
}

// toshibaWinbondLayout reserves the second half of the spare area for ECC
// parity and reports a halved spare-area size so the upper driver never
// writes into it.
type toshibaWinbondLayout struct{}

func (toshibaWinbondLayout) TranslateWrite(raw []byte, stripe int, userData [4]byte, _ bool) {
	off := stripe*eccStripeSize + 4
	copy(raw[off:off+4], userData[:])
}

func (toshibaWinbondLayout) TranslateRead(raw []byte, stripe int, _ bool) [4]byte {
	off := stripe*eccStripeSize + 4
	var out [4]byte
	copy(out[:], raw[off:off+4])
	return out
}

func (toshibaWinbondLayout) SpareAreaSize(nominal int) int { return nominal / 2 }

// NewSpareLayout returns the relocation strategy for a named vendor family.
func NewSpareLayout(vendor string, numStripes int) SpareLayout {
	switch vendor {
	case "gigadevice":
		return &gigaDeviceLayout{}
	case "issi":
		return issiLayout{}
	case "micron-mt29f1g01abafd":
		return micronLayout{numStripes: numStripes}
	case "toshiba", "winbond-halved":
		return toshibaWinbondLayout{}
	default:
		return genericLayout{}
	}
}
