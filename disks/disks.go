// Package disks holds the formatting presets consulted when a caller asks
// to format a volume without specifying cluster size explicitly: given a
// target capacity, FAT recommends a specific sectors-per-cluster value
// and FAT type so small volumes don't waste space in tiny files and large
// volumes don't blow past the AT's addressable cluster count.
package disks

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"golang.org/x/exp/slices"

	"github.com/segger-go/emfile/fat"
)

// FormatPreset names the recommended cluster geometry for a capacity
// bracket, modeled on the standard Microsoft FAT cluster-size table.
type FormatPreset struct {
	Slug              string `csv:"slug"`
	MaxVolumeBytes    int64  `csv:"max_volume_bytes"`
	SectorsPerCluster uint   `csv:"sectors_per_cluster"`
	FATTypeName       string `csv:"fat_type"`
	Notes             string `csv:"notes"`
}

func (p FormatPreset) FATType() fat.Type {
	switch p.FATTypeName {
	case "FAT12":
		return fat.FAT12
	case "FAT16":
		return fat.FAT16
	default:
		return fat.FAT32
	}
}

//go:embed format_presets.csv
var formatPresetsRawCSV string

var formatPresets []FormatPreset

func init() {
	reader := strings.NewReader(formatPresetsRawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row FormatPreset) error {
		formatPresets = append(formatPresets, row)
		return nil
	})
	if err != nil && err != io.EOF {
		panic(err)
	}

	// The CSV is authored in ascending order already, but sort defensively
	// so PresetForCapacity's first-match-wins scan is correct even if a
	// future row is appended out of order.
	slices.SortFunc(formatPresets, func(a, b FormatPreset) int {
		switch {
		case a.MaxVolumeBytes < b.MaxVolumeBytes:
			return -1
		case a.MaxVolumeBytes > b.MaxVolumeBytes:
			return 1
		}
		return 0
	})
}

// PresetForCapacity returns the narrowest preset whose MaxVolumeBytes
// covers volumeBytes, the way the original firmware's format-with-no-
// explicit-cluster-size path picks a cluster size.
func PresetForCapacity(volumeBytes int64) (FormatPreset, error) {
	for _, p := range formatPresets {
		if volumeBytes <= p.MaxVolumeBytes {
			return p, nil
		}
	}
	return FormatPreset{}, fmt.Errorf("no format preset covers a %d-byte volume", volumeBytes)
}
